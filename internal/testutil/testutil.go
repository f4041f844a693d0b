// Package testutil provides shared test helpers for setting up vaults and databases.
package testutil

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/tutorcore/internal/database"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
// Callers apply the schemas they need.
func TestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tutorcore-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := database.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault writes files (relative path -> content) into a fresh temporary
// vault directory and returns its path.
func TestVault(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// CardiacVault is the four-note physiology vault used by end-to-end tests:
// Cardiac Output links to Stroke Volume and Heart Rate, Stroke Volume links
// to Preload.
func CardiacVault() map[string]string {
	return map[string]string{
		"physiology/Cardiac Output.md": "---\ntitle: Cardiac Output\naliases:\n  - CO\n---\n" +
			"Cardiac output is the volume of blood the heart pumps per minute.\n\n" +
			"It is the product of [[Stroke Volume]] and [[Heart Rate]].\n",
		"physiology/Stroke Volume.md": "Stroke volume is the blood ejected by the left ventricle per beat.\n\n" +
			"It rises with [[Preload]].\n",
		"physiology/Heart Rate.md": "Heart rate is the number of beats per minute.\n",
		"physiology/Preload.md":    "Preload is the end-diastolic stretch of the ventricular wall.\n",
	}
}

// Logger returns a JSON logger that only reports errors, keeping test output
// quiet.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
