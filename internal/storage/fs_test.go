package storage

import (
	"errors"
	"os"
	"testing"

	"github.com/starford/tutorcore/internal/testutil"
)

func TestListAndRead(t *testing.T) {
	dir := testutil.TestVault(t, map[string]string{
		"b.md":               "bee",
		"a/nested.md":        "deep",
		"image.png":          "not a note",
		".obsidian/cache.md": "hidden",
	})
	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	metas, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("len(metas) = %d, want 2: %+v", len(metas), metas)
	}
	if metas[0].Path != "a/nested.md" || metas[1].Path != "b.md" {
		t.Errorf("paths = %q, %q", metas[0].Path, metas[1].Path)
	}

	got, err := s.Read("a/nested.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestReadMissing(t *testing.T) {
	s, _ := NewFS(t.TempDir())
	_, err := s.Read("nope.md")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	s, _ := NewFS(t.TempDir())
	if _, err := s.Read("../../etc/passwd"); err == nil {
		t.Error("expected traversal to be rejected")
	}
}

func TestNewFS_NotADirectory(t *testing.T) {
	f, err := os.CreateTemp("", "tutorcore-file-*")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error for non-directory root")
	}
}
