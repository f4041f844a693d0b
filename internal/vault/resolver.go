package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/tutorcore/internal/database"
)

// AliasResolver maps a raw note name or alias to its canonical display name.
// ok is false when the name is unknown. Matching is case-insensitive.
type AliasResolver interface {
	Resolve(ctx context.Context, conn database.DBTX, raw string) (canonical string, ok bool, err error)
}

// ResolverFunc adapts a function to AliasResolver.
type ResolverFunc func(ctx context.Context, conn database.DBTX, raw string) (string, bool, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, conn database.DBTX, raw string) (string, bool, error) {
	return f(ctx, conn, raw)
}

const aliasSchemaSQL = `
CREATE TABLE IF NOT EXISTS kg_aliases (
	alias      TEXT NOT NULL PRIMARY KEY COLLATE NOCASE,
	canonical  TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// TableResolver resolves aliases from the kg_aliases table.
type TableResolver struct{}

// NewTableResolver creates a TableResolver.
func NewTableResolver() *TableResolver {
	return &TableResolver{}
}

// EnsureSchema creates the alias table.
func (r *TableResolver) EnsureSchema(ctx context.Context, conn database.DBTX) error {
	if _, err := conn.ExecContext(ctx, aliasSchemaSQL); err != nil {
		return fmt.Errorf("vault: apply alias schema: %w", err)
	}
	return nil
}

// Put maps alias to canonical, replacing any previous mapping.
func (r *TableResolver) Put(ctx context.Context, conn database.DBTX, alias, canonical string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" || canonical == "" {
		return nil
	}
	_, err := conn.ExecContext(ctx, `
		INSERT INTO kg_aliases (alias, canonical) VALUES (?, ?)
		ON CONFLICT(alias) DO UPDATE SET
			canonical  = excluded.canonical,
			updated_at = CURRENT_TIMESTAMP
	`, alias, canonical)
	if err != nil {
		return fmt.Errorf("vault: put alias: %w", err)
	}
	return nil
}

// Resolve implements AliasResolver.
func (r *TableResolver) Resolve(ctx context.Context, conn database.DBTX, raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, nil
	}
	var canonical string
	err := conn.QueryRowContext(ctx,
		`SELECT canonical FROM kg_aliases WHERE alias = ?`, raw).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("vault: resolve alias: %w", err)
	}
	return canonical, canonical != "", nil
}

// RegisterIndex stores every note name, title, and alias of idx as an alias
// of the note name.
func (r *TableResolver) RegisterIndex(ctx context.Context, conn database.DBTX, idx *Index) error {
	for _, n := range idx.Notes {
		keys := append([]string{n.Name, n.Title}, n.Aliases...)
		for _, k := range keys {
			if err := r.Put(ctx, conn, k, n.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
