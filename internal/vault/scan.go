// Package vault turns a Markdown note vault into knowledge graph rows: it
// scans notes, resolves aliases, seeds nodes and edges, and keeps the graph in
// step with the vault on disk.
package vault

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/tutorcore/internal/checksum"
	"github.com/starford/tutorcore/internal/parser"
	"github.com/starford/tutorcore/internal/storage"
)

// Note is one parsed vault note.
type Note struct {
	Path       string
	Name       string // file base name without extension
	Title      string
	Aliases    []string
	Definition string
	Links      []string
}

// Index is a parsed snapshot of the whole vault.
type Index struct {
	Notes       []Note
	Fingerprint string
}

// LinkRow is one raw wikilink: the note it appears in and the link target as
// written.
type LinkRow struct {
	SourcePath string
	Target     string
}

// LinkRows flattens the index into link tuples, in note then link order.
func (idx *Index) LinkRows() []LinkRow {
	var out []LinkRow
	for _, n := range idx.Notes {
		for _, target := range n.Links {
			out = append(out, LinkRow{SourcePath: n.Path, Target: target})
		}
	}
	return out
}

// Scan reads and parses every note in the vault. Unreadable notes are logged
// and skipped.
func Scan(store storage.Provider, logger *slog.Logger) (*Index, error) {
	metas, err := store.List("")
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}

	sums := make(map[string]string, len(metas))
	idx := &Index{Notes: make([]Note, 0, len(metas))}
	for _, m := range metas {
		sums[m.Path] = m.Checksum

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("vault: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		res, err := parser.Parse(data)
		if err != nil {
			logger.Warn("vault: parse failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		idx.Notes = append(idx.Notes, Note{
			Path:       m.Path,
			Name:       NoteName(m.Path),
			Title:      res.Title,
			Aliases:    res.Aliases,
			Definition: res.Definition,
			Links:      res.Links,
		})
	}
	idx.Fingerprint = checksum.Fingerprint(sums)
	return idx, nil
}

// NoteName derives a node name from a note path: the base name with its
// extension stripped. Both / and \ separate directories.
func NoteName(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return strings.TrimSpace(base)
}
