package vault

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/kg"
	"github.com/starford/tutorcore/internal/storage"
)

// SyncStats summarizes one Sync call.
type SyncStats struct {
	SeedStats
	Notes       int    `json:"notes"`
	Definitions int    `json:"definitions"`
	Fingerprint string `json:"fingerprint"`
	Unchanged   bool   `json:"unchanged"`
}

// Syncer brings the knowledge graph in line with a vault on disk.
type Syncer struct {
	store    storage.Provider
	kg       *kg.Store
	resolver *TableResolver
	cache    *IndexCache
	logger   *slog.Logger

	mu          sync.Mutex
	fingerprint string
}

// NewSyncer creates a Syncer. cache may be nil.
func NewSyncer(store storage.Provider, kgStore *kg.Store, cache *IndexCache, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:    store,
		kg:       kgStore,
		resolver: NewTableResolver(),
		cache:    cache,
		logger:   logger,
	}
}

// Resolver returns the alias resolver the syncer maintains.
func (s *Syncer) Resolver() *TableResolver {
	return s.resolver
}

// EnsureSchema creates the alias table.
func (s *Syncer) EnsureSchema(ctx context.Context, conn database.DBTX) error {
	return s.resolver.EnsureSchema(ctx, conn)
}

// Index returns the current vault snapshot, from cache when possible.
func (s *Syncer) Index() (*Index, error) {
	root := s.store.Root()
	if idx, ok := s.cache.Get(root); ok {
		return idx, nil
	}
	idx, err := Scan(s.store, s.logger)
	if err != nil {
		return nil, err
	}
	s.cache.Set(root, idx)
	return idx, nil
}

// Invalidate forgets the cached snapshot so the next Sync re-reads the vault.
func (s *Syncer) Invalidate() {
	s.cache.Clear()
}

// Sync registers aliases, seeds nodes and edges from wikilinks, creates nodes
// for notes without links, and writes note definitions, all in one
// transaction. When the vault fingerprint matches the last successful sync
// nothing is written.
func (s *Syncer) Sync(ctx context.Context, db *sql.DB) (SyncStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.Index()
	if err != nil {
		return SyncStats{}, err
	}
	stats := SyncStats{Notes: len(idx.Notes), Fingerprint: idx.Fingerprint}
	if idx.Fingerprint == s.fingerprint {
		stats.Unchanged = true
		return stats, nil
	}

	err = database.WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := s.resolver.RegisterIndex(ctx, tx, idx); err != nil {
			return err
		}
		seed, err := SeedFromObsidian(ctx, tx, s.kg, idx.LinkRows(), s.resolver)
		if err != nil {
			return err
		}
		stats.SeedStats = seed

		for _, n := range idx.Notes {
			id, _, err := s.kg.UpsertNode(ctx, tx, n.Name, n.Path, false)
			if err != nil {
				return err
			}
			if n.Definition == "" {
				continue
			}
			if err := s.kg.SetDefinition(ctx, tx, id, n.Definition); err != nil {
				return err
			}
			stats.Definitions++
		}
		return nil
	})
	if err != nil {
		return SyncStats{}, fmt.Errorf("vault: sync: %w", err)
	}

	s.fingerprint = idx.Fingerprint
	s.logger.Info("vault: synced",
		slog.Int("notes", stats.Notes),
		slog.Int("nodes_created", stats.NodesCreated),
		slog.Int("edges_created", stats.EdgesCreated),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}
