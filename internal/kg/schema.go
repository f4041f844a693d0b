// Package kg is the persisted concept graph: nodes, edges, and the provenance
// of every fact.
package kg

import (
	"context"
	"fmt"

	"github.com/starford/tutorcore/internal/database"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kg_nodes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	definition  TEXT NOT NULL DEFAULT '',
	node_type   TEXT NOT NULL DEFAULT 'concept',
	source_path TEXT NOT NULL DEFAULT '',
	link_only   INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_kg_nodes_name_nocase ON kg_nodes(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS kg_edges (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	source_node_id INTEGER NOT NULL REFERENCES kg_nodes(id),
	target_node_id INTEGER NOT NULL REFERENCES kg_nodes(id),
	relation       TEXT NOT NULL DEFAULT 'links_to',
	confidence     REAL NOT NULL DEFAULT 0.5,
	link_only      INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(source_node_id, target_node_id, relation)
);

CREATE INDEX IF NOT EXISTS idx_kg_edges_source ON kg_edges(source_node_id);
CREATE INDEX IF NOT EXISTS idx_kg_edges_target ON kg_edges(target_node_id);

CREATE TABLE IF NOT EXISTS kg_provenance (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL CHECK (entity_type IN ('node', 'edge')),
	entity_id   INTEGER NOT NULL,
	source_type TEXT NOT NULL,
	source_ref  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_kg_provenance_entity ON kg_provenance(entity_type, entity_id);
`

// EnsureSchema creates the graph tables and their indexes. It is idempotent.
func EnsureSchema(ctx context.Context, conn database.DBTX) error {
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("kg: apply schema: %w", err)
	}
	return nil
}
