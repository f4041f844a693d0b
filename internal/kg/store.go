package kg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/models"
)

// EdgeInput describes an edge to insert. An empty Relation or a nil
// Confidence takes the model default.
type EdgeInput struct {
	SourceNodeID int64
	TargetNodeID int64
	Relation     string
	Confidence   *float64
	LinkOnly     bool
}

// Confidence returns a pointer to v for EdgeInput.Confidence.
func Confidence(v float64) *float64 {
	return &v
}

// Store implements the knowledge graph operations over a caller-supplied
// connection. It never opens or closes connections itself.
type Store struct {
	duplicates atomic.Int64
}

// NewStore creates a Store.
func NewStore() *Store {
	return &Store{}
}

// Duplicates returns how many edge inserts were rejected as already known.
func (s *Store) Duplicates() int64 {
	return s.duplicates.Load()
}

const nodeColumns = `id, name, definition, node_type, source_path, link_only, created_at`

const edgeColumns = `id, source_node_id, target_node_id, relation, confidence, link_only, created_at`

// NodeOutcome reports what UpsertNode did.
type NodeOutcome int

const (
	NodeExisting NodeOutcome = iota
	NodeCreated
	NodePromoted
)

// GetOrCreateNode returns the id of the node with exactly this name, creating
// it when absent. An existing link-only node is promoted (flag cleared,
// source path written) when the caller supplies linkOnly=false. A promoted
// node never reverts to link-only.
func (s *Store) GetOrCreateNode(ctx context.Context, conn database.DBTX, name, sourcePath string, linkOnly bool) (int64, error) {
	id, _, err := s.UpsertNode(ctx, conn, name, sourcePath, linkOnly)
	return id, err
}

// UpsertNode is GetOrCreateNode that also reports whether the node was
// created, promoted, or already present.
func (s *Store) UpsertNode(ctx context.Context, conn database.DBTX, name, sourcePath string, linkOnly bool) (int64, NodeOutcome, error) {
	var (
		id         int64
		storedLink int
	)
	err := conn.QueryRowContext(ctx,
		`SELECT id, link_only FROM kg_nodes WHERE name = ?`, name).Scan(&id, &storedLink)
	switch {
	case err == nil:
		if storedLink == 1 && !linkOnly {
			if _, err := conn.ExecContext(ctx,
				`UPDATE kg_nodes SET link_only = 0, source_path = ? WHERE id = ? AND link_only = 1`,
				sourcePath, id); err != nil {
				return 0, NodeExisting, fmt.Errorf("kg: promote node: %w", err)
			}
			return id, NodePromoted, nil
		}
		return id, NodeExisting, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return 0, NodeExisting, fmt.Errorf("kg: lookup node: %w", err)
	}

	res, err := conn.ExecContext(ctx,
		`INSERT INTO kg_nodes (name, node_type, source_path, link_only) VALUES (?, ?, ?, ?)`,
		name, models.DefaultNodeType, sourcePath, database.BoolInt(linkOnly))
	if err != nil {
		return 0, NodeExisting, fmt.Errorf("kg: insert node: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, NodeExisting, fmt.Errorf("kg: node id: %w", err)
	}
	return id, NodeCreated, nil
}

// InsertEdge inserts an edge. A uniqueness violation on
// (source, target, relation) is not an error: it returns inserted=false and
// bumps the duplicate counter.
func (s *Store) InsertEdge(ctx context.Context, conn database.DBTX, in EdgeInput) (id int64, inserted bool, err error) {
	relation := in.Relation
	if relation == "" {
		relation = models.DefaultRelation
	}
	confidence := models.DefaultConfidence
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	res, err := conn.ExecContext(ctx, `
		INSERT INTO kg_edges (source_node_id, target_node_id, relation, confidence, link_only)
		VALUES (?, ?, ?, ?, ?)
	`, in.SourceNodeID, in.TargetNodeID, relation, confidence, database.BoolInt(in.LinkOnly))
	if err != nil {
		if database.IsUniqueViolation(err) {
			s.duplicates.Add(1)
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("kg: insert edge: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("kg: edge id: %w", err)
	}
	return id, true, nil
}

// AddProvenance appends a provenance record for a node or edge.
func (s *Store) AddProvenance(ctx context.Context, conn database.DBTX, p models.KGProvenance) error {
	if p.EntityType != models.EntityNode && p.EntityType != models.EntityEdge {
		return fmt.Errorf("kg: provenance entity type %q", p.EntityType)
	}
	_, err := conn.ExecContext(ctx, `
		INSERT INTO kg_provenance (entity_type, entity_id, source_type, source_ref)
		VALUES (?, ?, ?, ?)
	`, p.EntityType, p.EntityID, p.SourceType, p.SourceRef)
	if err != nil {
		return fmt.Errorf("kg: insert provenance: %w", err)
	}
	return nil
}

// Provenance lists the provenance records of one entity, oldest first.
func (s *Store) Provenance(ctx context.Context, conn database.DBTX, entityType string, entityID int64) ([]models.KGProvenance, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, source_type, source_ref, created_at
		FROM kg_provenance
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY id
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("kg: provenance: %w", err)
	}
	defer rows.Close()

	var out []models.KGProvenance
	for rows.Next() {
		var p models.KGProvenance
		if err := rows.Scan(&p.ID, &p.EntityType, &p.EntityID, &p.SourceType, &p.SourceRef, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetDefinition overwrites the definition text of a node.
func (s *Store) SetDefinition(ctx context.Context, conn database.DBTX, id int64, definition string) error {
	if _, err := conn.ExecContext(ctx,
		`UPDATE kg_nodes SET definition = ? WHERE id = ?`, definition, id); err != nil {
		return fmt.Errorf("kg: set definition: %w", err)
	}
	return nil
}

// GetNode loads one node by id.
func (s *Store) GetNode(ctx context.Context, conn database.DBTX, id int64) (*models.KGNode, error) {
	row := conn.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM kg_nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err != nil {
		return nil, fmt.Errorf("kg: get node: %w", err)
	}
	return n, nil
}

// FindNodeByName resolves name case-insensitively. When several names differ
// only by case the oldest node wins. found is false when nothing matches.
func (s *Store) FindNodeByName(ctx context.Context, conn database.DBTX, name string) (node *models.KGNode, found bool, err error) {
	row := conn.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` FROM kg_nodes
		WHERE name = ? COLLATE NOCASE
		ORDER BY id
		LIMIT 1
	`, name)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kg: find node: %w", err)
	}
	return n, true, nil
}

// NodesByIDs loads nodes, returned in the order of ids. Unknown ids are
// skipped.
func (s *Store) NodesByIDs(ctx context.Context, conn database.DBTX, ids []int64) ([]models.KGNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := conn.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM kg_nodes WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("kg: nodes by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]models.KGNode, len(ids))
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		byID[n.ID] = *n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.KGNode, 0, len(byID))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// EdgesTouching returns every edge where id is either endpoint, by edge id.
func (s *Store) EdgesTouching(ctx context.Context, conn database.DBTX, id int64) ([]models.KGEdge, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM kg_edges
		WHERE source_node_id = ? OR target_node_id = ?
		ORDER BY id
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("kg: edges touching: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// AllNodes returns every node by id.
func (s *Store) AllNodes(ctx context.Context, conn database.DBTX) ([]models.KGNode, error) {
	rows, err := conn.QueryContext(ctx, `SELECT `+nodeColumns+` FROM kg_nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("kg: all nodes: %w", err)
	}
	defer rows.Close()

	var out []models.KGNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// Graph returns the whole graph for visualization.
func (s *Store) Graph(ctx context.Context, conn database.DBTX) ([]models.KGNode, []models.KGEdge, error) {
	nodes, err := s.AllNodes(ctx, conn)
	if err != nil {
		return nil, nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT `+edgeColumns+` FROM kg_edges ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("kg: all edges: %w", err)
	}
	defer rows.Close()
	edges, err := scanEdges(rows)
	if err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(sc scanner) (*models.KGNode, error) {
	var (
		n        models.KGNode
		linkOnly int
	)
	if err := sc.Scan(&n.ID, &n.Name, &n.Definition, &n.NodeType, &n.SourcePath, &linkOnly, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.LinkOnly = linkOnly == 1
	return &n, nil
}

func scanEdges(rows *sql.Rows) ([]models.KGEdge, error) {
	var out []models.KGEdge
	for rows.Next() {
		var (
			e        models.KGEdge
			linkOnly int
		)
		if err := rows.Scan(&e.ID, &e.SourceNodeID, &e.TargetNodeID, &e.Relation, &e.Confidence, &linkOnly, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.LinkOnly = linkOnly == 1
		out = append(out, e)
	}
	return out, rows.Err()
}
