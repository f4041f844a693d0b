package curriculum

import (
	"context"
	"fmt"

	"github.com/starford/tutorcore/internal/apperr"
	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS curriculum_nodes (
	skill_id   TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	position   INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS curriculum_prereqs (
	skill_id  TEXT NOT NULL REFERENCES curriculum_nodes(skill_id) ON DELETE CASCADE,
	prereq_id TEXT NOT NULL REFERENCES curriculum_nodes(skill_id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	PRIMARY KEY (skill_id, prereq_id)
);

CREATE INDEX IF NOT EXISTS idx_curriculum_prereqs_prereq ON curriculum_prereqs(prereq_id);
`

// EnsureSchema creates the curriculum tables. It is idempotent.
func EnsureSchema(ctx context.Context, conn database.DBTX) error {
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("curriculum: apply schema: %w", err)
	}
	return nil
}

// Save replaces the stored curriculum with g. Run it inside a transaction.
func Save(ctx context.Context, conn database.DBTX, g *Graph) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM curriculum_prereqs`); err != nil {
		return fmt.Errorf("curriculum: clear prereqs: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM curriculum_nodes`); err != nil {
		return fmt.Errorf("curriculum: clear nodes: %w", err)
	}
	nodes := g.Nodes()
	for i, n := range nodes {
		if _, err := conn.ExecContext(ctx,
			`INSERT INTO curriculum_nodes (skill_id, name, position) VALUES (?, ?, ?)`,
			n.SkillID, n.Name, i); err != nil {
			return fmt.Errorf("curriculum: insert node: %w", err)
		}
	}
	for _, n := range nodes {
		for j, p := range n.Prereqs {
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO curriculum_prereqs (skill_id, prereq_id, position) VALUES (?, ?, ?)`,
				n.SkillID, p, j); err != nil {
				return fmt.Errorf("curriculum: insert prereq: %w", err)
			}
		}
	}
	return nil
}

// Load reads the stored curriculum. It returns apperr.ErrNotFound when none
// has been saved.
func Load(ctx context.Context, conn database.DBTX) (*Graph, error) {
	rows, err := conn.QueryContext(ctx, `SELECT skill_id, name FROM curriculum_nodes ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("curriculum: load nodes: %w", err)
	}
	var nodes []models.CurriculumNode
	index := make(map[string]int)
	for rows.Next() {
		var n models.CurriculumNode
		if err := rows.Scan(&n.SkillID, &n.Name); err != nil {
			rows.Close()
			return nil, err
		}
		index[n.SkillID] = len(nodes)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(nodes) == 0 {
		return nil, fmt.Errorf("curriculum: %w", apperr.ErrNotFound)
	}

	prows, err := conn.QueryContext(ctx, `SELECT skill_id, prereq_id FROM curriculum_prereqs ORDER BY skill_id, position`)
	if err != nil {
		return nil, fmt.Errorf("curriculum: load prereqs: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var skill, prereq string
		if err := prows.Scan(&skill, &prereq); err != nil {
			return nil, err
		}
		if i, ok := index[skill]; ok {
			nodes[i].Prereqs = append(nodes[i].Prereqs, prereq)
		}
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}
	return New(nodes)
}
