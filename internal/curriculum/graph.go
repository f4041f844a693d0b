// Package curriculum holds the prerequisite DAG over skills and derives each
// skill's locked / unlocked / mastered status from current mastery.
package curriculum

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/tutorcore/internal/apperr"
	"github.com/starford/tutorcore/internal/models"
)

// Graph is a validated, acyclic curriculum. It is immutable after New.
type Graph struct {
	nodes map[string]models.CurriculumNode
	order []string // topological: prerequisites before dependents
}

// New validates nodes and builds the graph. It rejects empty or duplicate
// ids, self and dangling prerequisites, and cycles.
func New(nodes []models.CurriculumNode) (*Graph, error) {
	g := &Graph{nodes: make(map[string]models.CurriculumNode, len(nodes))}
	for i := range nodes {
		n := nodes[i]
		n.SkillID = strings.TrimSpace(n.SkillID)
		if err := validation.ValidateStruct(&n,
			validation.Field(&n.SkillID, validation.Required),
		); err != nil {
			return nil, fmt.Errorf("curriculum: node %d: %w: %v", i, apperr.ErrInvalidCurriculum, err)
		}
		if _, dup := g.nodes[n.SkillID]; dup {
			return nil, fmt.Errorf("curriculum: duplicate skill %q: %w", n.SkillID, apperr.ErrInvalidCurriculum)
		}
		if n.Name == "" {
			n.Name = n.SkillID
		}
		n.Prereqs = append([]string(nil), n.Prereqs...)
		g.nodes[n.SkillID] = n
	}

	for _, n := range nodes {
		id := strings.TrimSpace(n.SkillID)
		seen := make(map[string]struct{}, len(n.Prereqs))
		for _, p := range n.Prereqs {
			if p == id {
				return nil, fmt.Errorf("curriculum: skill %q requires itself: %w", id, apperr.ErrInvalidCurriculum)
			}
			if _, ok := g.nodes[p]; !ok {
				return nil, fmt.Errorf("curriculum: skill %q requires unknown skill %q: %w", id, p, apperr.ErrInvalidCurriculum)
			}
			if _, dup := seen[p]; dup {
				return nil, fmt.Errorf("curriculum: skill %q lists %q twice: %w", id, p, apperr.ErrInvalidCurriculum)
			}
			seen[p] = struct{}{}
		}
	}

	order, err := topoSort(nodes, g.nodes)
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// topoSort runs Kahn's algorithm, breaking ties by input order.
func topoSort(input []models.CurriculumNode, nodes map[string]models.CurriculumNode) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range input {
		id := strings.TrimSpace(n.SkillID)
		indegree[id] = len(n.Prereqs)
		for _, p := range n.Prereqs {
			dependents[p] = append(dependents[p], id)
		}
	}

	var queue, order []string
	for _, n := range input {
		id := strings.TrimSpace(n.SkillID)
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, d := range dependents[id] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(order) != len(nodes) {
		var stuck []string
		for id, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("curriculum: cycle through %s: %w", strings.Join(stuck, ", "), apperr.ErrCyclicCurriculum)
	}
	return order, nil
}

// Node returns the skill with id.
func (g *Graph) Node(id string) (models.CurriculumNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Prereqs returns the direct prerequisites of id in their declared order.
func (g *Graph) Prereqs(id string) []string {
	return append([]string(nil), g.nodes[id].Prereqs...)
}

// Order returns every skill id with prerequisites before dependents.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Nodes returns every skill in topological order.
func (g *Graph) Nodes() []models.CurriculumNode {
	out := make([]models.CurriculumNode, 0, len(g.order))
	for _, id := range g.order {
		n := g.nodes[id]
		n.Prereqs = append([]string{}, n.Prereqs...)
		out = append(out, n)
	}
	return out
}

// Len returns the number of skills.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// File is the YAML layout of a curriculum file.
type File struct {
	Skills []models.CurriculumNode `yaml:"skills"`
}

// Parse decodes and validates a YAML curriculum.
func Parse(data []byte) (*Graph, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("curriculum: decode: %w: %v", apperr.ErrInvalidCurriculum, err)
	}
	if len(f.Skills) == 0 {
		return nil, fmt.Errorf("curriculum: no skills: %w", apperr.ErrInvalidCurriculum)
	}
	return New(f.Skills)
}

// LoadFile reads and validates a YAML curriculum file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("curriculum: read %s: %w", path, err)
	}
	return Parse(data)
}

// IsInvalid reports whether err came from curriculum validation.
func IsInvalid(err error) bool {
	return errors.Is(err, apperr.ErrInvalidCurriculum) || errors.Is(err, apperr.ErrCyclicCurriculum)
}
