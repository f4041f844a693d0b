// Package subgraph trims an expanded concept subgraph to a token budget and
// renders what survives as a prompt section.
package subgraph

import (
	"fmt"
	"sort"

	"github.com/starford/tutorcore/internal/apperr"
	"github.com/starford/tutorcore/internal/models"
)

// Token costs charged per kept element.
const (
	NodeTokens = 20
	EdgeTokens = 15

	DefaultBudgetTokens = 1500
)

// Strategy selects the pruning algorithm.
type Strategy string

const (
	Greedy Strategy = "greedy"
	// PCST is prize-collecting Steiner tree pruning. Not available yet.
	PCST Strategy = "pcst"
)

// ParseStrategy maps a config value to a Strategy. Empty means Greedy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", Greedy:
		return Greedy, nil
	case PCST:
		return PCST, nil
	default:
		return "", fmt.Errorf("subgraph: strategy %q: %w", s, apperr.ErrUnsupportedStrategy)
	}
}

// PruneWith dispatches to the pruning algorithm named by strategy. PCST
// reports apperr.ErrNotImplemented instead of falling back to Greedy.
func PruneWith(strategy Strategy, nodes []models.KGNode, edges []models.KGEdge, budget int) ([]models.KGNode, []models.KGEdge, error) {
	switch strategy {
	case "", Greedy:
		n, e := Prune(nodes, edges, budget)
		return n, e, nil
	case PCST:
		return nil, nil, fmt.Errorf("subgraph: pcst pruning: %w", apperr.ErrNotImplemented)
	default:
		return nil, nil, fmt.Errorf("subgraph: strategy %q: %w", strategy, apperr.ErrUnsupportedStrategy)
	}
}

// Prune greedily keeps the highest scoring nodes, then the edges between kept
// nodes, until budget tokens are spent. Selection stops at the first element
// that does not fit; nothing after it is considered. Ties keep input order.
func Prune(nodes []models.KGNode, edges []models.KGEdge, budget int) ([]models.KGNode, []models.KGEdge) {
	scores := Scores(nodes, edges)

	order := make([]int, len(nodes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[nodes[order[a]].ID] > scores[nodes[order[b]].ID]
	})

	used := 0
	kept := make(map[int64]struct{}, len(nodes))
	keptNodes := make([]models.KGNode, 0, len(nodes))
	for _, i := range order {
		if used+NodeTokens > budget {
			break
		}
		used += NodeTokens
		kept[nodes[i].ID] = struct{}{}
		keptNodes = append(keptNodes, nodes[i])
	}

	keptEdges := make([]models.KGEdge, 0, len(edges))
	for _, e := range edges {
		_, okSrc := kept[e.SourceNodeID]
		_, okTgt := kept[e.TargetNodeID]
		if !okSrc || !okTgt {
			continue
		}
		if used+EdgeTokens > budget {
			break
		}
		used += EdgeTokens
		keptEdges = append(keptEdges, e)
	}
	return keptNodes, keptEdges
}

// Scores rates each node by proximity to a seed: seeds score 1.0, other nodes
// the highest confidence among their edges to a seed, 0 otherwise.
func Scores(nodes []models.KGNode, edges []models.KGEdge) map[int64]float64 {
	seeds := make(map[int64]struct{})
	scores := make(map[int64]float64, len(nodes))
	for _, n := range nodes {
		if n.IsSeed {
			seeds[n.ID] = struct{}{}
			scores[n.ID] = 1.0
		} else {
			scores[n.ID] = 0
		}
	}
	for _, e := range edges {
		_, srcSeed := seeds[e.SourceNodeID]
		_, tgtSeed := seeds[e.TargetNodeID]
		if srcSeed && !tgtSeed {
			bump(scores, e.TargetNodeID, e.Confidence)
		}
		if tgtSeed && !srcSeed {
			bump(scores, e.SourceNodeID, e.Confidence)
		}
	}
	return scores
}

func bump(scores map[int64]float64, id int64, confidence float64) {
	cur, ok := scores[id]
	if !ok {
		return
	}
	if confidence > cur {
		scores[id] = confidence
	}
}
