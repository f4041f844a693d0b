package subgraph

import (
	"fmt"
	"strings"

	"github.com/starford/tutorcore/internal/models"
)

// DefinitionRunes caps how much of a definition appears in the context pack.
const DefinitionRunes = 120

// BuildContextPack renders nodes and edges as a Markdown prompt section. It
// returns "" when there are no nodes.
func BuildContextPack(nodes []models.KGNode, edges []models.KGEdge) string {
	if len(nodes) == 0 {
		return ""
	}

	names := make(map[int64]string, len(nodes))
	var b strings.Builder
	b.WriteString("## Concept Graph Context\n\n### Concepts\n")
	for _, n := range nodes {
		names[n.ID] = n.Name
		b.WriteString("- **")
		b.WriteString(n.Name)
		b.WriteString("**")
		if n.IsSeed {
			b.WriteString(" [SEED]")
		}
		if def := truncate(strings.TrimSpace(n.Definition), DefinitionRunes); def != "" {
			b.WriteString(" — ")
			b.WriteString(def)
		}
		b.WriteString("\n")
	}

	if len(edges) > 0 {
		b.WriteString("\n### Relationships\n")
		for _, e := range edges {
			fmt.Fprintf(&b, "- %s --[%s]--> %s\n",
				nameOf(names, e.SourceNodeID), e.Relation, nameOf(names, e.TargetNodeID))
		}
	}
	return b.String()
}

func nameOf(names map[int64]string, id int64) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("#%d", id)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
