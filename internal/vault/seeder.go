package vault

import (
	"context"
	"strings"

	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/kg"
	"github.com/starford/tutorcore/internal/models"
)

// SourceTypeObsidian tags provenance rows written by the seeder.
const SourceTypeObsidian = "obsidian"

// SeedStats summarizes one seeding pass.
type SeedStats struct {
	NodesCreated int `json:"nodes_created"`
	EdgesCreated int `json:"edges_created"`
	Skipped      int `json:"skipped"`
}

// SeedFromObsidian writes the link rows into the graph. Every source note
// becomes a real node (link_only=false) and every target a link-only node
// until its own note is seen. NodesCreated counts each resolved source name
// once per pass no matter how many links it carries. Duplicate edges and
// empty rows are counted in Skipped.
func SeedFromObsidian(ctx context.Context, conn database.DBTX, store *kg.Store, rows []LinkRow, resolver AliasResolver) (SeedStats, error) {
	var stats SeedStats
	seenSources := make(map[string]struct{})

	for _, row := range rows {
		srcName, err := resolveName(ctx, conn, resolver, NoteName(row.SourcePath))
		if err != nil {
			return stats, err
		}
		tgtName, err := resolveName(ctx, conn, resolver, row.Target)
		if err != nil {
			return stats, err
		}
		if srcName == "" || tgtName == "" {
			stats.Skipped++
			continue
		}

		if _, seen := seenSources[srcName]; !seen {
			seenSources[srcName] = struct{}{}
			stats.NodesCreated++
		}

		srcID, outcome, err := store.UpsertNode(ctx, conn, srcName, row.SourcePath, false)
		if err != nil {
			return stats, err
		}
		if outcome != kg.NodeExisting {
			if err := addProvenance(ctx, conn, store, models.EntityNode, srcID, row.SourcePath); err != nil {
				return stats, err
			}
		}

		tgtID, _, err := store.UpsertNode(ctx, conn, tgtName, "", true)
		if err != nil {
			return stats, err
		}

		edgeID, inserted, err := store.InsertEdge(ctx, conn, kg.EdgeInput{
			SourceNodeID: srcID,
			TargetNodeID: tgtID,
			Relation:     models.DefaultRelation,
			LinkOnly:     true,
		})
		if err != nil {
			return stats, err
		}
		if !inserted {
			stats.Skipped++
			continue
		}
		stats.EdgesCreated++
		if err := addProvenance(ctx, conn, store, models.EntityEdge, edgeID, row.SourcePath); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// resolveName canonicalizes raw through resolver, falling back to raw itself.
func resolveName(ctx context.Context, conn database.DBTX, resolver AliasResolver, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || resolver == nil {
		return raw, nil
	}
	canonical, ok, err := resolver.Resolve(ctx, conn, raw)
	if err != nil {
		return "", err
	}
	if !ok || canonical == "" {
		return raw, nil
	}
	return canonical, nil
}

func addProvenance(ctx context.Context, conn database.DBTX, store *kg.Store, entityType string, id int64, ref string) error {
	return store.AddProvenance(ctx, conn, models.KGProvenance{
		EntityType: entityType,
		EntityID:   id,
		SourceType: SourceTypeObsidian,
		SourceRef:  ref,
	})
}
