package kg

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/tutorcore/internal/models"
	"github.com/starford/tutorcore/internal/testutil"
)

func testStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	require.NoError(t, EnsureSchema(context.Background(), db))
	return NewStore(), db
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	_, db := testStore(t)
	require.NoError(t, EnsureSchema(context.Background(), db))

	for _, table := range []string{"kg_nodes", "kg_edges", "kg_provenance"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT count(*) FROM `+table).Scan(&n), table)
	}
}

func TestGetOrCreateNode_SameNameSameID(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()

	for _, linkOnly := range []bool{true, false} {
		first, err := s.GetOrCreateNode(ctx, db, "Preload", "", linkOnly)
		require.NoError(t, err)
		second, err := s.GetOrCreateNode(ctx, db, "Preload", "", linkOnly)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestGetOrCreateNode_PromotionIsOneWay(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()

	id, err := s.GetOrCreateNode(ctx, db, "Heart Rate", "", true)
	require.NoError(t, err)
	n, err := s.GetNode(ctx, db, id)
	require.NoError(t, err)
	assert.True(t, n.LinkOnly)
	assert.Equal(t, models.DefaultNodeType, n.NodeType)

	again, err := s.GetOrCreateNode(ctx, db, "Heart Rate", "physiology/Heart Rate.md", false)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	n, err = s.GetNode(ctx, db, id)
	require.NoError(t, err)
	assert.False(t, n.LinkOnly)
	assert.Equal(t, "physiology/Heart Rate.md", n.SourcePath)

	_, err = s.GetOrCreateNode(ctx, db, "Heart Rate", "", true)
	require.NoError(t, err)
	n, err = s.GetNode(ctx, db, id)
	require.NoError(t, err)
	assert.False(t, n.LinkOnly, "promoted node must not revert to link-only")
	assert.Equal(t, "physiology/Heart Rate.md", n.SourcePath)
}

func TestGetOrCreateNode_CaseSensitiveExactMatch(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()

	a, err := s.GetOrCreateNode(ctx, db, "Preload", "", true)
	require.NoError(t, err)
	b, err := s.GetOrCreateNode(ctx, db, "preload", "", true)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	n, found, err := s.FindNodeByName(ctx, db, "PRELOAD")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, a, n.ID, "oldest case-insensitive match wins")
}

func TestInsertEdge_DuplicateCounted(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()

	a, _ := s.GetOrCreateNode(ctx, db, "A", "", false)
	b, _ := s.GetOrCreateNode(ctx, db, "B", "", true)

	id, inserted, err := s.InsertEdge(ctx, db, EdgeInput{SourceNodeID: a, TargetNodeID: b, LinkOnly: true})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, id)

	_, inserted, err = s.InsertEdge(ctx, db, EdgeInput{SourceNodeID: a, TargetNodeID: b, LinkOnly: true})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, int64(1), s.Duplicates())

	_, inserted, err = s.InsertEdge(ctx, db, EdgeInput{SourceNodeID: a, TargetNodeID: b, Relation: "prerequisite_of", Confidence: Confidence(0.9)})
	require.NoError(t, err)
	assert.True(t, inserted, "different relation is a different fact")

	edges, err := s.EdgesTouching(ctx, db, b)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, models.DefaultRelation, edges[0].Relation)
	assert.InDelta(t, models.DefaultConfidence, edges[0].Confidence, 1e-9)
	assert.True(t, edges[0].LinkOnly)
	assert.Equal(t, a, edges[1].Other(b))
	assert.InDelta(t, 0.9, edges[1].Confidence, 1e-9)
}

func TestInsertEdge_ZeroConfidence(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()

	a, _ := s.GetOrCreateNode(ctx, db, "A", "", false)
	b, _ := s.GetOrCreateNode(ctx, db, "B", "", false)
	_, inserted, err := s.InsertEdge(ctx, db, EdgeInput{SourceNodeID: a, TargetNodeID: b, Relation: "contradicts", Confidence: Confidence(0)})
	require.NoError(t, err)
	require.True(t, inserted)

	edges, err := s.EdgesTouching(ctx, db, a)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 0.0, edges[0].Confidence)
}

func TestNodesByIDs_PreservesOrder(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()

	a, _ := s.GetOrCreateNode(ctx, db, "A", "", false)
	b, _ := s.GetOrCreateNode(ctx, db, "B", "", false)
	c, _ := s.GetOrCreateNode(ctx, db, "C", "", false)

	nodes, err := s.NodesByIDs(ctx, db, []int64{c, a, 999, b})
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{nodes[0].Name, nodes[1].Name, nodes[2].Name})
}

func TestProvenance_AppendOnly(t *testing.T) {
	s, db := testStore(t)
	ctx := context.Background()

	id, _ := s.GetOrCreateNode(ctx, db, "A", "a.md", false)
	require.NoError(t, s.AddProvenance(ctx, db, models.KGProvenance{EntityType: models.EntityNode, EntityID: id, SourceType: "obsidian", SourceRef: "a.md"}))
	require.NoError(t, s.AddProvenance(ctx, db, models.KGProvenance{EntityType: models.EntityNode, EntityID: id, SourceType: "manual", SourceRef: "ui"}))
	assert.Error(t, s.AddProvenance(ctx, db, models.KGProvenance{EntityType: "note", EntityID: id}))

	prov, err := s.Provenance(ctx, db, models.EntityNode, id)
	require.NoError(t, err)
	require.Len(t, prov, 2)
	assert.Equal(t, "obsidian", prov[0].SourceType)
	assert.Equal(t, "manual", prov[1].SourceType)
}

func TestMissingSchemaPropagates(t *testing.T) {
	db := testutil.TestDB(t)
	_, err := NewStore().GetOrCreateNode(context.Background(), db, "A", "", false)
	assert.Error(t, err)
}
