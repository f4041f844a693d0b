package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/kg"
	"github.com/starford/tutorcore/internal/models"
	"github.com/starford/tutorcore/internal/subgraph"
)

// Defaults for Options fields left zero.
const (
	DefaultK    = 5
	DefaultHops = 1
)

var tracer = otel.Tracer("github.com/starford/tutorcore/internal/retrieval")

// Options tunes one Retrieve call. Zero fields take the package defaults.
type Options struct {
	K            int
	Hops         int
	BudgetTokens int
	Strategy     subgraph.Strategy
	// VectorSearch, when set, contributes entities from similar documents.
	VectorSearch VectorSearchFunc
}

// Result is the pruned subgraph for a query. Slices are never nil.
type Result struct {
	Nodes        []models.KGNode `json:"nodes"`
	Edges        []models.KGEdge `json:"edges"`
	ContextText  string          `json:"context_text"`
	SeedEntities []string        `json:"seed_entities"`
}

// Retriever implements hybrid retrieval over a knowledge graph.
type Retriever struct {
	kg        *kg.Store
	extractor *Extractor
	dict      *DictionaryCache
	logger    *slog.Logger
}

// NewRetriever creates a Retriever. dict may be nil to skip the dictionary
// scan.
func NewRetriever(store *kg.Store, extractor *Extractor, dict *DictionaryCache, logger *slog.Logger) *Retriever {
	if extractor == nil {
		extractor = NewExtractor(false)
	}
	return &Retriever{kg: store, extractor: extractor, dict: dict, logger: logger}
}

// Retrieve extracts entities from query (plus vector hits and dictionary
// mentions), resolves them to seed nodes, expands opts.Hops rounds
// breadth-first, prunes to opts.BudgetTokens and renders the context pack.
// A query that resolves no seeds yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, conn database.DBTX, query string, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()

	opts = withDefaults(opts)
	res := &Result{Nodes: []models.KGNode{}, Edges: []models.KGEdge{}}

	entities := r.extractor.Extract(query)
	if opts.VectorSearch != nil {
		for _, doc := range r.vectorSearch(ctx, opts.VectorSearch, query, opts.K) {
			entities = Merge(entities, r.extractor.Extract(doc.Content)...)
		}
	}
	if r.dict != nil {
		dict, err := r.dict.Get(ctx, conn)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		entities = Merge(entities, dict.Scan(query)...)
	}
	res.SeedEntities = entities
	if res.SeedEntities == nil {
		res.SeedEntities = []string{}
	}

	seeds, err := r.resolveSeeds(ctx, conn, entities)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("retrieval.entities", len(entities)),
		attribute.Int("retrieval.seeds", len(seeds)),
	)
	if len(seeds) == 0 {
		return res, nil
	}

	visited, edges, err := r.expand(ctx, conn, seeds, opts.Hops)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	nodes, err := r.kg.NodesByIDs(ctx, conn, visited.ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	seedSet := make(map[int64]struct{}, len(seeds))
	for _, id := range seeds {
		seedSet[id] = struct{}{}
	}
	for i := range nodes {
		_, nodes[i].IsSeed = seedSet[nodes[i].ID]
	}

	keptNodes, keptEdges, err := subgraph.PruneWith(opts.Strategy, nodes, edges, opts.BudgetTokens)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Nodes = keptNodes
	res.Edges = keptEdges
	res.ContextText = subgraph.BuildContextPack(keptNodes, keptEdges)

	span.SetAttributes(
		attribute.Int("retrieval.visited", len(visited.ids)),
		attribute.Int("retrieval.kept_nodes", len(keptNodes)),
		attribute.Int("retrieval.kept_edges", len(keptEdges)),
	)
	return res, nil
}

// vectorSearch calls fn and swallows any failure, including a panic.
func (r *Retriever) vectorSearch(ctx context.Context, fn VectorSearchFunc, query string, k int) (docs []VectorDoc) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("retrieval: vector search panicked", slog.Any("panic", p))
			docs = nil
		}
	}()
	docs, err := fn(ctx, query, k)
	if err != nil {
		r.logger.Warn("retrieval: vector search failed", slog.String("error", err.Error()))
		return nil
	}
	return docs
}

func (r *Retriever) resolveSeeds(ctx context.Context, conn database.DBTX, entities []string) ([]int64, error) {
	var seeds []int64
	seen := make(map[int64]struct{})
	for _, ent := range entities {
		node, found, err := r.kg.FindNodeByName(ctx, conn, ent)
		if err != nil {
			return nil, fmt.Errorf("retrieval: resolve %q: %w", ent, err)
		}
		if !found {
			continue
		}
		if _, ok := seen[node.ID]; ok {
			continue
		}
		seen[node.ID] = struct{}{}
		seeds = append(seeds, node.ID)
	}
	return seeds, nil
}

// orderedSet is an insertion-ordered set of node ids.
type orderedSet struct {
	ids []int64
	has map[int64]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{has: make(map[int64]struct{})}
}

func (s *orderedSet) add(id int64) bool {
	if _, ok := s.has[id]; ok {
		return false
	}
	s.has[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

// expand walks hops rounds out from seeds. Visit order and edge order follow
// discovery, so repeated calls on the same graph give the same subgraph.
func (r *Retriever) expand(ctx context.Context, conn database.DBTX, seeds []int64, hops int) (*orderedSet, []models.KGEdge, error) {
	visited := newOrderedSet()
	for _, id := range seeds {
		visited.add(id)
	}

	var edges []models.KGEdge
	seenEdges := make(map[int64]struct{})
	frontier := append([]int64(nil), seeds...)
	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		var next []int64
		for _, id := range frontier {
			touching, err := r.kg.EdgesTouching(ctx, conn, id)
			if err != nil {
				return nil, nil, err
			}
			for _, e := range touching {
				if _, ok := seenEdges[e.ID]; !ok {
					seenEdges[e.ID] = struct{}{}
					edges = append(edges, e)
				}
				if other := e.Other(id); visited.add(other) {
					next = append(next, other)
				}
			}
		}
		frontier = next
	}
	return visited, edges, nil
}

func withDefaults(o Options) Options {
	if o.K <= 0 {
		o.K = DefaultK
	}
	if o.Hops <= 0 {
		o.Hops = DefaultHops
	}
	if o.BudgetTokens <= 0 {
		o.BudgetTokens = subgraph.DefaultBudgetTokens
	}
	if o.Strategy == "" {
		o.Strategy = subgraph.Greedy
	}
	return o
}
