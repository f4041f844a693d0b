package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/orsinium-labs/stopwords"
	chromem "github.com/philippgille/chromem-go"

	"github.com/starford/tutorcore/internal/models"
)

// VectorDoc is one vector search hit. Content is run through the entity
// extractor.
type VectorDoc struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// VectorSearchFunc returns up to k documents similar to query.
type VectorSearchFunc func(ctx context.Context, query string, k int) ([]VectorDoc, error)

const (
	conceptCollection = "concepts"
	embeddingDims     = 256

	// DefaultMinSimilarity drops hits that share no content words with the
	// query under HashEmbedder.
	DefaultMinSimilarity float32 = 0.2
)

var embedStopwords = stopwords.MustGet("en")

// contentWords returns the lower-case words of text that are not English
// stopwords.
func contentWords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if !embedStopwords.Contains(w) {
			out = append(out, w)
		}
	}
	return out
}

// HashEmbedder embeds text as a normalized bag of hashed lower-case content
// words. It needs no model and gives usable lexical similarity for concept
// notes. Text without content words maps to a fixed unit vector.
func HashEmbedder(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	for _, w := range contentWords(text) {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%embeddingDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

// VectorIndex is an in-memory chromem-go collection over concept names and
// definitions.
type VectorIndex struct {
	db            *chromem.DB
	embed         chromem.EmbeddingFunc
	minSimilarity float32

	mu  sync.RWMutex
	col *chromem.Collection
}

// VectorOption configures a VectorIndex.
type VectorOption func(*VectorIndex)

// WithMinSimilarity sets the cosine similarity a hit needs to be returned.
func WithMinSimilarity(s float32) VectorOption {
	return func(v *VectorIndex) {
		v.minSimilarity = s
	}
}

// NewVectorIndex creates an empty index. A nil embed uses HashEmbedder.
func NewVectorIndex(embed chromem.EmbeddingFunc, opts ...VectorOption) *VectorIndex {
	if embed == nil {
		embed = HashEmbedder
	}
	v := &VectorIndex{db: chromem.NewDB(), embed: embed, minSimilarity: DefaultMinSimilarity}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Rebuild replaces the indexed documents with one per node.
func (v *VectorIndex) Rebuild(ctx context.Context, nodes []models.KGNode) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.col != nil {
		if err := v.db.DeleteCollection(conceptCollection); err != nil {
			return fmt.Errorf("retrieval: drop vector collection: %w", err)
		}
		v.col = nil
	}
	col, err := v.db.CreateCollection(conceptCollection, nil, v.embed)
	if err != nil {
		return fmt.Errorf("retrieval: create vector collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(nodes))
	for _, n := range nodes {
		docs = append(docs, chromem.Document{
			ID:      strconv.FormatInt(n.ID, 10),
			Content: conceptContent(n),
			Metadata: map[string]string{
				"name":      n.Name,
				"link_only": strconv.FormatBool(n.LinkOnly),
			},
		})
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return fmt.Errorf("retrieval: add vector documents: %w", err)
		}
	}
	v.col = col
	return nil
}

// Count returns the number of indexed documents.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.col == nil {
		return 0
	}
	return v.col.Count()
}

// Search implements VectorSearchFunc. Hits below the minimum similarity are
// dropped, so a query unrelated to every concept returns nothing.
func (v *VectorIndex) Search(ctx context.Context, query string, k int) ([]VectorDoc, error) {
	v.mu.RLock()
	col := v.col
	v.mu.RUnlock()
	if col == nil || k <= 0 || len(contentWords(query)) == 0 {
		return nil, nil
	}
	if n := col.Count(); k > n {
		k = n
	}
	if k == 0 {
		return nil, nil
	}
	res, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector query: %w", err)
	}
	out := make([]VectorDoc, 0, len(res))
	for _, r := range res {
		if r.Similarity < v.minSimilarity {
			continue
		}
		out = append(out, VectorDoc{Content: r.Content, Metadata: r.Metadata})
	}
	return out, nil
}

// conceptContent renders a node for embedding. The backticked name lets the
// entity extractor recover it verbatim from a hit.
func conceptContent(n models.KGNode) string {
	if n.Definition == "" {
		return "`" + n.Name + "`"
	}
	return "`" + n.Name + "`: " + n.Definition
}
