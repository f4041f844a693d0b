package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
	"github.com/dgraph-io/ristretto"

	"github.com/starford/tutorcore/internal/database"
	"github.com/starford/tutorcore/internal/kg"
)

// Dictionary finds known concept names in text regardless of case.
type Dictionary struct {
	ac    *ahocorasick.Automaton
	names []string // pattern id -> display name
}

// NewDictionary compiles an automaton over names. Duplicate names (ignoring
// case) keep their first spelling.
func NewDictionary(names []string) (*Dictionary, error) {
	d := &Dictionary{}
	var patterns []string
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		patterns = append(patterns, key)
		d.names = append(d.names, strings.TrimSpace(n))
	}
	if len(patterns) == 0 {
		return d, nil
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, fmt.Errorf("retrieval: build dictionary: %w", err)
	}
	d.ac = ac
	return d, nil
}

// Scan returns the display names of every dictionary entry mentioned in text
// as a whole word, in order of first appearance.
func (d *Dictionary) Scan(text string) []string {
	if d == nil || d.ac == nil {
		return nil
	}
	haystack := []byte(strings.ToLower(text))
	var out []string
	seen := make(map[int]struct{})
	for _, m := range d.ac.FindAllOverlapping(haystack) {
		if !wordBoundary(haystack, m.Start, m.End) {
			continue
		}
		if _, ok := seen[m.PatternID]; ok {
			continue
		}
		seen[m.PatternID] = struct{}{}
		out = append(out, d.names[m.PatternID])
	}
	return out
}

func wordBoundary(b []byte, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRune(b[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(b) {
		r, _ := utf8.DecodeRune(b[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

const dictionaryKey = "dictionary"

// DictionaryCache keeps the compiled dictionary between queries. Reset it
// whenever the graph changes.
type DictionaryCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
	kg    *kg.Store
}

// NewDictionaryCache creates a cache whose dictionary is rebuilt at most every
// ttl, or after Reset.
func NewDictionaryCache(store *kg.Store, ttl time.Duration) (*DictionaryCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100,
		MaxCost:     8,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: new dictionary cache: %w", err)
	}
	return &DictionaryCache{cache: c, ttl: ttl, kg: store}, nil
}

// Get returns the cached dictionary, compiling it from the graph on a miss.
func (c *DictionaryCache) Get(ctx context.Context, conn database.DBTX) (*Dictionary, error) {
	if v, ok := c.cache.Get(dictionaryKey); ok {
		if d, ok := v.(*Dictionary); ok {
			return d, nil
		}
	}
	nodes, err := c.kg.AllNodes(ctx, conn)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	d, err := NewDictionary(names)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(dictionaryKey, d, 1, c.ttl)
	c.cache.Wait()
	return d, nil
}

// Reset drops the compiled dictionary.
func (c *DictionaryCache) Reset() {
	c.cache.Del(dictionaryKey)
}

// Close releases the cache goroutines.
func (c *DictionaryCache) Close() {
	c.cache.Close()
}
