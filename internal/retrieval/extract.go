// Package retrieval resolves concept mentions in a query to knowledge graph
// nodes, expands them breadth-first and packs the result for a prompt.
package retrieval

import (
	"regexp"
	"strings"

	"github.com/orsinium-labs/stopwords"
)

var (
	backtickRe  = regexp.MustCompile("`([^`]+)`")
	titleCaseRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,3}\b`)
)

// Extractor pulls candidate entity names out of free text: backtick spans
// verbatim, then phrases of one to four Title-Case words.
type Extractor struct {
	stop *stopwords.Stopwords
}

// NewExtractor creates an Extractor. With dropStopwords, single-word
// candidates that are English stopwords ("What", "The") are discarded.
func NewExtractor(dropStopwords bool) *Extractor {
	e := &Extractor{}
	if dropStopwords {
		e.stop = stopwords.MustGet("en")
	}
	return e
}

// Extract returns candidates deduplicated case-insensitively in first-seen
// order.
func (e *Extractor) Extract(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}

	for _, m := range backtickRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range titleCaseRe.FindAllString(text, -1) {
		if e.isStopword(m) {
			continue
		}
		add(m)
	}
	return out
}

// Merge appends the candidates of extra not already present in base.
func Merge(base []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range extra {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok || key == "" {
			continue
		}
		seen[key] = struct{}{}
		base = append(base, s)
	}
	return base
}

func (e *Extractor) isStopword(candidate string) bool {
	if e.stop == nil || strings.ContainsAny(candidate, " \t\n") {
		return false
	}
	return e.stop.Contains(strings.ToLower(candidate))
}
