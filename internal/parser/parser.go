// Package parser extracts frontmatter, wikilinks, aliases, and a short
// definition from Markdown notes.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	headingRe  = regexp.MustCompile(`^#{1,6}\s`)
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Links       []string
	Aliases     []string
	Title       string
	Definition  string
}

// Parse extracts frontmatter, body, wikilinks, aliases, title and definition
// from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(body),
		Aliases:     extractAliases(fm),
		Title:       deriveTitle(fm, body),
		Definition:  deriveDefinition(fm, body),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Missing or invalid frontmatter leaves everything in
// the body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// extractLinks returns deduplicated wikilink targets in first-seen order.
// [[Target|Alias]] and [[Target#Heading]] both yield Target.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		if i := strings.Index(target, "#"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractAliases reads the "aliases" (or "alias") frontmatter field, accepting
// either a list or a single string.
func extractAliases(fm map[string]any) []string {
	if fm == nil {
		return nil
	}
	raw, ok := fm["aliases"]
	if !ok {
		raw = fm["alias"]
	}

	var candidates []string
	switch v := raw.(type) {
	case string:
		candidates = append(candidates, v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	var out []string
	for _, s := range candidates {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if fm != nil {
		if s, ok := fm["title"].(string); ok && s != "" {
			return s
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// deriveDefinition returns the frontmatter "definition" or "summary", otherwise
// the first body paragraph that is not a heading, with wikilink brackets
// removed.
func deriveDefinition(fm map[string]any, body string) string {
	if fm != nil {
		for _, key := range []string{"definition", "summary"} {
			if s, ok := fm[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}

	var para []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			if len(para) > 0 {
				return unlink(strings.Join(para, " "))
			}
		case headingRe.MatchString(trimmed):
			if len(para) > 0 {
				return unlink(strings.Join(para, " "))
			}
		default:
			para = append(para, trimmed)
		}
	}
	return unlink(strings.Join(para, " "))
}

func unlink(s string) string {
	return wikilinkRe.ReplaceAllStringFunc(s, func(m string) string {
		inner := m[2 : len(m)-2]
		if i := strings.Index(inner, "|"); i >= 0 {
			return inner[i+1:]
		}
		return inner
	})
}
