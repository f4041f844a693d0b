package parser

import (
	"testing"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Cardiac Output\naliases:\n  - CO\n  - Q\n---\n# Cardiac Output\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Cardiac Output" {
		t.Errorf("title = %q, want %q", r.Title, "Cardiac Output")
	}
	if len(r.Aliases) != 2 || r.Aliases[0] != "CO" || r.Aliases[1] != "Q" {
		t.Errorf("aliases = %v, want [CO Q]", r.Aliases)
	}
	if r.Body != "# Cardiac Output\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
	if r.Definition != "Body text." {
		t.Errorf("definition = %q", r.Definition)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	r, err := Parse([]byte("# Just a heading\nSome text.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	r, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}

func TestExtractLinks_Basic(t *testing.T) {
	body := "See [[Note A]] and [[Note B|alias]].\nAlso [[Note A]] again and [[Note C#Section]]."
	links := extractLinks(body)
	if len(links) != 3 {
		t.Fatalf("len(links) = %d, want 3", len(links))
	}
	if links[0] != "Note A" || links[1] != "Note B" || links[2] != "Note C" {
		t.Errorf("links = %v", links)
	}
}

func TestExtractLinks_EmptyTarget(t *testing.T) {
	links := extractLinks("see [[ ]] and [[|alias]]")
	if len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestExtractAliases_SingleString(t *testing.T) {
	got := extractAliases(map[string]any{"alias": " SV "})
	if len(got) != 1 || got[0] != "SV" {
		t.Errorf("aliases = %v, want [SV]", got)
	}
}

func TestDeriveDefinition_SkipsHeadingsAndUnlinks(t *testing.T) {
	body := "# Stroke Volume\n\nVolume ejected per beat,\nset by [[Preload|preload]] and [[Afterload]].\n\nSecond paragraph."
	got := deriveDefinition(nil, body)
	want := "Volume ejected per beat, set by preload and Afterload."
	if got != want {
		t.Errorf("definition = %q, want %q", got, want)
	}
}

func TestDeriveDefinition_FrontmatterWins(t *testing.T) {
	got := deriveDefinition(map[string]any{"definition": "Beats per minute."}, "Other text.")
	if got != "Beats per minute." {
		t.Errorf("definition = %q", got)
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	title := deriveTitle(nil, "some text\n# My Heading\nmore")
	if title != "My Heading" {
		t.Errorf("title = %q, want %q", title, "My Heading")
	}
}
