package generator

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  int
		cut   bool
	}{
		{"short title", strings.Repeat("a", 40), 60, 40, false},
		{"exact title", strings.Repeat("a", 60), 60, 60, false},
		{"long title", strings.Repeat("a", 61), 60, 60, true},
		{"long subtitle", strings.Repeat("b", 300), 120, 120, true},
		{"multibyte", strings.Repeat("é", 70), 60, 60, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.limit)
			if n := utf8.RuneCountInString(got); n != tt.want {
				t.Fatalf("length = %d, want %d", n, tt.want)
			}
			if strings.HasSuffix(got, "...") != tt.cut {
				t.Fatalf("ellipsis = %v, want %v (%q)", !tt.cut, tt.cut, got)
			}
			if tt.cut && !strings.HasPrefix(tt.in, strings.TrimSuffix(got, "...")) {
				t.Fatalf("prefix not preserved: %q", got)
			}
		})
	}
}

func TestPostProcess(t *testing.T) {
	long := strings.Repeat("x", 80)
	raw := "```json\n{\"title\":\"" + long + "\",\"subtitle\":\"Short\",\"content\":\"<h2>Hi</h2><p>Body</p>\"}\n```"

	a, err := PostProcess(raw, DefaultLimits())
	if err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	if a.Title != strings.Repeat("x", 57)+"..." {
		t.Fatalf("title = %q", a.Title)
	}
	if a.Subtitle != "Short" {
		t.Fatalf("subtitle = %q", a.Subtitle)
	}
	if a.Content != "<h2>Hi</h2><p>Body</p>" {
		t.Fatalf("content = %q", a.Content)
	}
}

func TestPostProcessRendersMarkdown(t *testing.T) {
	raw := `{"title":"T","subtitle":"S","content":"## Heading\n\nSome *text*"}`
	a, err := PostProcess(raw, DefaultLimits())
	if err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	if !strings.Contains(a.Content, "<h2>Heading</h2>") || !strings.Contains(a.Content, "<em>text</em>") {
		t.Fatalf("markdown not rendered: %q", a.Content)
	}
}

func TestPostProcessMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"prose":         "Sorry, I cannot help with that.",
		"broken json":   `{"title": "x",`,
		"missing title": `{"subtitle":"s","content":"<p>c</p>"}`,
		"empty content": `{"title":"t","subtitle":"s","content":"  "}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := PostProcess(raw, DefaultLimits())
			if !errors.Is(err, ErrMalformedArticle) {
				t.Fatalf("expected ErrMalformedArticle, got %v", err)
			}
		})
	}
}

func TestDigestAndTitle(t *testing.T) {
	md := "# Heading One\n\n![img](a.png)\n\nFirst   paragraph here.\n\nSecond."
	if got := ExtractTitle(md); got != "Heading One" {
		t.Fatalf("ExtractTitle = %q", got)
	}
	if got := Digest(md, 120); got != "First paragraph here." {
		t.Fatalf("Digest = %q", got)
	}
}
