package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const ellipsis = "..."

var (
	fenceRe     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	htmlBlockRe = regexp.MustCompile(`(?i)<(h[1-6]|p|ul|ol|li|div|section|blockquote|table|figure)[\s>]`)
)

// PostProcess decodes the model output into an Article and enforces length limits.
func PostProcess(raw string, limits Limits) (Article, error) {
	body := extractJSON(raw)
	if body == "" {
		return Article{}, fmt.Errorf("%w: no JSON object in model output", ErrMalformedArticle)
	}

	var a Article
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return Article{}, fmt.Errorf("%w: %v", ErrMalformedArticle, err)
	}
	a.Title = strings.TrimSpace(a.Title)
	a.Subtitle = strings.TrimSpace(a.Subtitle)
	a.Content = strings.TrimSpace(a.Content)
	if a.Title == "" || a.Content == "" {
		return Article{}, fmt.Errorf("%w: title and content are required", ErrMalformedArticle)
	}

	a.Title = Truncate(a.Title, limits.Title)
	a.Subtitle = Truncate(a.Subtitle, limits.Subtitle)

	// models sometimes answer in Markdown instead of HTML
	if !htmlBlockRe.MatchString(a.Content) {
		html, err := MarkdownToHTML(a.Content)
		if err != nil {
			return Article{}, fmt.Errorf("render markdown content: %w", err)
		}
		a.Content = html
	}
	return a, nil
}

// Truncate shortens s to at most limit characters, ending with "..." when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	keep := limit - len(ellipsis)
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + ellipsis
}

func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); len(m) == 2 {
		s = m[1]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// MarkdownToHTML renders GitHub-flavoured Markdown.
func MarkdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Digest is the first paragraph of plain text, capped at limit characters.
func Digest(md string, limit int) string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "![") {
			continue
		}
		return Truncate(strings.Join(strings.Fields(line), " "), limit)
	}
	return ""
}

// ExtractTitle returns the first level-one heading of a Markdown document.
func ExtractTitle(md string) string {
	re := regexp.MustCompile(`(?m)^#\s+(.+)$`)
	m := re.FindStringSubmatch(md)
	if len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}
