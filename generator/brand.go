package generator

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Brand rewrites mentions of a product name into an uppercase link.
type Brand struct {
	Token string
	URL   string
}

func DefaultBrand() Brand {
	return Brand{Token: "qloga", URL: "https://www.qloga.com"}
}

func (b Brand) pattern() *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(b.Token) + `\b`)
}

func (b Brand) link() string {
	return `<a href="` + html.EscapeString(b.URL) + `">` + html.EscapeString(strings.ToUpper(b.Token)) + `</a>`
}

// Format links every case-insensitive mention of the token. Mentions already
// inside an <a> are left alone, except that a link whose whole text is the
// token gets normalized, so Format(Format(s)) == Format(s).
func (b Brand) Format(s string) string {
	if b.Token == "" {
		return s
	}
	re := b.pattern()
	if !re.MatchString(s) {
		return s
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s), body)
	if err != nil {
		return s
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	doc := goquery.NewDocumentFromNode(root)
	upper := strings.ToUpper(b.Token)

	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		if strings.EqualFold(strings.TrimSpace(a.Text()), b.Token) {
			a.SetAttr("href", b.URL)
			a.SetText(upper)
		}
	})

	doc.Find("*").AddBack().Contents().Each(func(_ int, sel *goquery.Selection) {
		n := sel.Get(0)
		if n.Type != html.TextNode || !re.MatchString(n.Data) {
			return
		}
		if sel.ParentsFiltered("a, script, style, code, pre").Length() > 0 {
			return
		}
		sel.ReplaceWithHtml(b.linkify(re, n.Data))
	})

	out, err := doc.Html()
	if err != nil {
		return s
	}
	return out
}

func (b Brand) linkify(re *regexp.Regexp, text string) string {
	var sb strings.Builder
	last := 0
	for _, m := range re.FindAllStringIndex(text, -1) {
		sb.WriteString(html.EscapeString(text[last:m[0]]))
		sb.WriteString(b.link())
		last = m[1]
	}
	sb.WriteString(html.EscapeString(text[last:]))
	return sb.String()
}

// FormatArticle applies Format to every text field.
func (b Brand) FormatArticle(a Article) Article {
	return Article{
		Title:    b.Format(a.Title),
		Subtitle: b.Format(a.Subtitle),
		Content:  b.Format(a.Content),
	}
}
