package sources

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText strips markup from a rendered HTML fragment. Block elements and
// line breaks become newlines; runs of blank lines collapse to one.
func PlainText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	if !strings.ContainsAny(html, "<&") {
		return strings.TrimSpace(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, li, blockquote, pre, div, h1, h2, h3, h4, h5, h6").AfterHtml("\n")
	doc.Find("script, style").Remove()
	return collapseLines(doc.Text())
}

func collapseLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
