package catalog

import (
	"strings"

	"golang.org/x/net/html"
)

// CleanHTML strips markup from a product body, joining text nodes with single
// spaces. Unparseable input is returned as-is rather than dropped.
func CleanHTML(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return text
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(trimmed)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}
