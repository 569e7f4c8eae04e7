package main

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlNode is the small slice of an HTML parser the extractors rely on:
// CSS selection, attribute reads and text content. Keeping the extractors
// behind it means the concrete parser can change without touching them.
type htmlNode interface {
	Select(selector string) []htmlNode
	Attr(name string) string
	Text() string
}

// gqNode adapts a goquery selection to htmlNode.
type gqNode struct {
	sel *goquery.Selection
}

// parseHTML parses an HTML fragment into a queryable document.
func parseHTML(markup string) (htmlNode, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return gqNode{sel: doc.Selection}, nil
}

func (n gqNode) Select(selector string) []htmlNode {
	var out []htmlNode
	n.sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, gqNode{sel: s})
	})
	return out
}

func (n gqNode) Attr(name string) string {
	return n.sel.AttrOr(name, "")
}

func (n gqNode) Text() string {
	return n.sel.Text()
}

// htmlToText strips markup from an HTML fragment and collapses whitespace.
// Unparsable input comes back trimmed but otherwise untouched.
func htmlToText(fragment string) string {
	doc, err := parseHTML(fragment)
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
