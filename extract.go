// Text extraction: article paragraphs, naive sentence splitting and the
// summaries used as page text.
package main

import (
	"regexp"
	"strings"
)

var (
	// Matches citation markers like [1] or [citation needed]
	citationRe = regexp.MustCompile(`\[.*?\]`)
	// Matches parenthetical asides, including the space before them
	asideRe = regexp.MustCompile(` \(.*?\)`)
	// Matches a disambiguation qualifier such as " (planet)"
	qualifierRe = regexp.MustCompile(` \(.*\)`)
)

// infoboxSelector matches the boxed side regions whose paragraphs duplicate
// captions rather than article prose.
const infoboxSelector = "table.infobox, table.sidebar"

// processTitle strips a disambiguation qualifier: "Mercury (planet)"
// becomes "Mercury". Applying it twice changes nothing.
func processTitle(title string) string {
	return qualifierRe.ReplaceAllString(title, "")
}

// paragraphs returns the text of every <p> in the main content region,
// excluding those that also appear in an infobox, with citation markers and
// parenthetical asides removed. Empty paragraphs are dropped.
func (a *Article) paragraphs() []string {
	doc, err := a.document()
	if err != nil {
		return nil
	}

	inInfobox := map[string]bool{}
	for _, box := range doc.Select(infoboxSelector) {
		for _, p := range box.Select("p") {
			inInfobox[normalizeSpace(p.Text())] = true
		}
	}

	var out []string
	for _, p := range doc.Select(".mw-parser-output p") {
		text := normalizeSpace(p.Text())
		if text == "" || inInfobox[text] {
			continue
		}
		text = citationRe.ReplaceAllString(text, "")
		text = asideRe.ReplaceAllString(text, "")
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}

// splitSentences breaks paragraphs into sentences on the literal ". ".
// This is deliberately naive: abbreviations such as "P. T. tigris" are
// split too.
func splitSentences(paragraphs []string) []string {
	var sentences []string
	for _, p := range paragraphs {
		for _, s := range strings.Split(p, ". ") {
			if s = strings.TrimSpace(s); s != "" {
				sentences = append(sentences, s)
			}
		}
	}
	return sentences
}

// summary returns the page text for an article: the first paragraph in
// Full mode, the first sentence in Short mode, or "" when the article has
// no prose at all.
func (a *Article) summary(mode summaryMode) string {
	paragraphs := a.paragraphs()
	if mode == summaryFull {
		if len(paragraphs) == 0 {
			return ""
		}
		return paragraphs[0]
	}

	sentences := splitSentences(paragraphs)
	if len(sentences) == 0 {
		return ""
	}
	return sentences[0]
}

// normalizeSpace collapses runs of whitespace into single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
