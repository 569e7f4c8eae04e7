// Markdown export: the same page markup as the EPUB, converted to
// CommonMark with pictures linked from the cache directory.
package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/dom"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"golang.org/x/net/html"
)

var (
	mdConverter     *converter.Converter
	mdConverterOnce sync.Once
)

// getMarkdownConverter returns a shared converter whose img renderer wraps
// local paths in angle brackets, since cache paths often contain spaces.
func getMarkdownConverter() *converter.Converter {
	mdConverterOnce.Do(func() {
		mdConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		)
		// PriorityEarly (100) runs before the commonmark plugin (PriorityStandard 500).
		mdConverter.Register.RendererFor("img", converter.TagTypeInline,
			func(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
				src := dom.GetAttributeOr(n, "src", "")
				if src == "" || strings.Contains(src, "://") {
					return converter.RenderTryNext
				}
				alt := strings.TrimSpace(dom.GetAttributeOr(n, "alt", ""))
				alt = strings.NewReplacer("[", `\[`, "]", `\]`).Replace(alt)
				w.WriteString("![" + alt + "](<" + src + ">)")
				return converter.RenderSuccess
			},
			converter.PriorityEarly,
		)
	})
	return mdConverter
}

// pageToMarkdown converts one page to Markdown.
func pageToMarkdown(p *Page) (string, error) {
	src := ""
	if p.Image != nil {
		src = p.Image.Path
	}
	md, err := getMarkdownConverter().ConvertString(renderNodes(pageNodes(p, src)))
	if err != nil {
		return "", fmt.Errorf("markdown conversion: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// pagesToMarkdown renders the whole book as one Markdown document: the
// title, then each page separated by a horizontal rule.
func pagesToMarkdown(bookTitle string, pages []*Page) (string, error) {
	parts := []string{"# " + bookTitle}
	for _, p := range pages {
		md, err := pageToMarkdown(p)
		if err != nil {
			return "", fmt.Errorf("page %q: %w", p.Title.Effective(), err)
		}
		parts = append(parts, md)
	}
	return strings.Join(parts, "\n\n---\n\n") + "\n", nil
}

func generateMarkdown(bookTitle string, pages []*Page, outputPath string) error {
	fmt.Fprintf(logOut, "Writing Markdown to %s\n", outputPath)
	md, err := pagesToMarkdown(bookTitle, pages)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing markdown: %w", err)
	}
	return nil
}
