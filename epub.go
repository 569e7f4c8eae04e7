// EPUB export: a cover section followed by one XHTML section per page, with
// the page picture and its attribution.
package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	epub "github.com/go-shiori/go-epub"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const epubCSS = `body { margin: 1em; text-align: center; font-family: sans-serif; }
h1 { font-size: 1.6em; margin: 0.5em 0; }
img { max-width: 100%; height: auto; }
.text { font-size: 1.3em; line-height: 1.5; }
.credit { font-size: 0.7em; color: #666; margin-top: 2em; }`

// voidElements are HTML elements that must be self-closing in XHTML.
var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Wbr: true,
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func textElement(a atom.Atom, text string, attrs ...html.Attribute) *html.Node {
	n := element(a, attrs...)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

// credit is the attribution line for a page picture, or "" when the page
// has none.
func credit(img *ResolvedImage) string {
	if img == nil {
		return ""
	}
	m := img.Metadata
	name := m.Title
	if name == "" {
		name = strings.TrimSuffix(img.Name, filepath.Ext(img.Name))
	}
	s := "Picture: " + name
	if m.Author != "" {
		s += " by " + m.Author
	}
	if m.License != "" {
		s += " (" + m.License + ")"
	}
	return s
}

// pageNodes builds the body of one page: heading, picture, text and
// attribution. imgSrc is where the picture will be found, or "" for none.
func pageNodes(p *Page, imgSrc string) []*html.Node {
	title := p.Title.Effective()
	nodes := []*html.Node{textElement(atom.H1, title)}
	if imgSrc != "" {
		nodes = append(nodes, element(atom.Img, attr("src", imgSrc), attr("alt", title)))
	}
	if text := p.Text.Effective(); text != "" {
		nodes = append(nodes, textElement(atom.P, text, attr("class", "text")))
	}
	if c := credit(p.Image); c != "" {
		nodes = append(nodes, textElement(atom.P, c, attr("class", "credit")))
	}
	return nodes
}

func renderNodes(nodes []*html.Node) string {
	var buf bytes.Buffer
	for _, n := range nodes {
		renderXHTML(&buf, n)
		buf.WriteByte('\n')
	}
	return buf.String()
}

// renderXHTML renders an html.Node tree as XHTML (self-closing void elements).
func renderXHTML(buf *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(html.EscapeString(n.Data))
	case html.ElementNode:
		buf.WriteByte('<')
		buf.WriteString(n.Data)
		for _, a := range n.Attr {
			buf.WriteByte(' ')
			buf.WriteString(a.Key)
			buf.WriteString(`="`)
			buf.WriteString(html.EscapeString(a.Val))
			buf.WriteByte('"')
		}
		if voidElements[n.DataAtom] && n.FirstChild == nil {
			buf.WriteString("/>")
			return
		}
		buf.WriteByte('>')
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXHTML(buf, c)
		}
		buf.WriteString("</")
		buf.WriteString(n.Data)
		buf.WriteByte('>')
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXHTML(buf, c)
		}
	}
}

// addPagePicture registers the scaled picture for a page with the book and
// returns its internal path. Pictures that cannot be scaled are left out
// with a warning.
func addPagePicture(e *epub.Epub, p *Page, idx int) string {
	if p.Image == nil {
		return ""
	}
	scaled, err := scaleImage(p.Image.Path)
	if err != nil {
		fmt.Fprintf(logOut, "Warning: leaving out picture for %q: %v\n", p.Title.Effective(), err)
		return ""
	}
	filename := fmt.Sprintf("page%03d%s", idx, strings.ToLower(filepath.Ext(scaled)))
	internal, err := e.AddImage(scaled, filename)
	if err != nil {
		fmt.Fprintf(logOut, "Warning: failed to add image %s: %v\n", filename, err)
		return ""
	}
	return internal
}

// generateEPUB writes the pages as an EPUB 3 book.
func generateEPUB(bookTitle string, pages []*Page, outputPath string) error {
	fmt.Fprintf(logOut, "Writing EPUB to %s\n", outputPath)

	e, err := epub.NewEpub(bookTitle)
	if err != nil {
		return fmt.Errorf("creating epub: %w", err)
	}
	e.SetLang("en")
	e.SetAuthor("picturebook")

	cssDataURI := "data:text/css;base64," + base64.StdEncoding.EncodeToString([]byte(epubCSS))
	cssPath, err := e.AddCSS(cssDataURI, "styles.css")
	if err != nil {
		fmt.Fprintf(logOut, "Warning: could not add CSS: %v\n", err)
		cssPath = ""
	}

	cover, err := generateCover(bookTitle, pages)
	if err != nil {
		fmt.Fprintf(logOut, "Warning: could not generate cover: %v\n", err)
	} else {
		dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(cover)
		if coverPath, err := e.AddImage(dataURI, "cover.jpg"); err == nil {
			body := renderNodes([]*html.Node{element(atom.Img, attr("src", coverPath), attr("alt", bookTitle))})
			if _, err := e.AddSection(body, bookTitle, "cover.xhtml", cssPath); err != nil {
				fmt.Fprintf(logOut, "Warning: could not add cover: %v\n", err)
			}
		}
	}

	for i, p := range pages {
		src := addPagePicture(e, p, i+1)
		body := renderNodes(pageNodes(p, src))
		filename := fmt.Sprintf("page%03d.xhtml", i+1)
		if _, err := e.AddSection(body, p.Title.Effective(), filename, cssPath); err != nil {
			return fmt.Errorf("adding page %q: %w", p.Title.Effective(), err)
		}
	}

	if err := e.Write(outputPath); err != nil {
		return fmt.Errorf("writing epub: %w", err)
	}
	return nil
}
