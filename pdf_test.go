package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// testPage builds a page, writing an image of the given size into dir when
// w and h are positive.
func testPage(t *testing.T, dir, title, text string, w, h int) *Page {
	t.Helper()
	p := &Page{Title: overridable{Source: title}, Text: overridable{Source: text}}
	if w > 0 && h > 0 {
		path := filepath.Join(dir, title+".jpg")
		require.NoError(t, os.WriteFile(path, makeJPEG(w, h, colorOrange), 0o644))
		p.Image = &ResolvedImage{
			Name: title + ".jpg",
			Path: path,
			Metadata: ImageMetadata{
				Title:   title,
				Author:  "Jane Doe",
				License: "CC BY-SA 4.0",
			},
		}
	}
	return p
}

func TestGeneratePDF_OnePagePerBookPagePlusCover(t *testing.T) {
	dir := t.TempDir()
	pages := []*Page{
		testPage(t, dir, "Tiger", "The tiger is the largest cat.", 800, 600),
		testPage(t, dir, "Lion", "", 0, 0),
		testPage(t, dir, "Cheetah", strings.Repeat("The cheetah runs very fast across the grass. ", 30), 300, 900),
	}
	out := filepath.Join(dir, "Big Cats.pdf")

	require.NoError(t, generatePDF("Big Cats", pages, out, defaultBookConfig()))

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, len(pages)+1, n)

	assert.FileExists(t, scaledPath(pages[0].Image.Path))
	assert.FileExists(t, scaledPath(pages[2].Image.Path))
}

func TestGeneratePDF_CoverOnly(t *testing.T) {
	out := filepath.Join(t.TempDir(), "Empty.pdf")
	require.NoError(t, generatePDF("Nothing Here", nil, out, singleSentencePerPage()))

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGeneratePDF_UnicodeAndOverrides(t *testing.T) {
	dir := t.TempDir()
	p := testPage(t, dir, "Cafe", "Un café à Paris.", 0, 0)
	p.Title.Override = strPtr("Café Noir")
	out := filepath.Join(dir, "Food.pdf")

	require.NoError(t, generatePDF("Les Cafés", []*Page{p}, out, defaultBookConfig()))
	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGeneratePDF_UnreadableImageFails(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "Broken.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not a jpeg"), 0o644))
	p := &Page{Title: overridable{Source: "Broken"}, Image: &ResolvedImage{Name: "Broken.jpg", Path: bad}}

	err := generatePDF("Bad", []*Page{p}, filepath.Join(dir, "Bad.pdf"), defaultBookConfig())
	require.Error(t, err)
}

func TestMeasure_WrapsToColumn(t *testing.T) {
	r := newPDFRenderer("Test", defaultBookConfig())
	short := r.measure("Tiger", 24)
	assert.Len(t, short.lines, 1)

	long := r.measure(strings.Repeat("word ", 100), 12)
	assert.Greater(t, len(long.lines), 1)
	assert.InDelta(t, float64(len(long.lines))*12*lineSpacing, long.height(), 0.001)
}

func TestGeneratePDF_DropsCharactersOutsideBMP(t *testing.T) {
	dir := t.TempDir()
	pages := []*Page{
		testPage(t, dir, "Tiger", "The tiger 🐯 is a big cat.", 800, 600),
		testPage(t, dir, "Variable", "", 0, 0),
	}
	pages[1].Title = overridable{Source: "𝑥 (variable)"}
	out := filepath.Join(dir, "Cats.pdf")

	require.NoError(t, generatePDF("Cats 🐾", pages, out, defaultBookConfig()))

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPDFText(t *testing.T) {
	assert.Equal(t, "The tiger is a big cat.", pdfText("The tiger 🐯 is a big cat."))
	assert.Equal(t, "(variable)", pdfText("𝑥 (variable)"))
	assert.Equal(t, "Café Noir\nline two", pdfText("Café Noir\nline two"))
	assert.Empty(t, pdfText("🐯"))
}

func TestCoverRect(t *testing.T) {
	cfg := BookConfig{PageWidth: 600, PageHeight: 400}

	tests := []struct {
		name       string
		imgW, imgH int
		x, y, w, h float64
	}{
		{"tall image overflows vertically", 100, 400, 0, -1000, 600, 2400},
		{"wide image overflows horizontally", 800, 100, -1300, 0, 3200, 400},
		{"same aspect fills exactly", 300, 200, 0, 0, 600, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, w, h := coverRect(cfg, tt.imgW, tt.imgH)
			assert.InDelta(t, tt.x, x, 0.001)
			assert.InDelta(t, tt.y, y, 0.001)
			assert.InDelta(t, tt.w, w, 0.001)
			assert.InDelta(t, tt.h, h, 0.001)
			assert.GreaterOrEqual(t, w, cfg.PageWidth)
			assert.GreaterOrEqual(t, h, cfg.PageHeight)
		})
	}
}

func TestBodyTop_AnchorsToBottomPadding(t *testing.T) {
	cfg := BookConfig{PageWidth: 600, PageHeight: 400, Padding: 20}

	one := textBlock{lines: []string{"Tiger"}, lineHeight: 14.4}
	five := textBlock{lines: []string{"a", "b", "c", "d", "e"}, lineHeight: 14.4}

	assert.InDelta(t, 365.6, bodyTop(cfg, one.height()), 0.001)
	assert.InDelta(t, 308, bodyTop(cfg, five.height()), 0.001)
	for _, b := range []textBlock{one, five} {
		assert.InDelta(t, cfg.PageHeight-cfg.Padding, bodyTop(cfg, b.height())+b.height(), 0.001)
	}

	assert.Equal(t, cfg.Padding, bodyTop(cfg, 500))
}

func TestTextBlock_Fit(t *testing.T) {
	b := textBlock{lines: strings.Split("a b c d e f g h i j", " "), lineHeight: 14.4}

	assert.Len(t, b.fit(50).lines, 3)
	assert.Len(t, b.fit(1000).lines, 10)
	assert.Empty(t, b.fit(-5).lines)
	assert.Len(t, b.lines, 10, "fit must not modify the receiver")
}

func TestGeneratePDF_OverlongTextStaysOnOnePage(t *testing.T) {
	dir := t.TempDir()
	p := testPage(t, dir, "Tiger", strings.Repeat("The tiger is a very large striped cat. ", 400), 800, 600)
	out := filepath.Join(dir, "Long.pdf")

	require.NoError(t, generatePDF("Long", []*Page{p}, out, defaultBookConfig()))

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r := newPDFRenderer("Long", defaultBookConfig())
	cfg := defaultBookConfig()
	body := r.measure(p.Text.Effective(), cfg.TextFontSize).fit(cfg.PageHeight - 2*cfg.Padding)
	assert.GreaterOrEqual(t, bodyTop(cfg, body.height()), cfg.Padding)
}
