package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI runs the command line against the fake with a fresh cache.
func runCLI(t *testing.T, fw *fakeWiki, cacheDir string, args ...string) (string, error) {
	t.Helper()
	cfg := writeFile(t, "picturebook.yaml", fmt.Sprintf("site: %s\ncommons: %s\ncdn: %s\nretries: 0\n",
		fw.srv.URL, fw.srv.URL, fw.srv.URL))
	var out bytes.Buffer
	full := append([]string{"-silent", "-config", cfg, "-cache-dir", cacheDir}, args...)
	err := run(context.Background(), full, &out)
	return out.String(), err
}

func TestRun_NoCommand(t *testing.T) {
	err := run(context.Background(), []string{"-silent"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestRun_UnknownCommand(t *testing.T) {
	_, err := runCLI(t, newFakeWiki(t), t.TempDir(), "frobnicate")
	require.ErrorContains(t, err, "unknown command")
}

func TestRun_Search(t *testing.T) {
	fw := newFakeWiki(t)
	fw.results["big cat"] = []SearchResult{{Title: "Tiger", Snippet: `a <span class="searchmatch">big cat</span>`, PageID: 9}}

	out, err := runCLI(t, fw, t.TempDir(), "search", "big", "cat")
	require.NoError(t, err)
	assert.Contains(t, out, "Tiger  (9)")
	assert.Contains(t, out, "a big cat")
}

func TestRun_Page(t *testing.T) {
	fw := bigCats(t)
	out, err := runCLI(t, fw, t.TempDir(), "page", "-t", "Tiger", "-preset", "sentence")
	require.NoError(t, err)
	assert.Contains(t, out, "Tiger\n\nThe tiger is the largest cat\n")
	assert.Contains(t, out, "Image: Tiger.jpg")
	assert.Contains(t, out, "by Jane Doe")
}

func TestRun_Book(t *testing.T) {
	fw := bigCats(t)
	dir := t.TempDir()
	dest := filepath.Join(t.TempDir(), "cats.md")

	out, err := runCLI(t, fw, dir, "book", "-title", "Big Cats", "-format", "md", "-o", dest, "Tiger", "Lion")
	require.NoError(t, err)
	assert.Contains(t, out, dest+" (2 pages)")
	assert.FileExists(t, filepath.Join(dir, "Big Cats.Tiger_Lion.md"))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Big Cats")
}

func TestRun_BookFromFile(t *testing.T) {
	fw := bigCats(t)
	dir := t.TempDir()
	bookPath := writeFile(t, "cats.yaml", "title: Cats\npages:\n  - title: Lion\n    display_title: King\n")

	out, err := runCLI(t, fw, dir, "book", "-f", bookPath, "-format", "md")
	require.NoError(t, err)
	assert.Contains(t, out, "(1 pages)")
}

func TestRun_BookNeedsTitle(t *testing.T) {
	_, err := runCLI(t, bigCats(t), t.TempDir(), "book", "Tiger")
	require.Error(t, err)
}

func TestRun_Wiki(t *testing.T) {
	fw := newFakeWiki(t)
	fw.addPage("Tiger", articleHTML(thumbImg("A.jpg")+thumbImg("B.jpg")), []string{"A.jpg", "B.jpg", "Commons-logo.svg"})
	fw.addImage("A.jpg", makeJPEG(10, 10, colorOrange))
	fw.addImage("B.jpg", makeJPEG(10, 10, colorBlue))
	dir := t.TempDir()

	out, err := runCLI(t, fw, dir, "wiki", "-t", "Tiger")
	require.NoError(t, err)
	assert.Contains(t, out, "Image: A.jpg")
	assert.Contains(t, out, "Image: B.jpg")
	assert.FileExists(t, filepath.Join(dir, "Tiger", "A.jpg"))
	assert.FileExists(t, filepath.Join(dir, "Tiger", "B.jpg"))
	assert.Zero(t, fw.count("meta:Commons-logo.svg"))
}

func TestRun_WikiSingleImage(t *testing.T) {
	fw := newFakeWiki(t)
	fw.addPage("Tiger", articleHTML(thumbImg("A.jpg")+thumbImg("B.jpg")), []string{"A.jpg", "B.jpg"})
	fw.addImage("A.jpg", makeJPEG(10, 10, colorOrange))
	fw.addImage("B.jpg", makeJPEG(10, 10, colorBlue))

	out, err := runCLI(t, fw, t.TempDir(), "wiki", "-t", "Tiger", "-single-image")
	require.NoError(t, err)
	assert.Contains(t, out, "Image: A.jpg")
	assert.NotContains(t, out, "B.jpg")
}

func TestRun_Recommend(t *testing.T) {
	fw := newFakeWiki(t)
	fw.addPage("Tiger", articleHTML(`<p>Tiger.</p>`), nil, "Big_cats")
	fw.members["Big_cats"] = []string{"Tiger", "Lion", "Jaguar"}

	out, err := runCLI(t, fw, t.TempDir(), "recommend", "Tiger")
	require.NoError(t, err)
	assert.Equal(t, "1. Jaguar, Lion\n", out)
}

func TestRun_Prune(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Tiger"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Tiger", "Commons-logo.svg"), []byte("x"), 0o644))

	out, err := runCLI(t, newFakeWiki(t), dir, "prune")
	require.NoError(t, err)
	assert.Equal(t, "Removed 1 cached images\n", out)
}
