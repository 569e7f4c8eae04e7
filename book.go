// Book assembly: concurrent per-title page building with ordered results,
// and a result-level file cache that only ever holds complete books.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// exportFormat is the output file type of a book.
type exportFormat string

const (
	formatPDF      exportFormat = "pdf"
	formatEPUB     exportFormat = "epub"
	formatMarkdown exportFormat = "md"
)

func parseExportFormat(s string) (exportFormat, error) {
	switch f := exportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return formatPDF, nil
	case formatPDF, formatEPUB, formatMarkdown:
		return f, nil
	case "markdown":
		return formatMarkdown, nil
	}
	return "", fmt.Errorf("unknown format %q (want pdf, epub or md)", s)
}

var (
	// errInvalidBook marks a request that can never produce a book.
	errInvalidBook = errors.New("invalid book request")
	// errBookOutput marks a local failure writing an otherwise good book.
	errBookOutput = errors.New("failed to write book")
)

// maxBookNameBytes keeps cache file names under common filesystem limits.
const maxBookNameBytes = 200

// bookRequest describes one book to assemble.
type bookRequest struct {
	Title  string
	Pages  []PageRequest
	Config BookConfig
	Format exportFormat
	// OnPage, if set, is called once per finished page from the worker
	// goroutine that built it.
	OnPage func(*Page)
}

// bookCachePath is {cacheDir}/{bookTitle}.{titles joined by _}.{ext}. Any
// override adds a short hash so edited books do not collide with plain
// ones; very long title lists are replaced by a hash.
func bookCachePath(cacheDir string, req bookRequest) string {
	titles := make([]string, len(req.Pages))
	for i, p := range req.Pages {
		titles[i] = p.Title
	}
	joined := strings.Join(titles, "_")

	name := req.Title + "." + joined
	if h := overrideHash(req.Pages); h != "" {
		name += "." + h
	}
	if len(name) > maxBookNameBytes {
		sum := sha256.Sum256([]byte(joined))
		name = req.Title + "." + hex.EncodeToString(sum[:8])
		if h := overrideHash(req.Pages); h != "" {
			name += "." + h
		}
	}

	format := req.Format
	if format == "" {
		format = formatPDF
	}
	return filepath.Join(cacheDir, cacheKey(name)+"."+string(format))
}

// overrideHash fingerprints user overrides, or returns "" when there are
// none.
func overrideHash(pages []PageRequest) string {
	overridden := false
	h := sha256.New()
	for _, p := range pages {
		if p.hasOverrides() {
			overridden = true
		}
		fmt.Fprintf(h, "%q\x00", p.Title)
		if p.DisplayTitle != nil {
			fmt.Fprintf(h, "t%q", *p.DisplayTitle)
		}
		h.Write([]byte{0})
		if p.Text != nil {
			fmt.Fprintf(h, "x%q", *p.Text)
		}
		h.Write([]byte{0})
	}
	if !overridden {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// makePages builds every page concurrently. The result order matches the
// request order; the first failure cancels the rest and is returned.
func (w *wiki) makePages(ctx context.Context, reqs []PageRequest, cfg BookConfig, onPage func(*Page)) ([]*Page, error) {
	pages := make([]*Page, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers())
	for i, req := range reqs {
		g.Go(func() error {
			p, err := w.makePage(gctx, req, cfg)
			if err != nil {
				return err
			}
			pages[i] = p
			if onPage != nil {
				onPage(p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// makeBook returns the path of the finished book, building it first unless
// a cached copy exists. Any page failure fails the whole book and leaves
// nothing at the cache path.
func (w *wiki) makeBook(ctx context.Context, req bookRequest) (string, error) {
	if strings.TrimSpace(req.Title) == "" {
		return "", fmt.Errorf("%w: book has no title", errInvalidBook)
	}
	if len(req.Pages) == 0 {
		return "", fmt.Errorf("%w: book has no pages", errInvalidBook)
	}
	if req.Format == "" {
		req.Format = formatPDF
	}
	if err := req.Config.validate(); err != nil {
		return "", fmt.Errorf("%w: %w", errInvalidBook, err)
	}

	dest := bookCachePath(w.cacheDir, req)
	if _, err := os.Stat(dest); err == nil {
		fmt.Fprintf(logOut, "Book already exists at %s\n", dest)
		return dest, nil
	}

	pages, err := w.makePages(ctx, req.Pages, req.Config, req.OnPage)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(w.cacheDir, "book-*."+string(req.Format)+".tmp")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temp file: %w", errBookOutput, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := renderBook(req.Format, req.Title, pages, tmpPath, req.Config); err != nil {
		return "", fmt.Errorf("%w: %w", errBookOutput, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("%w: failed to move book into place: %w", errBookOutput, err)
	}

	fmt.Fprintf(logOut, "Wrote %s\n", dest)
	return dest, nil
}

// renderBook writes pages to path in the given format.
func renderBook(format exportFormat, title string, pages []*Page, path string, cfg BookConfig) error {
	switch format {
	case formatPDF:
		return generatePDF(title, pages, path, cfg)
	case formatEPUB:
		return generateEPUB(title, pages, path)
	case formatMarkdown:
		return generateMarkdown(title, pages, path)
	}
	return fmt.Errorf("unknown format %q", format)
}
