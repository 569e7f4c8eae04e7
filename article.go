// Article fetching from a MediaWiki parse endpoint, with a self-healing
// on-disk JSON cache keyed by the requested title.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// errArticleNotFound is returned when the site reports that a title does not
// exist.
var errArticleNotFound = errors.New("article not found")

// apiError is the error object MediaWiki returns in place of a result.
type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("wiki API error %s: %s", e.Code, e.Info)
}

func (e *apiError) Is(target error) bool {
	return target == errArticleNotFound && e.Code == "missingtitle"
}

// parseResponse mirrors the action=parse JSON response. It is also the
// on-disk cache format.
type parseResponse struct {
	Parse *parsedPage `json:"parse,omitempty"`
	Error *apiError   `json:"error,omitempty"`
}

type parsedPage struct {
	Title        string         `json:"title"`
	PageID       int64          `json:"pageid"`
	RevID        int64          `json:"revid,omitempty"`
	DisplayTitle string         `json:"displaytitle,omitempty"`
	Text         wikiText       `json:"text"`
	Images       []string       `json:"images"`
	Categories   []wikiCategory `json:"categories,omitempty"`
	Links        []wikiLink     `json:"links,omitempty"`
}

type wikiText struct {
	HTML string `json:"*"`
}

type wikiCategory struct {
	SortKey string `json:"sortkey"`
	Name    string `json:"*"`
	// Hidden is present (usually as "") only for hidden maintenance
	// categories.
	Hidden *string `json:"hidden,omitempty"`
}

type wikiLink struct {
	NS     int     `json:"ns"`
	Title  string  `json:"*"`
	Exists *string `json:"exists,omitempty"`
}

// Article is the fetched content of one wiki page. It is immutable once
// built; the parsed document is created lazily and shared.
type Article struct {
	Title      string
	HTML       string
	Images     []string
	Categories []string

	docOnce sync.Once
	doc     htmlNode
	docErr  error
}

func newArticle(p *parsedPage) *Article {
	a := &Article{
		Title:  p.Title,
		HTML:   p.Text.HTML,
		Images: append([]string(nil), p.Images...),
	}
	for _, c := range p.Categories {
		if c.Hidden == nil && c.Name != "" {
			a.Categories = append(a.Categories, c.Name)
		}
	}
	return a
}

// document returns the parsed article markup.
func (a *Article) document() (htmlNode, error) {
	a.docOnce.Do(func() {
		a.doc, a.docErr = parseHTML(a.HTML)
	})
	return a.doc, a.docErr
}

// redirectTarget returns the title a redirect stub points at, or "".
func (a *Article) redirectTarget() string {
	doc, err := a.document()
	if err != nil {
		return ""
	}
	for _, link := range doc.Select(".redirectText a") {
		if t := strings.TrimSpace(link.Text()); t != "" {
			return t
		}
	}
	return ""
}

// cacheKey turns a title into a single safe path element.
func cacheKey(title string) string {
	key := strings.NewReplacer("/", "_", `\`, "_").Replace(title)
	if key == "." || key == ".." {
		return strings.Repeat("_", len(key))
	}
	return key
}

// titleCacheDir is the per-title directory holding the article JSON and its
// downloaded images.
func titleCacheDir(cacheDir, title string) string {
	return filepath.Join(cacheDir, cacheKey(title))
}

func articleCachePath(cacheDir, title string) string {
	key := cacheKey(title)
	return filepath.Join(cacheDir, key, key+".json")
}

// readCachedArticle loads a cached parse response. A missing file yields
// (nil, nil); a file that cannot be decoded is removed so the caller falls
// through to a live fetch.
func readCachedArticle(path string) (*parseResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached article: %w", err)
	}

	var resp parseResponse
	if err := json.Unmarshal(data, &resp); err != nil || resp.Parse == nil {
		if err == nil {
			err = errors.New("no parse result")
		}
		fmt.Fprintf(logOut, "Warning: discarding corrupt cache file %s: %v\n", path, err)
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("failed to remove corrupt cache file: %w", rmErr)
		}
		return nil, nil
	}
	return &resp, nil
}

// writeCachedArticle stores a parse response. The file is written to a temp
// sibling and renamed so readers never observe a half-written entry.
func writeCachedArticle(path string, resp *parseResponse) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal article: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write article: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write article: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// fetchParse issues one parse request for title.
func (c *wikiClient) fetchParse(ctx context.Context, title string) (*parseResponse, error) {
	u := apiURL(c.site, url.Values{
		"action": {"parse"},
		"page":   {title},
		"format": {"json"},
	})
	fmt.Fprintf(logOut, "Loading wiki data from %s\n", u)

	var resp parseResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("loading %q: %w", title, resp.Error)
	}
	if resp.Parse == nil {
		return nil, fmt.Errorf("loading %q: response has no parse result", title)
	}
	return &resp, nil
}

// loadArticle returns the article for title, from the cache when possible.
// Redirect stubs are followed one hop; the target's content is cached under
// the requested title so the alias is served from cache next time.
func (w *wiki) loadArticle(ctx context.Context, title string) (*Article, error) {
	if strings.TrimSpace(title) == "" {
		return nil, errors.New("empty article title")
	}

	path := articleCachePath(w.cacheDir, title)
	cached, err := readCachedArticle(path)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		fmt.Fprintf(logOut, "Cached wiki data exists at %s\n", path)
		return newArticle(cached.Parse), nil
	}

	resp, err := w.client.fetchParse(ctx, title)
	if err != nil {
		return nil, err
	}

	if target := newArticle(resp.Parse).redirectTarget(); target != "" {
		fmt.Fprintf(logOut, "Redirected to %q\n", target)
		resp, err = w.client.fetchParse(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("following redirect from %q: %w", title, err)
		}
	}

	if err := writeCachedArticle(path, resp); err != nil {
		return nil, fmt.Errorf("failed to cache %q: %w", title, err)
	}
	fmt.Fprintf(logOut, "Cached wiki data to %s\n", path)

	return newArticle(resp.Parse), nil
}
