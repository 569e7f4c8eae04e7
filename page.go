package main

import (
	"context"
	"fmt"
	"strings"
)

// overridable is a fetched value that the user may replace.
type overridable struct {
	Source   string
	Override *string
}

// Effective returns the override when one is set, else the source value.
func (o overridable) Effective() string {
	if o.Override != nil {
		return *o.Override
	}
	return o.Source
}

// Page is one finished book page. Image is nil when the article had no
// usable image.
type Page struct {
	Title overridable
	Text  overridable
	Image *ResolvedImage
}

// PageRequest names the article behind a page plus any user overrides.
type PageRequest struct {
	Title        string
	DisplayTitle *string
	Text         *string
}

func (r PageRequest) hasOverrides() bool {
	return r.DisplayTitle != nil || r.Text != nil
}

// pageRequests wraps bare titles.
func pageRequests(titles []string) []PageRequest {
	out := make([]PageRequest, len(titles))
	for i, t := range titles {
		out[i] = PageRequest{Title: t}
	}
	return out
}

// makePage builds one page: article text per the summary mode and the
// first image of interest, if it resolves.
func (w *wiki) makePage(ctx context.Context, req PageRequest, cfg BookConfig) (*Page, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("page has no title")
	}

	article, err := w.loadArticle(ctx, req.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", req.Title, err)
	}

	page := &Page{
		Title: overridable{Source: processTitle(req.Title), Override: req.DisplayTitle},
		Text:  overridable{Source: article.summary(cfg.Summary), Override: req.Text},
	}

	candidates := article.imagesOfInterest()
	if len(candidates) == 0 {
		fmt.Fprintf(logOut, "Warning: no images of interest for %q\n", req.Title)
		return page, nil
	}

	// Later candidates stay unresolved until something asks for them.
	if imgs := w.resolveImages(ctx, req.Title, candidates[:1]); len(imgs) > 0 {
		page.Image = imgs[0]
	}
	return page, nil
}
