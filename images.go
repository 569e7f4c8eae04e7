// Image candidate selection: which of an article's images are worth
// putting on a page, and in what order.
package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// CandidateImage is an image reference taken from an article, before any
// metadata or binary has been fetched.
type CandidateImage struct {
	Name      string
	IsInfobox bool
}

// uninterestingPatterns lists icons, logos and badges that turn up on many
// pages. Each must match the whole file name.
var uninterestingPatterns = []string{
	`Dagger-14-plain.png`,
	`Status_iucn3.1.*.svg`,
	`Red_Pencil_Icon.png`,
	`Increase.*.svg`,
	`Decrease.*.svg`,
	`OOjs_UI_icon_edit-ltr-progressive.svg`,
	`Semi-protection-shackle.svg`,
	`Extended-protection-shackle.svg`,
	`Full-protection-shackle.svg`,
	`Featured_article_star.svg`,
	`[Ww]iki.*-[Ll]ogo.*.svg`,
	`Wiktionary-logo.*`,
	`Commons-logo.svg`,
	`Crystal_Clear_action_run.png`,
}

var uninterestingRes = compileWhole(uninterestingPatterns)

// allowedImageExtensions are the raster formats the PDF renderer can embed.
// SVG is common and often good, but cannot be drawn.
var allowedImageExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
}

func compileWhole(patterns []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, regexp.MustCompile(`^(?:`+p+`)$`))
	}
	return res
}

func isUninteresting(name string) bool {
	for _, re := range uninterestingRes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func hasAllowedExtension(name string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return allowedImageExtensions[strings.ToLower(ext)]
}

// decodeSrc URL-decodes an img src, keeping the raw value if it is not
// valid percent-encoding.
func decodeSrc(src string) string {
	if d, err := url.PathUnescape(src); err == nil {
		return d
	}
	return src
}

// infoboxImages returns the article images shown inside an infobox or
// sidebar image cell, in document order. When several listed names are a
// suffix of the same src, the longest wins.
func (a *Article) infoboxImages() []string {
	doc, err := a.document()
	if err != nil {
		return nil
	}

	var out []string
	for _, img := range doc.Select(".infobox-image img, .sidebar-image img") {
		src := decodeSrc(img.Attr("src"))
		best := ""
		for _, name := range a.Images {
			if strings.HasSuffix(src, name) && len(name) > len(best) {
				best = name
			}
		}
		if best != "" {
			out = append(out, best)
		}
	}
	return out
}

// bodyImages returns every listed image ordered by where its URL first
// appears in the markup. Images never rendered in the markup go last, in
// their listed order.
func (a *Article) bodyImages() []string {
	var srcs []string
	if doc, err := a.document(); err == nil {
		for _, img := range doc.Select("img") {
			srcs = append(srcs, decodeSrc(img.Attr("src")))
		}
	}

	position := func(name string) int {
		for i, src := range srcs {
			if strings.Contains(src, name) {
				return i
			}
		}
		return len(srcs)
	}

	names := append([]string(nil), a.Images...)
	pos := make(map[string]int, len(names))
	for _, n := range names {
		pos[n] = position(n)
	}
	sort.SliceStable(names, func(i, j int) bool {
		return pos[names[i]] < pos[names[j]]
	})
	return names
}

// candidates lists the article's images with infobox images first, then
// the rest in markup order, without duplicates.
func (a *Article) candidates() []CandidateImage {
	seen := map[string]bool{}
	var out []CandidateImage
	add := func(name string, infobox bool) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, CandidateImage{Name: name, IsInfobox: infobox})
	}

	for _, name := range a.infoboxImages() {
		add(name, true)
	}
	for _, name := range a.bodyImages() {
		add(name, false)
	}
	return out
}

// imagesOfInterest filters candidates down to raster images that are not
// known icons or logos.
func (a *Article) imagesOfInterest() []CandidateImage {
	var out []CandidateImage
	for _, c := range a.candidates() {
		if isUninteresting(c.Name) || !hasAllowedExtension(c.Name) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// pruneUninteresting removes cached binaries (and scaled copies) whose names
// match the uninteresting set, for when that set has grown since they were
// downloaded. Returns the number of files removed.
func pruneUninteresting(cacheDir string) (int, error) {
	titles, err := os.ReadDir(cacheDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	removed := 0
	for _, t := range titles {
		if !t.IsDir() {
			continue
		}
		dir := filepath.Join(cacheDir, t.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			fmt.Fprintf(logOut, "Warning: could not read %s: %v\n", dir, err)
			continue
		}
		for _, f := range files {
			if f.IsDir() || !isUninteresting(unscaledName(f.Name())) {
				continue
			}
			path := filepath.Join(dir, f.Name())
			if err := os.Remove(path); err != nil {
				fmt.Fprintf(logOut, "Warning: could not remove %s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(logOut, "Removed %s\n", path)
			removed++
		}
	}
	return removed, nil
}
