// Configuration: book layout presets, the optional YAML config file and the
// YAML book definition files read by the book command.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// summaryMode selects how much article prose goes on a page.
type summaryMode int

const (
	// summaryShort keeps only the first sentence.
	summaryShort summaryMode = iota
	// summaryFull keeps the whole first paragraph.
	summaryFull
)

func (m summaryMode) String() string {
	if m == summaryFull {
		return "full"
	}
	return "short"
}

func parseSummaryMode(s string) (summaryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short":
		return summaryShort, nil
	case "full":
		return summaryFull, nil
	}
	return 0, fmt.Errorf("unknown summary mode %q (want short or full)", s)
}

func (m summaryMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *summaryMode) UnmarshalText(b []byte) error {
	v, err := parseSummaryMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// BookConfig holds layout and summarisation settings for one render. Sizes
// are in PDF points.
type BookConfig struct {
	TitleFontSize     float64     `yaml:"title_font_size"`
	PageTitleFontSize float64     `yaml:"page_title_font_size"`
	TextFontSize      float64     `yaml:"text_font_size"`
	Padding           float64     `yaml:"padding"`
	PageWidth         float64     `yaml:"page_width"`
	PageHeight        float64     `yaml:"page_height"`
	Summary           summaryMode `yaml:"summary"`
}

func baseBookConfig() BookConfig {
	return BookConfig{
		TitleFontSize:     42,
		PageTitleFontSize: 24,
		TextFontSize:      16,
		Padding:           20,
		PageWidth:         400,
		PageHeight:        400,
		Summary:           summaryShort,
	}
}

// singleSentencePerPage is the preset for the youngest readers.
func singleSentencePerPage() BookConfig {
	c := baseBookConfig()
	c.TextFontSize = 16
	c.Summary = summaryShort
	return c
}

// singleParagraphPerPage fits a full paragraph in a smaller font.
func singleParagraphPerPage() BookConfig {
	c := baseBookConfig()
	c.TextFontSize = 12
	c.Summary = summaryFull
	return c
}

func defaultBookConfig() BookConfig {
	return singleParagraphPerPage()
}

// presetBookConfig returns a named preset.
func presetBookConfig(name string) (BookConfig, error) {
	switch strings.ToLower(name) {
	case "", "default", "paragraph":
		return singleParagraphPerPage(), nil
	case "sentence":
		return singleSentencePerPage(), nil
	}
	return BookConfig{}, fmt.Errorf("unknown book preset %q (want sentence or paragraph)", name)
}

// validate rejects configs that cannot lay out a page.
func (c BookConfig) validate() error {
	if c.PageWidth <= 0 || c.PageHeight <= 0 {
		return fmt.Errorf("page size must be positive, got %gx%g", c.PageWidth, c.PageHeight)
	}
	if c.Padding < 0 || c.Padding*4 >= c.PageWidth {
		return fmt.Errorf("padding %g does not fit a %g wide page", c.Padding, c.PageWidth)
	}
	if c.TitleFontSize <= 0 || c.PageTitleFontSize <= 0 || c.TextFontSize <= 0 {
		return fmt.Errorf("font sizes must be positive")
	}
	return nil
}

// appConfig is the optional YAML file passed with -config. Zero values mean
// "use the default".
type appConfig struct {
	Site                 string        `yaml:"site"`
	Commons              string        `yaml:"commons"`
	CDN                  string        `yaml:"cdn"`
	CacheDir             string        `yaml:"cache_dir"`
	Timeout              time.Duration `yaml:"timeout"`
	Retries              *int          `yaml:"retries"`
	RequestsPerSecond    float64       `yaml:"requests_per_second"`
	Concurrency          int           `yaml:"concurrency"`
	UserAgent            string        `yaml:"user_agent"`
	RenamedImageFallback bool          `yaml:"renamed_image_fallback"`
	Book                 *BookConfig   `yaml:"book"`
}

// loadConfigFile reads a YAML config file. An empty path returns an empty
// config; a file that exists but cannot be parsed is an error.
func loadConfigFile(path string) (*appConfig, error) {
	cfg := &appConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Book != nil {
		if err := cfg.Book.validate(); err != nil {
			return nil, fmt.Errorf("invalid book config: %w", err)
		}
	}
	return cfg, nil
}

// UnmarshalYAML fills unset book fields from the default preset so a config
// file only has to name what it changes.
func (c *BookConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain BookConfig
	v := plain(defaultBookConfig())
	if err := node.Decode(&v); err != nil {
		return err
	}
	*c = BookConfig(v)
	return nil
}

// clientOptions turns the file config into HTTP client options. Retries
// default to 2 when the file does not set them.
func (c *appConfig) clientOptions() clientOpts {
	retries := 2
	if c.Retries != nil {
		retries = *c.Retries
	}
	return clientOpts{
		site:              c.Site,
		commons:           c.Commons,
		cdn:               c.CDN,
		userAgent:         c.UserAgent,
		timeout:           c.Timeout,
		retries:           retries,
		requestsPerSecond: c.RequestsPerSecond,
	}
}

func (c *appConfig) bookConfig() BookConfig {
	if c.Book != nil {
		return *c.Book
	}
	return defaultBookConfig()
}

// defaultCacheDir is used when neither a flag nor the config file names a
// cache root.
func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "picturebook")
	}
	return filepath.Join(os.TempDir(), "picturebook")
}

// bookFile is a book definition read by the book command.
type bookFile struct {
	Title string        `yaml:"title"`
	Pages []bookFileRow `yaml:"pages"`
}

type bookFileRow struct {
	Title        string  `yaml:"title"`
	DisplayTitle *string `yaml:"display_title"`
	Text         *string `yaml:"text"`
}

func loadBookFile(path string) (*bookFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read book file: %w", err)
	}
	var bf bookFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse book file: %w", err)
	}
	if len(bf.Pages) == 0 {
		return nil, fmt.Errorf("book file %s lists no pages", path)
	}
	for i, p := range bf.Pages {
		if strings.TrimSpace(p.Title) == "" {
			return nil, fmt.Errorf("book file %s: page %d has no title", path, i+1)
		}
	}
	return &bf, nil
}

// requests converts the file rows into page requests.
func (bf *bookFile) requests() []PageRequest {
	out := make([]PageRequest, 0, len(bf.Pages))
	for _, p := range bf.Pages {
		out = append(out, PageRequest{
			Title:        p.Title,
			DisplayTitle: p.DisplayTitle,
			Text:         p.Text,
		})
	}
	return out
}
