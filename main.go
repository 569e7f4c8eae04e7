// picturebook: make children's picture books from encyclopedia articles.
//
//	picturebook [global options] page -t TITLE
//	picturebook [global options] book -title "Big Cats" [-format pdf|epub|md] [-o out.pdf] TITLE...
//	picturebook [global options] book -f book.yaml
//	picturebook [global options] search QUERY
//	picturebook [global options] wiki -t TITLE [-single-image]
//	picturebook [global options] recommend TITLE...
//	picturebook [global options] prune
//	picturebook [global options] serve [-addr :8080]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// logOut is the writer for informational/progress output.
// In silent mode it is set to io.Discard so only errors reach the user.
var logOut io.Writer = os.Stderr

// globalOpts are the flags accepted before the command name.
type globalOpts struct {
	config   string
	site     string
	cacheDir string
	timeout  time.Duration
	silent   bool
}

// app is everything a command needs, built once per run.
type app struct {
	cfg  *appConfig
	wiki *wiki
	out  io.Writer
}

var commands = map[string]func(ctx context.Context, a *app, args []string) error{
	"page":      cmdPage,
	"book":      cmdBook,
	"search":    cmdSearch,
	"wiki":      cmdWiki,
	"recommend": cmdRecommend,
	"prune":     cmdPrune,
	"serve":     cmdServe,
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		w := fs.Output()
		fmt.Fprintf(w, "Usage: picturebook [options] <command> [command options]\n\n")
		fmt.Fprintf(w, "Make children's picture books from encyclopedia articles.\n\n")
		fmt.Fprintf(w, "Commands: page, book, search, wiki, recommend, prune, serve\n\n")
		fs.PrintDefaults()
	}
}

// setup loads configuration and builds the pipeline. Flags win over the
// config file.
func setup(g globalOpts, out io.Writer) (*app, error) {
	cfg, err := loadConfigFile(g.config)
	if err != nil {
		return nil, err
	}
	if g.site != "" {
		cfg.Site = g.site
	}
	if g.cacheDir != "" {
		cfg.CacheDir = g.cacheDir
	}
	if g.timeout > 0 {
		cfg.Timeout = g.timeout
	}

	client := newWikiClient(cfg.clientOptions())
	w, err := newWiki(client, cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	w.renamedFallback = cfg.RenamedImageFallback
	if cfg.Concurrency > 0 {
		w.concurrency = cfg.Concurrency
	}
	fmt.Fprintf(logOut, "Using %s, caching in %s\n", client.site, w.cacheDir)

	return &app{cfg: cfg, wiki: w, out: out}, nil
}

// run executes the command line, returning any error.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("picturebook", flag.ContinueOnError)
	var g globalOpts
	fs.StringVar(&g.config, "config", "", "YAML configuration file")
	fs.StringVar(&g.site, "site", "", "Wiki base URL (default "+defaultSite+")")
	fs.StringVar(&g.cacheDir, "cache-dir", "", "Cache directory (default "+defaultCacheDir()+")")
	fs.DurationVar(&g.timeout, "timeout", 0, "HTTP request timeout (default 30s)")
	fs.BoolVar(&g.silent, "silent", false, "Suppress all output except errors and results")
	fs.Usage = usage(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if g.silent {
		logOut = io.Discard
		progressOut = io.Discard
	} else {
		progressOut = os.Stderr
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command given")
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	a, err := setup(g, stdout)
	if err != nil {
		return err
	}
	return cmd(ctx, a, fs.Args()[1:])
}

func cmdPage(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("page", flag.ContinueOnError)
	title := fs.String("t", "", "Article title")
	preset := fs.String("preset", "", "Book preset: sentence or paragraph (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" && fs.NArg() > 0 {
		*title = strings.Join(fs.Args(), " ")
	}
	if *title == "" {
		return errors.New("page requires -t TITLE")
	}

	cfg, err := a.bookConfig(*preset)
	if err != nil {
		return err
	}
	page, err := a.wiki.makePage(ctx, PageRequest{Title: *title}, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s\n\n%s\n", page.Title.Effective(), page.Text.Effective())
	if page.Image != nil {
		fmt.Fprintln(a.out)
		printImage(a.out, page.Image)
	}
	return nil
}

// bookConfig returns the named preset, or the configured book settings when
// no preset is named.
func (a *app) bookConfig(preset string) (BookConfig, error) {
	if preset == "" {
		return a.cfg.bookConfig(), nil
	}
	return presetBookConfig(preset)
}

func cmdBook(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	title := fs.String("title", "", "Book title")
	format := fs.String("format", "pdf", "Output format: pdf, epub or md")
	output := fs.String("o", "", "Copy the finished book to this path")
	file := fs.String("f", "", "YAML book definition (title and pages)")
	preset := fs.String("preset", "", "Book preset: sentence or paragraph (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := parseExportFormat(*format)
	if err != nil {
		return err
	}
	cfg, err := a.bookConfig(*preset)
	if err != nil {
		return err
	}

	req := bookRequest{Title: *title, Config: cfg, Format: f}
	if *file != "" {
		bf, err := loadBookFile(*file)
		if err != nil {
			return err
		}
		if req.Title == "" {
			req.Title = bf.Title
		}
		req.Pages = bf.requests()
	}
	req.Pages = append(req.Pages, pageRequests(fs.Args())...)

	if req.Title == "" {
		return errors.New("book requires -title (or a title in the -f file)")
	}
	if len(req.Pages) == 0 {
		return errors.New("book requires at least one page title")
	}

	bar, onPage := newPageProgress(len(req.Pages))
	req.OnPage = onPage
	path, err := a.wiki.makeBook(ctx, req)
	bar.Finish()
	if err != nil {
		return err
	}

	if *output != "" {
		if err := copyFile(path, *output); err != nil {
			return err
		}
		path = *output
	}
	fmt.Fprintf(a.out, "%s (%d pages)\n", path, len(req.Pages))
	return nil
}

// copyFile copies src to dst through a temp file in dst's directory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("writing output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return os.Rename(tmp.Name(), dst)
}

func cmdSearch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("search requires a query")
	}

	results, err := a.wiki.client.search(ctx, query)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(a.out, "%s  (%d)\n", r.Title, r.PageID)
		if s := htmlToText(r.Snippet); s != "" {
			fmt.Fprintf(a.out, "  %s\n", s)
		}
	}
	return nil
}

func printImage(w io.Writer, img *ResolvedImage) {
	fmt.Fprintf(w, "Image: %s\n", filepath.Base(img.Path))
	if m := img.Metadata; m.Title != "" {
		fmt.Fprintf(w, "  %s\n", m.Title)
	}
	if m := img.Metadata; m.Description != "" {
		fmt.Fprintf(w, "  %s\n", m.Description)
	}
	if m := img.Metadata; m.Author != "" {
		fmt.Fprintf(w, "  by %s\n", m.Author)
	}
	if m := img.Metadata; m.License != "" {
		fmt.Fprintf(w, "  %s\n", m.License)
	}
}

func cmdWiki(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("wiki", flag.ContinueOnError)
	title := fs.String("t", "", "Article title")
	single := fs.Bool("single-image", false, "Only download the first interesting image")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" {
		return errors.New("wiki requires -t TITLE")
	}

	article, err := a.wiki.loadArticle(ctx, *title)
	if err != nil {
		return err
	}
	candidates := article.imagesOfInterest()
	if *single && len(candidates) > 1 {
		candidates = candidates[:1]
	}
	fmt.Fprintf(logOut, "Downloading %d images for %q\n", len(candidates), *title)

	for _, img := range a.wiki.resolveImages(ctx, *title, candidates) {
		printImage(a.out, img)
	}
	return nil
}

func cmdRecommend(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("recommend", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("recommend requires at least one page title")
	}

	groups, err := a.wiki.recommend(ctx, fs.Args())
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Fprintln(a.out, "No recommendations.")
		return nil
	}
	for i, g := range groups {
		fmt.Fprintf(a.out, "%d. %s\n", i+1, strings.Join(g, ", "))
	}
	return nil
}

func cmdPrune(ctx context.Context, a *app, args []string) error {
	n, err := pruneUninteresting(a.wiki.cacheDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed %d cached images\n", n)
	return nil
}

func cmdServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "Listen address")
	memoPath := fs.String("search-db", "", "SQLite search memo (default <cache-dir>/search.db)")
	memoTTL := fs.Duration("search-ttl", 24*time.Hour, "How long memoised searches stay fresh (0 keeps them forever)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *memoPath == "" {
		*memoPath = filepath.Join(a.wiki.cacheDir, "search.db")
	}

	memo, err := newSearchMemo(*memoPath, *memoTTL)
	if err != nil {
		return err
	}
	defer memo.Close()

	srv := &http.Server{
		Addr:    *addr,
		Handler: newAPIServer(a.wiki, memo, a.cfg.bookConfig()).SetupRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(logOut, "Listening on %s\n", *addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
