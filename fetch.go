package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultUA = "picturebook/1.0 (+https://github.com/adammathes/picturebook)"

const (
	defaultSite    = "https://simple.wikipedia.org"
	defaultCommons = "https://commons.wikimedia.org"
	defaultCDN     = "https://upload.wikimedia.org/wikipedia/commons"
)

// maxResponseBytes is the maximum number of bytes to read from any single
// HTTP response body. 0 means unlimited.
var maxResponseBytes int64 = 128 * 1024 * 1024 // 128 MB default

// httpStatusError reports a non-2xx response.
type httpStatusError struct {
	URL        string
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// retryable reports whether a failed request is worth another attempt.
// Transport errors, 429 and 5xx are; every other status is final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// clientOpts configures a wikiClient.
type clientOpts struct {
	site              string
	commons           string
	cdn               string
	userAgent         string
	timeout           time.Duration
	retries           int
	requestsPerSecond float64
}

// wikiClient talks to one MediaWiki site and the Commons backend that hosts
// its images. It is safe for concurrent use.
type wikiClient struct {
	site      string
	commons   string
	cdn       string
	userAgent string
	retries   int
	backoff   time.Duration
	http      *http.Client
	// noRedirect hands back 3xx responses instead of following them.
	noRedirect *http.Client
	limiter    *rate.Limiter
}

func newWikiClient(opts clientOpts) *wikiClient {
	if opts.site == "" {
		opts.site = defaultSite
	}
	if opts.commons == "" {
		opts.commons = defaultCommons
	}
	if opts.cdn == "" {
		opts.cdn = defaultCDN
	}
	if opts.userAgent == "" {
		opts.userAgent = defaultUA
	}
	if opts.timeout <= 0 {
		opts.timeout = 30 * time.Second
	}
	if opts.retries < 0 {
		opts.retries = 0
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.requestsPerSecond > 0 {
		burst := int(opts.requestsPerSecond * 2)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.requestsPerSecond), burst)
	}

	return &wikiClient{
		site:      strings.TrimSuffix(opts.site, "/"),
		commons:   strings.TrimSuffix(opts.commons, "/"),
		cdn:       strings.TrimSuffix(opts.cdn, "/"),
		userAgent: opts.userAgent,
		retries:   opts.retries,
		backoff:   500 * time.Millisecond,
		http:      &http.Client{Timeout: opts.timeout},
		noRedirect: &http.Client{
			Timeout: opts.timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: limiter,
	}
}

// apiURL builds an api.php URL on base with the given query parameters.
func apiURL(base string, params url.Values) string {
	return base + "/w/api.php?" + params.Encode()
}

// readLimited reads up to limit bytes from r. If the response exceeds the
// limit, it returns an error. A limit <= 0 reads without limit.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	// Read limit+1 bytes so we can detect overflow without a custom reader.
	lr := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeds maximum allowed size (%s)", humanSize(limit))
	}
	return data, nil
}

// do performs one request, honouring the rate limiter, and returns the body
// of a 2xx response.
func (c *wikiClient) do(ctx context.Context, method, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := readLimited(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// get fetches rawURL, retrying transient failures up to c.retries times with
// a linear backoff.
func (c *wikiClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			fmt.Fprintf(logOut, "Retrying %s (attempt %d): %v\n", rawURL, attempt+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		body, err := c.do(ctx, http.MethodGet, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

// getJSON fetches rawURL and decodes the JSON body into v.
func (c *wikiClient) getJSON(ctx context.Context, rawURL string, v any) error {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}
	return nil
}

// download fetches rawURL into dest. The body lands in a temporary sibling
// first so a failed transfer never leaves a partial file at dest.
func (c *wikiClient) download(ctx context.Context, rawURL, dest string) error {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dest, err)
	}

	fmt.Fprintf(logOut, "Downloaded %s (%s)\n", rawURL, humanSize(int64(len(body))))
	return nil
}

// redirectLocation issues a HEAD request without following redirects and
// returns the Location header, or "" when the response is not a redirect.
func (c *wikiClient) redirectLocation(ctx context.Context, rawURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.noRedirect.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return resp.Header.Get("Location"), nil
}
