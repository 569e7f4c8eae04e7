package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		status := http.StatusOK
		if n < len(statuses) {
			status = statuses[n]
		}
		w.WriteHeader(status)
		w.Write([]byte("body"))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testClient(site string, retries int) *wikiClient {
	c := newWikiClient(clientOpts{site: site, retries: retries})
	c.backoff = time.Millisecond
	return c
}

func TestGet_RetriesServerErrors(t *testing.T) {
	srv, calls := statusServer(t, http.StatusServiceUnavailable, http.StatusBadGateway)
	c := testClient(srv.URL, 2)

	body, err := c.get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "body", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_GivesUpAfterRetries(t *testing.T) {
	srv, calls := statusServer(t, 500, 500, 500, 500)
	c := testClient(srv.URL, 1)

	_, err := c.get(context.Background(), srv.URL)
	var se *httpStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	srv, calls := statusServer(t, http.StatusNotFound)
	c := testClient(srv.URL, 3)

	_, err := c.get(context.Background(), srv.URL)
	var se *httpStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_RetriesTooManyRequests(t *testing.T) {
	srv, calls := statusServer(t, http.StatusTooManyRequests)
	c := testClient(srv.URL, 1)

	_, err := c.get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_CancelledContext(t *testing.T) {
	srv, _ := statusServer(t)
	c := testClient(srv.URL, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.get(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGet_SendsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	_, err := newWikiClient(clientOpts{}).get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, defaultUA, ua)

	_, err = newWikiClient(clientOpts{userAgent: "custom/2.0"}).get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "custom/2.0", ua)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection reset")))
	assert.True(t, retryable(&httpStatusError{StatusCode: 503}))
	assert.True(t, retryable(&httpStatusError{StatusCode: 429}))
	assert.False(t, retryable(&httpStatusError{StatusCode: 404}))
	assert.False(t, retryable(&httpStatusError{StatusCode: 403}))
	assert.False(t, retryable(context.DeadlineExceeded))
}

func TestReadLimited(t *testing.T) {
	data, err := readLimited(strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = readLimited(strings.NewReader("hello!"), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum allowed size")

	data, err = readLimited(strings.NewReader("unbounded"), 0)
	require.NoError(t, err)
	assert.Equal(t, "unbounded", string(data))
}

func TestDownload_NoPartialFileOnFailure(t *testing.T) {
	srv, _ := statusServer(t, http.StatusNotFound)
	dest := filepath.Join(t.TempDir(), "Tiger.jpg")

	err := testClient(srv.URL, 0).download(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.NoFileExists(t, dest)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_WritesFile(t *testing.T) {
	srv, _ := statusServer(t)
	dest := filepath.Join(t.TempDir(), "Tiger.jpg")

	require.NoError(t, testClient(srv.URL, 0).download(context.Background(), srv.URL, dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "body", string(data))
}

func TestNewWikiClient_Defaults(t *testing.T) {
	c := newWikiClient(clientOpts{site: "https://en.wikipedia.org/", retries: -1})
	assert.Equal(t, "https://en.wikipedia.org", c.site)
	assert.Equal(t, defaultCommons, c.commons)
	assert.Equal(t, defaultCDN, c.cdn)
	assert.Equal(t, 0, c.retries)
	assert.Equal(t, 30*time.Second, c.http.Timeout)
}

func TestAPIURL(t *testing.T) {
	u := apiURL("https://simple.wikipedia.org", map[string][]string{
		"action": {"parse"},
		"page":   {"Mercury (planet)"},
	})
	assert.Equal(t, "https://simple.wikipedia.org/w/api.php?action=parse&page=Mercury+%28planet%29", u)
}
