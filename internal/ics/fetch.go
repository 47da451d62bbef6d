package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultUserAgent    = "icsbusy/0.1"
)

// StatusError is returned when a feed URL answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %s", RedactURL(e.URL), e.Status)
}

// Fetcher opens ICS feeds as byte streams. It never buffers a whole feed:
// the returned body is read lazily by the caller.
type Fetcher struct {
	client    *http.Client
	userAgent string
	// allowFiles lets plain paths and file:// URLs through. Only the CLI
	// enables it; request-driven lookups must not read the local disk.
	allowFiles bool
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTimeout bounds the whole request, body reads included.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying client. The client's own timeout
// is kept.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithLocalFiles allows Open to read local paths and file:// URLs.
func WithLocalFiles() FetcherOption {
	return func(f *Fetcher) {
		f.allowFiles = true
	}
}

// NewFetcher creates a Fetcher with a 30s timeout.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: defaultFetchTimeout,
		},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open starts fetching rawURL and returns its body. The caller must close
// it; closing early abandons the rest of the transfer.
//
// webcal:// and webcals:// are fetched over HTTPS.
func (f *Fetcher) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if rawURL == "" {
		return nil, errors.New("fetch: empty URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		if f.allowFiles {
			return openFile(rawURL)
		}
		return nil, fmt.Errorf("fetch: parse URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "webcal", "webcals":
		u.Scheme = "https"
	case "file":
		if !f.allowFiles {
			return nil, fmt.Errorf("fetch %s: local files are not allowed", RedactURL(rawURL))
		}
		return openFile(u.Path)
	case "":
		if !f.allowFiles {
			return nil, fmt.Errorf("fetch %s: missing URL scheme", RedactURL(rawURL))
		}
		return openFile(rawURL)
	default:
		return nil, fmt.Errorf("fetch %s: unsupported scheme %q", RedactURL(rawURL), u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return resp.Body, nil
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// RedactURL hides sensitive parts of an ICS URL for logging purposes.
// Private feed links usually carry their secret in the path or query.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "ics://...(redacted)"
	}
	i += len("://")

	j := i
	for j < len(u) && u[j] != '/' && u[j] != '?' && u[j] != '#' {
		j++
	}

	host := u[:j]
	if at := strings.LastIndex(host[i:], "@"); at >= 0 {
		// Drop userinfo.
		host = u[:i] + host[i+at+1:]
	}
	return host + redactedSuffix
}
