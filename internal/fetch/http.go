// Package fetch retrieves raw page content for address extraction.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/placepin/importer/internal/resilience"
)

// maxBodyBytes bounds how much of a page we read.
const maxBodyBytes = 4 << 20

// Options configures the HTTP fetcher.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
}

// Fetcher retrieves a URL's body as text.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// HTTPFetcher implements Fetcher using net/http with retry on server errors.
type HTTPFetcher struct {
	client *http.Client
	opts   Options
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "placepin-importer/1.0"
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts: opts,
	}
}

// Fetch downloads the page at rawURL and returns its body. It fails on bad
// URLs, non-2xx responses, and pages that appear to be rendered entirely by
// client-side script.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", eris.Errorf("fetch: invalid url %q", rawURL)
	}

	var lastErr error
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if !resilience.Sleep(ctx, time.Duration(attempt)*time.Second) {
				return "", eris.Wrap(ctx.Err(), "fetch: cancelled")
			}
			zap.L().Debug("fetch: retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
			)
		}

		body, retryable, err := f.fetchOnce(ctx, u.String())
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			return "", lastErr
		}
	}

	return "", lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, reqURL string) (body string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", false, eris.Wrap(err, "fetch: build request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", true, eris.Wrap(err, "fetch: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", true, eris.Errorf("fetch: status %d from %s", resp.StatusCode, reqURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, eris.Errorf("fetch: status %d from %s", resp.StatusCode, reqURL)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", true, eris.Wrap(err, "fetch: read body")
	}

	content := string(raw)
	if LooksScriptRendered(content) {
		return "", false, eris.Errorf("fetch: page at %s appears script-rendered; paste the page text instead", reqURL)
	}

	return content, false, nil
}

// scriptMarkers are signatures of pages whose content is rendered client-side
// or hidden behind a challenge.
var scriptMarkers = []string{
	"enable javascript",
	"you need to enable javascript",
	"<noscript",
	"checking your browser",
	"just a moment",
	"cf-browser-verification",
	"window.__initial_state__",
	"id=\"root\"></div>",
	"id=\"app\"></div>",
}

// LooksScriptRendered reports whether a fetched body is too short to carry
// real content and shows a script-rendering marker. Such pages have nothing
// extractable server-side.
func LooksScriptRendered(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return true
	}
	if len(trimmed) >= 2048 {
		return false
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range scriptMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
