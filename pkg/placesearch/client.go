// Package placesearch provides a client for a Nominatim-style place search
// API, used as a secondary source when the primary geocoder is throttled.
package placesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/time/rate"

	"github.com/placepin/importer/internal/resilience"
)

// Client defines the place search operations.
type Client interface {
	// Search performs a free-text place search and returns ranked hits.
	Search(ctx context.Context, query string) ([]Hit, error)
}

// Hit is a single search result.
type Hit struct {
	DisplayName string
	Latitude    float64
	Longitude   float64
}

// searchResult is the raw Nominatim search response item.
type searchResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Option configures the search client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithViewbox biases results toward a viewport. Coordinates are (lng, lat)
// per go-geom's XY ordering.
func WithViewbox(bounds *geom.Bounds) Option {
	return func(c *httpClient) {
		c.viewbox = bounds
	}
}

// WithEmail sets the contact email the public Nominatim usage policy asks for.
func WithEmail(email string) Option {
	return func(c *httpClient) {
		c.email = email
	}
}

type httpClient struct {
	baseURL string
	email   string
	viewbox *geom.Bounds
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new place search client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://nominatim.openstreetmap.org",
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		// Public Nominatim allows one request per second.
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string) ([]Hit, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "placesearch: rate limit")
	}

	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {"3"},
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	if c.viewbox != nil {
		params.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f",
			c.viewbox.Min(0), c.viewbox.Min(1),
			c.viewbox.Max(0), c.viewbox.Max(1),
		))
	}

	reqURL := c.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "placesearch: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "placesearch: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "placesearch: read body")
	}

	if resilience.IsThrottledHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewThrottleError(
			eris.Errorf("placesearch: status %d", resp.StatusCode),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("placesearch: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "placesearch: unmarshal response")
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		hits = append(hits, Hit{
			DisplayName: r.DisplayName,
			Latitude:    lat,
			Longitude:   lon,
		})
	}

	return hits, nil
}
