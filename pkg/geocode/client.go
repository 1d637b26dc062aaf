// Package geocode provides address geocoding via Census Geocoder (structured
// input) and Google Geocoding (free-text queries with region bias).
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/twpayne/go-geom"
	"golang.org/x/time/rate"
)

// Client geocodes addresses. Structured input goes to the Census Geocoder;
// free-text queries go to Google with a broad region bias applied.
type Client interface {
	// Geocode geocodes a structured address.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// GeocodeQuery geocodes a free-text query string.
	GeocodeQuery(ctx context.Context, query string) (*Result, error)
}

// AddressInput represents a structured address to geocode.
type AddressInput struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "census" or "google"
	Quality   string // "rooftop", "range", "centroid", "approximate"
	Matched   bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey sets the key for free-text queries via Google.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for all backend requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit for backend calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// WithRegionBias scopes free-text queries to a ccTLD region code and an
// optional viewport. Bounds coordinates are (lng, lat) per go-geom's XY
// ordering.
func WithRegionBias(region string, bounds *geom.Bounds) Option {
	return func(g *geocoder) {
		g.region = region
		g.bounds = bounds
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
	region     string
	bounds     *geom.Bounds
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		region:     "us",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode geocodes a structured address via the Census one-line API.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	return g.geocodeCensus(ctx, addr)
}

// GeocodeQuery geocodes a free-text query via Google with region bias.
func (g *geocoder) GeocodeQuery(ctx context.Context, query string) (*Result, error) {
	return g.geocodeGoogle(ctx, query)
}
