// Package resolve turns address candidates into coordinates, with query
// variant generation, throttle-aware backoff, and a secondary search-style
// source when the primary geocoder is shedding load.
package resolve

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/placepin/importer/internal/model"
	"github.com/placepin/importer/internal/resilience"
	"github.com/placepin/importer/pkg/geocode"
	"github.com/placepin/importer/pkg/placesearch"
)

// Resolver geocodes one candidate at a time. The caller owns publication of
// candidate mutations; Resolve works on the copy it is given.
type Resolver struct {
	geocoder geocode.Client
	search   placesearch.Client // throttle-fallback source, may be nil

	// structuredPause is the fixed wait after a throttled structured attempt.
	structuredPause time.Duration
	// backoffStep scales the escalating per-variant backoff.
	backoffStep time.Duration
	// backoffCap bounds the escalating backoff.
	backoffCap time.Duration

	sleep func(context.Context, time.Duration) bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBackoff sets the escalating backoff step and cap for throttled
// string-variant attempts.
func WithBackoff(step, cap time.Duration) Option {
	return func(r *Resolver) {
		r.backoffStep = step
		r.backoffCap = cap
	}
}

// WithStructuredPause sets the fixed pause after a throttled structured
// attempt.
func WithStructuredPause(d time.Duration) Option {
	return func(r *Resolver) {
		r.structuredPause = d
	}
}

// New creates a Resolver. search may be nil when no secondary source is
// configured.
func New(geocoder geocode.Client, search placesearch.Client, opts ...Option) *Resolver {
	r := &Resolver{
		geocoder:        geocoder,
		search:          search,
		structuredPause: time.Second,
		backoffStep:     500 * time.Millisecond,
		backoffCap:      2 * time.Second,
		sleep:           resilience.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve geocodes the candidate, mutating its status and coordinate, and
// returns the diagnostic lines accumulated along the way. The candidate
// always ends resolved or failed unless the context is cancelled mid-flight,
// in which case the caller discards the partial result.
func (r *Resolver) Resolve(ctx context.Context, c *model.CandidateAddress) []string {
	log := zap.L().With(
		zap.String("component", "resolve"),
		zap.String("candidate_id", c.ID),
	)

	c.Status = model.StatusResolving
	var debug []string
	note := func(format string, args ...any) {
		debug = append(debug, fmt.Sprintf(format, args...))
	}

	plan := buildPlan(*c)

	// Structured attempt first: cheapest to trust when it matches.
	if plan.structured != nil {
		result, err := r.geocoder.Geocode(ctx, *plan.structured)
		switch {
		case ctx.Err() != nil:
			return debug
		case err == nil && result.Matched:
			c.Coordinate = &model.Coordinate{Latitude: result.Latitude, Longitude: result.Longitude}
			c.Status = model.StatusResolved
			note("structured geocode matched via %s (%s)", result.Source, result.Quality)
			return debug
		case resilience.IsThrottled(err):
			note("structured geocode throttled; pausing %s", r.structuredPause)
			log.Warn("structured geocode throttled", zap.Error(err))
			if !r.sleep(ctx, r.structuredPause) {
				return debug
			}
		case err != nil:
			note("structured geocode error: %v", err)
			log.Debug("structured geocode failed", zap.Error(err))
		default:
			note("structured geocode: no match")
		}
	}

	throttledOut := false
	for i, query := range plan.queries {
		if ctx.Err() != nil {
			return debug
		}

		result, err := r.geocoder.GeocodeQuery(ctx, query)
		if ctx.Err() != nil {
			return debug
		}

		if err == nil && result.Matched {
			c.Coordinate = &model.Coordinate{Latitude: result.Latitude, Longitude: result.Longitude}
			c.Status = model.StatusResolved
			note("variant %d matched via %s (%s): %q", i+1, result.Source, result.Quality, query)
			return debug
		}

		if resilience.IsThrottled(err) {
			throttledOut = true
			delay := r.backoffDelay(i)
			note("variant %d throttled; backing off %s: %q", i+1, delay, query)
			log.Warn("geocode variant throttled",
				zap.Int("variant", i+1),
				zap.Duration("backoff", delay),
			)
			if !r.sleep(ctx, delay) {
				return debug
			}

			// Try the secondary search source before giving up on the variant.
			if r.resolveViaSearch(ctx, c, query, i, note) {
				return debug
			}
			if ctx.Err() != nil {
				return debug
			}
			continue
		}

		if err != nil {
			note("variant %d error: %v", i+1, err)
			log.Debug("geocode variant failed", zap.String("query", query), zap.Error(err))
			continue
		}
		note("variant %d: no match: %q", i+1, query)
	}

	c.Status = model.StatusFailed
	if throttledOut {
		note("geocoding failed: rate-limited by backend after exhausting all variants")
	} else if len(plan.queries) == 0 && plan.structured == nil {
		note("geocoding failed: no usable query could be built")
	} else {
		note("geocoding failed: no variant matched")
	}
	log.Info("candidate failed to resolve", zap.Int("variants", len(plan.queries)))
	return debug
}

// resolveViaSearch attempts the alternate search-style backend for a
// throttled variant. Returns true when the candidate was resolved.
func (r *Resolver) resolveViaSearch(ctx context.Context, c *model.CandidateAddress, query string, i int, note func(string, ...any)) bool {
	if r.search == nil {
		return false
	}

	hits, err := r.search.Search(ctx, query)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		note("variant %d search fallback error: %v", i+1, err)
		return false
	}
	if len(hits) == 0 {
		note("variant %d search fallback: no hits", i+1)
		return false
	}

	hit := hits[0]
	c.Coordinate = &model.Coordinate{Latitude: hit.Latitude, Longitude: hit.Longitude}
	c.Status = model.StatusResolved
	note("variant %d matched via search fallback: %s", i+1, hit.DisplayName)
	return true
}

// backoffDelay escalates with the variant index: step, 2*step, 3*step,
// capped.
func (r *Resolver) backoffDelay(variantIdx int) time.Duration {
	d := time.Duration(variantIdx+1) * r.backoffStep
	if d > r.backoffCap {
		d = r.backoffCap
	}
	return d
}
