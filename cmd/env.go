package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/placepin/importer/internal/config"
	"github.com/placepin/importer/internal/extract"
	"github.com/placepin/importer/internal/fetch"
	"github.com/placepin/importer/internal/pipeline"
	"github.com/placepin/importer/internal/resolve"
	"github.com/placepin/importer/internal/store"
	"github.com/placepin/importer/pkg/geocode"
	"github.com/placepin/importer/pkg/llm"
	"github.com/placepin/importer/pkg/placesearch"
)

// env bundles the wired pipeline and its collaborators for a command run.
type env struct {
	Coordinator *pipeline.Coordinator
	Store       *store.SQLiteStore
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initImporter wires the pipeline from configuration: fetcher, extraction
// engine, resolver with region-biased geocoding and search fallback, and the
// SQLite persistence collaborator.
func initImporter(ctx context.Context, c *config.Config) (*env, error) {
	st, err := store.NewSQLite(c.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	fetcher := fetch.NewHTTPFetcher(fetch.Options{
		UserAgent:  c.Fetch.UserAgent,
		Timeout:    time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: c.Fetch.MaxRetries,
	})

	var llmStrategy extract.Strategy
	if c.LLM.Enabled && c.LLM.Key != "" {
		llmStrategy = extract.NewLLMStrategy(llm.NewClient(c.LLM.Key, llm.Config{
			Model:     c.LLM.Model,
			MaxTokens: c.LLM.MaxTokens,
		}))
	} else {
		zap.L().Info("generative extraction disabled; using rule-based strategies only")
	}
	engine := extract.NewEngine(llmStrategy, c.Pipeline.EntityWindowLines)

	bounds := geom.NewBounds(geom.XY)
	bounds.Set(c.Geocode.BiasMinLng, c.Geocode.BiasMinLat, c.Geocode.BiasMaxLng, c.Geocode.BiasMaxLat)
	geocoder := geocode.NewClient(
		geocode.WithGoogleAPIKey(c.Geocode.GoogleKey),
		geocode.WithHTTPClient(&http.Client{Timeout: time.Duration(c.Geocode.TimeoutSecs) * time.Second}),
		geocode.WithRateLimit(c.Geocode.RateLimit),
		geocode.WithRegionBias(c.Geocode.Region, bounds),
	)

	var search placesearch.Client
	if c.Search.BaseURL != "" {
		search = placesearch.NewClient(
			placesearch.WithBaseURL(c.Search.BaseURL),
			placesearch.WithEmail(c.Search.Email),
			placesearch.WithHTTPClient(&http.Client{Timeout: time.Duration(c.Search.TimeoutSecs) * time.Second}),
			placesearch.WithViewbox(bounds),
		)
	}

	resolver := resolve.New(geocoder, search,
		resolve.WithBackoff(
			time.Duration(c.Geocode.BackoffStepMS)*time.Millisecond,
			time.Duration(c.Geocode.BackoffCapMS)*time.Millisecond,
		),
	)

	coord := pipeline.New(fetcher, engine, resolver,
		pipeline.WithPlaceSaver(st),
		pipeline.WithInterItemDelay(time.Duration(c.Geocode.InterItemMS)*time.Millisecond),
	)

	return &env{Coordinator: coord, Store: st}, nil
}
