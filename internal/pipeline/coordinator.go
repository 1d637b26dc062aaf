// Package pipeline coordinates the staged address import flow:
// fetch, extract/validate, geocode, review.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/placepin/importer/internal/extract"
	"github.com/placepin/importer/internal/fetch"
	"github.com/placepin/importer/internal/model"
	"github.com/placepin/importer/internal/resilience"
	"github.com/placepin/importer/internal/resolve"
	"github.com/placepin/importer/internal/validate"
)

// PlaceSaver receives confirmed candidates for persistence.
type PlaceSaver interface {
	SavePlace(ctx context.Context, name string, latitude, longitude float64) error
}

// Snapshot is the externally observable pipeline state. All fields are
// copies; observers never see partial updates.
type Snapshot struct {
	Stage               model.PipelineStage
	Candidates          []model.CandidateAddress
	Debug               model.DebugLog
	UsedFallbackCompute bool
}

// Observer is notified with a fresh snapshot after every published mutation.
type Observer func(Snapshot)

// Coordinator is the pipeline state machine. Exactly one run is active at a
// time; starting a new run supersedes the previous one. Every observable
// mutation passes through the single mutex-guarded writer and is keyed by
// stable candidate id, never by index.
type Coordinator struct {
	fetcher  fetch.Fetcher
	engine   *extract.Engine
	resolver *resolve.Resolver
	saver    PlaceSaver

	interItemDelay time.Duration

	mu           sync.Mutex
	generation   uint64
	runCtx       context.Context
	cancelRun    context.CancelFunc
	stage        model.PipelineStage
	candidates   []model.CandidateAddress
	debug        model.DebugLog
	usedFallback bool
	observers    []Observer
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithInterItemDelay sets the proactive throttle delay between successive
// candidates in a geocoding batch.
func WithInterItemDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		c.interItemDelay = d
	}
}

// WithPlaceSaver sets the persistence collaborator for confirmed candidates.
func WithPlaceSaver(s PlaceSaver) Option {
	return func(c *Coordinator) {
		c.saver = s
	}
}

// New creates a Coordinator in the idle state.
func New(fetcher fetch.Fetcher, engine *extract.Engine, resolver *resolve.Resolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher:        fetcher,
		engine:         engine,
		resolver:       resolver,
		interItemDelay: 500 * time.Millisecond,
		stage:          model.Idle(),
		debug:          model.DebugLog{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddObserver registers an observer for state snapshots.
func (c *Coordinator) AddObserver(obs Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, obs)
	c.mu.Unlock()
}

// State returns the current observable snapshot.
func (c *Coordinator) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Start begins a run from a URL or pasted text. Any prior run is cancelled
// and superseded. The run proceeds asynchronously; observe progress via
// AddObserver or State.
func (c *Coordinator) Start(urlOrText string) {
	gen, ctx := c.beginRun()

	go func() {
		input := strings.TrimSpace(urlOrText)
		if input == "" {
			c.fail(gen, "no input provided")
			return
		}

		if isURL(input) {
			c.setStage(gen, model.Fetching())
			body, err := c.fetcher.Fetch(ctx, input)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				c.fail(gen, eris.Cause(err).Error())
				return
			}
			input = body
		}

		c.setStage(gen, model.Extracting(false))
		candidates, usedFallback := c.engine.Extract(ctx, input)
		if ctx.Err() != nil {
			return
		}
		c.setExtracted(gen, candidates, usedFallback)

		c.geocodeLoop(ctx, gen)
	}()
}

// StartFromGeneratedRecords begins a run from validated generated records,
// skipping fetch and extraction. usedFallbackCompute is the generation
// collaborator's report of whether a higher-cost compute path produced the
// records.
func (c *Coordinator) StartFromGeneratedRecords(records []model.GeneratedPlaceRecord, usedFallbackCompute bool) {
	gen, ctx := c.beginRun()

	go func() {
		c.setStage(gen, model.Extracting(usedFallbackCompute))
		candidates := validate.Batch(records)
		if ctx.Err() != nil {
			return
		}
		c.setExtracted(gen, candidates, usedFallbackCompute)

		c.geocodeLoop(ctx, gen)
	}()
}

// Cancel aborts any in-flight run, clears candidates and flags, and returns
// the pipeline to idle. Safe to call from any state, including concurrently
// with a running geocoding loop.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
		c.runCtx = nil
	}
	c.generation++
	c.stage = model.Idle()
	c.candidates = nil
	c.debug = model.DebugLog{}
	c.usedFallback = false
	snap := c.snapshotLocked()
	obs := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	notify(obs, snap)
}

// Retry re-queues one failed candidate as an independent unit of work. It
// updates only that candidate and never changes the pipeline stage.
func (c *Coordinator) Retry(candidateID string) {
	c.mu.Lock()
	gen := c.generation
	if c.stage.Kind != model.StageReviewing && c.stage.Kind != model.StageGeocoding {
		c.mu.Unlock()
		return
	}
	cand, ok := c.candidateLocked(candidateID)
	if !ok || cand.Status != model.StatusFailed {
		c.mu.Unlock()
		return
	}
	cand.Status = model.StatusResolving
	cand.Coordinate = nil
	c.applyLocked(cand)
	ctx := c.runCtx
	snap := c.snapshotLocked()
	obs := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	notify(obs, snap)

	go func() {
		// Retry shares the run's context so Cancel aborts its in-flight
		// network calls too.
		if ctx == nil {
			ctx = context.Background()
		}
		lines := c.resolver.Resolve(ctx, &cand)
		c.applyCandidate(gen, cand, lines)
	}()
}

// Confirm hands the selected candidates to the persistence collaborator as
// (name, latitude, longitude) tuples and completes the run. Valid only in
// the reviewing state.
func (c *Coordinator) Confirm(ctx context.Context, candidateIDs []string) error {
	c.mu.Lock()
	if c.stage.Kind != model.StageReviewing {
		c.mu.Unlock()
		return eris.New("pipeline: confirm outside reviewing state")
	}
	if c.saver == nil {
		c.mu.Unlock()
		return eris.New("pipeline: no persistence collaborator configured")
	}
	gen := c.generation
	var selected []model.CandidateAddress
	for _, id := range candidateIDs {
		if cand, ok := c.candidateLocked(id); ok && cand.Status == model.StatusResolved && cand.Coordinate != nil {
			selected = append(selected, cand)
		}
	}
	c.mu.Unlock()

	for _, cand := range selected {
		name := cand.DisplayName
		if name == "" {
			name = strings.SplitN(cand.NormalizedText, "\n", 2)[0]
		}
		if err := c.saver.SavePlace(ctx, name, cand.Coordinate.Latitude, cand.Coordinate.Longitude); err != nil {
			return eris.Wrap(err, "pipeline: save confirmed place")
		}
	}

	c.setStage(gen, model.Completed())
	zap.L().Info("pipeline: run completed", zap.Int("confirmed", len(selected)))
	return nil
}

// geocodeLoop sequentially resolves every candidate. Sequential on purpose:
// it keeps the backoff and rate-limit behavior deterministic. Cancellation
// is checked at the top of each iteration and inside every awaited call.
func (c *Coordinator) geocodeLoop(ctx context.Context, gen uint64) {
	ids := c.candidateIDs(gen)
	total := len(ids)
	c.setStage(gen, model.Geocoding(0, total))

	for done, id := range ids {
		if ctx.Err() != nil {
			return
		}

		cand, ok := c.markResolving(gen, id)
		if !ok {
			continue
		}

		lines := c.resolver.Resolve(ctx, &cand)
		if ctx.Err() != nil {
			return
		}
		c.applyCandidate(gen, cand, lines)
		c.setStage(gen, model.Geocoding(done+1, total))

		if done < total-1 {
			if !resilience.Sleep(ctx, c.interItemDelay) {
				return
			}
		}
	}

	c.setStage(gen, model.Reviewing())
}

// beginRun supersedes any active run and allocates a new generation.
func (c *Coordinator) beginRun() (uint64, context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelRun != nil {
		c.cancelRun()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.runCtx = ctx
	c.cancelRun = cancel
	c.generation++
	c.stage = model.Idle()
	c.candidates = nil
	c.debug = model.DebugLog{}
	c.usedFallback = false
	return c.generation, ctx
}

// --- serialized writer helpers ---

func (c *Coordinator) setStage(gen uint64, stage model.PipelineStage) {
	c.publish(gen, func() {
		if stage.Kind == model.StageExtracting {
			stage.UsedFallbackCompute = c.usedFallback
		}
		c.stage = stage
	})
}

func (c *Coordinator) fail(gen uint64, message string) {
	zap.L().Warn("pipeline: run failed", zap.String("reason", message))
	c.publish(gen, func() {
		c.stage = model.Failed(message)
	})
}

func (c *Coordinator) setExtracted(gen uint64, candidates []model.CandidateAddress, usedFallback bool) {
	c.publish(gen, func() {
		c.usedFallback = usedFallback
		c.stage = model.Extracting(usedFallback)
		c.candidates = candidates
	})
}

// markResolving flips a candidate to resolving and returns a private copy
// for the resolver to work on.
func (c *Coordinator) markResolving(gen uint64, id string) (model.CandidateAddress, bool) {
	var cand model.CandidateAddress
	found := false
	c.publish(gen, func() {
		if cur, ok := c.candidateLocked(id); ok && cur.Status == model.StatusPending {
			cur.Status = model.StatusResolving
			c.applyLocked(cur)
			cand = cur
			found = true
		}
	})
	return cand, found
}

// applyCandidate writes a resolved/failed candidate back by stable id,
// appending its debug lines.
func (c *Coordinator) applyCandidate(gen uint64, cand model.CandidateAddress, debugLines []string) {
	c.publish(gen, func() {
		if _, ok := c.candidateLocked(cand.ID); !ok {
			return
		}
		c.applyLocked(cand)
		for _, line := range debugLines {
			c.debug.Append(cand.ID, line)
		}
	})
}

// publish runs a mutation under the writer lock, dropping it if the run has
// been superseded, then notifies observers with a consistent snapshot.
func (c *Coordinator) publish(gen uint64, mutate func()) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	mutate()
	snap := c.snapshotLocked()
	obs := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	notify(obs, snap)
}

func (c *Coordinator) candidateIDs(gen uint64) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return nil
	}
	ids := make([]string, len(c.candidates))
	for i, cand := range c.candidates {
		ids[i] = cand.ID
	}
	return ids
}

// candidateLocked resolves a stable id to a copy of the candidate. Callers
// must hold mu.
func (c *Coordinator) candidateLocked(id string) (model.CandidateAddress, bool) {
	for _, cand := range c.candidates {
		if cand.ID == id {
			return cand, true
		}
	}
	return model.CandidateAddress{}, false
}

// applyLocked writes a candidate back into the list by id. Callers must
// hold mu.
func (c *Coordinator) applyLocked(cand model.CandidateAddress) {
	for i := range c.candidates {
		if c.candidates[i].ID == cand.ID {
			c.candidates[i] = cand
			return
		}
	}
}

func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Stage:               c.stage,
		Candidates:          make([]model.CandidateAddress, len(c.candidates)),
		Debug:               model.DebugLog{},
		UsedFallbackCompute: c.usedFallback,
	}
	copy(snap.Candidates, c.candidates)
	for id, lines := range c.debug {
		snap.Debug[id] = append([]string(nil), lines...)
	}
	return snap
}

func notify(observers []Observer, snap Snapshot) {
	for _, obs := range observers {
		obs(snap)
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
