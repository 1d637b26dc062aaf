package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placepin/importer/internal/extract"
	"github.com/placepin/importer/internal/model"
	"github.com/placepin/importer/internal/resolve"
	"github.com/placepin/importer/pkg/geocode"
)

// switchableGeocoder lets a test flip geocoding outcomes mid-run.
type switchableGeocoder struct {
	mu        sync.Mutex
	match     bool
	lat       float64
	lng       float64
	block     chan struct{} // when set, calls wait here until ctx or close
	calls     int
	cancelled int // in-flight calls released by context cancellation
}

func (g *switchableGeocoder) setMatch(match bool) {
	g.mu.Lock()
	g.match = match
	g.mu.Unlock()
}

func (g *switchableGeocoder) result(ctx context.Context) (*geocode.Result, error) {
	g.mu.Lock()
	block := g.block
	match := g.match
	lat, lng := g.lat, g.lng
	g.calls++
	g.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			g.cancelled++
			g.mu.Unlock()
			return nil, ctx.Err()
		case <-block:
		}
	}
	if !match {
		return &geocode.Result{Matched: false}, nil
	}
	return &geocode.Result{Latitude: lat, Longitude: lng, Matched: true, Source: "test", Quality: "rooftop"}, nil
}

func (g *switchableGeocoder) Geocode(ctx context.Context, _ geocode.AddressInput) (*geocode.Result, error) {
	return g.result(ctx)
}

func (g *switchableGeocoder) GeocodeQuery(ctx context.Context, _ string) (*geocode.Result, error) {
	return g.result(ctx)
}

type fakeFetcher struct {
	body string
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, string) (string, error) {
	return f.body, f.err
}

type recordingSaver struct {
	mu    sync.Mutex
	saved [][3]any
	err   error
}

func (s *recordingSaver) SavePlace(_ context.Context, name string, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, [3]any{name, lat, lng})
	return nil
}

func newTestCoordinator(g geocode.Client, f *fakeFetcher, saver PlaceSaver) *Coordinator {
	engine := extract.NewEngine(nil, 5)
	resolver := resolve.New(g, nil)
	opts := []Option{WithInterItemDelay(time.Millisecond)}
	if saver != nil {
		opts = append(opts, WithPlaceSaver(saver))
	}
	return New(f, engine, resolver, opts...)
}

// waitForStage polls until the pipeline reaches the wanted stage kind.
func waitForStage(t *testing.T, c *Coordinator, kind model.StageKind) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := c.State()
		if snap.Stage.Kind == kind {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("pipeline never reached stage %q (last: %s)", kind, c.State().Stage)
	return Snapshot{}
}

const officeText = `Birmingham Office
420 North 20th Street
Suite 2400
Birmingham, AL
35203-3289
United States`

func TestCoordinator_PastedTextRunReachesReviewing(t *testing.T) {
	g := &switchableGeocoder{match: true, lat: 33.5186, lng: -86.8104}
	c := newTestCoordinator(g, &fakeFetcher{}, nil)

	var stages []model.StageKind
	var mu sync.Mutex
	c.AddObserver(func(snap Snapshot) {
		mu.Lock()
		stages = append(stages, snap.Stage.Kind)
		mu.Unlock()
	})

	c.Start(officeText)
	snap := waitForStage(t, c, model.StageReviewing)

	require.Len(t, snap.Candidates, 1)
	cand := snap.Candidates[0]
	assert.Equal(t, model.StatusResolved, cand.Status)
	require.NotNil(t, cand.Coordinate)
	assert.InDelta(t, 33.5186, cand.Coordinate.Latitude, 0.0001)
	assert.NotEmpty(t, snap.Debug.Lines(cand.ID))
	assert.False(t, snap.UsedFallbackCompute)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, stages, model.StageExtracting)
	assert.Contains(t, stages, model.StageGeocoding)
	assert.NotContains(t, stages, model.StageFetching, "pasted text must not enter fetching")
}

func TestCoordinator_URLRunFetchesFirst(t *testing.T) {
	g := &switchableGeocoder{match: true, lat: 1, lng: 2}
	f := &fakeFetcher{body: officeText}
	c := newTestCoordinator(g, f, nil)

	c.Start("https://example.com/contact")
	snap := waitForStage(t, c, model.StageReviewing)
	require.Len(t, snap.Candidates, 1)
}

func TestCoordinator_FetchFailureFailsRun(t *testing.T) {
	f := &fakeFetcher{err: errors.New("status 404 from https://example.com")}
	c := newTestCoordinator(&switchableGeocoder{}, f, nil)

	c.Start("https://example.com/missing")
	snap := waitForStage(t, c, model.StageFailed)
	assert.Contains(t, snap.Stage.Message, "404")
	assert.Empty(t, snap.Candidates)
}

func TestCoordinator_EmptyExtractionStillReachesReviewing(t *testing.T) {
	c := newTestCoordinator(&switchableGeocoder{}, &fakeFetcher{}, nil)

	c.Start("nothing that looks like an address")
	snap := waitForStage(t, c, model.StageReviewing)
	assert.Empty(t, snap.Candidates)
}

func TestCoordinator_GeneratedRecordsRunValidatesFirst(t *testing.T) {
	g := &switchableGeocoder{match: true, lat: 40.0, lng: -105.0}
	c := newTestCoordinator(g, &fakeFetcher{}, nil)

	records := []model.GeneratedPlaceRecord{
		{Name: "Good", Street1: "1700 Lincoln Street", City: "Denver", State: "CO", PostalCode: "80203"},
		{Name: "Bad", Street1: "N/A", City: "Denver"},
	}
	c.StartFromGeneratedRecords(records, true)

	snap := waitForStage(t, c, model.StageReviewing)
	require.Len(t, snap.Candidates, 1, "invalid record must be dropped before geocoding")
	assert.Equal(t, "Good", snap.Candidates[0].DisplayName)
	assert.Equal(t, model.StatusResolved, snap.Candidates[0].Status)
	assert.True(t, snap.UsedFallbackCompute)
}

func TestCoordinator_BatchCompletesWithMixedOutcomes(t *testing.T) {
	// No matches anywhere: every candidate ends failed, but the batch still
	// finishes and holds in reviewing.
	c := newTestCoordinator(&switchableGeocoder{match: false}, &fakeFetcher{}, nil)

	records := []model.GeneratedPlaceRecord{
		{Name: "A", Street1: "1 Oak Ave", City: "Boston", State: "MA", PostalCode: "02101"},
		{Name: "B", Street1: "2 Elm St", City: "Denver", State: "CO", PostalCode: "80203"},
	}
	c.StartFromGeneratedRecords(records, false)

	snap := waitForStage(t, c, model.StageReviewing)
	require.Len(t, snap.Candidates, 2)
	for _, cand := range snap.Candidates {
		assert.Equal(t, model.StatusFailed, cand.Status)
		assert.Nil(t, cand.Coordinate)
	}
}

func TestCoordinator_CancelReturnsToIdleWithoutMutations(t *testing.T) {
	g := &switchableGeocoder{match: true, block: make(chan struct{})}
	c := newTestCoordinator(g, &fakeFetcher{}, nil)

	c.Start(officeText)
	waitForStage(t, c, model.StageGeocoding)

	c.Cancel()

	snap := c.State()
	assert.Equal(t, model.StageIdle, snap.Stage.Kind)
	assert.Empty(t, snap.Candidates)
	assert.False(t, snap.UsedFallbackCompute)

	// The superseded run's goroutine must not leak state back in.
	time.Sleep(20 * time.Millisecond)
	snap = c.State()
	assert.Equal(t, model.StageIdle, snap.Stage.Kind)
	assert.Empty(t, snap.Candidates)
}

func TestCoordinator_NewRunSupersedesPrevious(t *testing.T) {
	blocked := &switchableGeocoder{match: true, block: make(chan struct{})}
	c := newTestCoordinator(blocked, &fakeFetcher{}, nil)

	c.Start(officeText)
	waitForStage(t, c, model.StageGeocoding)

	// Second run with an immediate geocoder.
	blocked.mu.Lock()
	blocked.block = nil
	blocked.mu.Unlock()

	c.Start("1700 Lincoln Street\nDenver, CO 80203")
	snap := waitForStage(t, c, model.StageReviewing)
	require.Len(t, snap.Candidates, 1)
	assert.Contains(t, snap.Candidates[0].NormalizedText, "Denver")
}

func TestCoordinator_RetryIsIndependentAndKeepsStage(t *testing.T) {
	g := &switchableGeocoder{match: false}
	c := newTestCoordinator(g, &fakeFetcher{}, nil)

	c.Start(officeText)
	snap := waitForStage(t, c, model.StageReviewing)
	require.Len(t, snap.Candidates, 1)
	failed := snap.Candidates[0]
	require.Equal(t, model.StatusFailed, failed.Status)

	// Backend recovers; retry just this candidate.
	g.setMatch(true)
	g.mu.Lock()
	g.lat, g.lng = 33.5186, -86.8104
	g.mu.Unlock()

	c.Retry(failed.ID)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap = c.State()
		if len(snap.Candidates) == 1 && snap.Candidates[0].Status == model.StatusResolved {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	require.Equal(t, model.StatusResolved, snap.Candidates[0].Status)
	require.NotNil(t, snap.Candidates[0].Coordinate)
	assert.Equal(t, model.StageReviewing, snap.Stage.Kind, "retry must not change the pipeline stage")
}

func TestCoordinator_CancelAbortsInFlightRetry(t *testing.T) {
	g := &switchableGeocoder{match: false}
	c := newTestCoordinator(g, &fakeFetcher{}, nil)

	c.Start(officeText)
	snap := waitForStage(t, c, model.StageReviewing)
	require.Len(t, snap.Candidates, 1)
	failed := snap.Candidates[0]
	require.Equal(t, model.StatusFailed, failed.Status)

	// Block the backend so the retry's call is in flight when Cancel lands.
	g.mu.Lock()
	before := g.calls
	g.block = make(chan struct{})
	g.mu.Unlock()

	c.Retry(failed.ID)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		inFlight := g.calls > before
		g.mu.Unlock()
		if inFlight {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	c.Cancel()

	// The blocked call must be released by cancellation, not left waiting on
	// the backend.
	deadline = time.Now().Add(5 * time.Second)
	for {
		g.mu.Lock()
		cancelled := g.cancelled
		g.mu.Unlock()
		if cancelled > 0 {
			break
		}
		if !time.Now().Before(deadline) {
			t.Fatal("in-flight retry call was never cancelled")
		}
		time.Sleep(2 * time.Millisecond)
	}

	snap = c.State()
	assert.Equal(t, model.StageIdle, snap.Stage.Kind)
	assert.Empty(t, snap.Candidates)
}

func TestCoordinator_RetryIgnoresNonFailedCandidates(t *testing.T) {
	g := &switchableGeocoder{match: true, lat: 1, lng: 2}
	c := newTestCoordinator(g, &fakeFetcher{}, nil)

	c.Start(officeText)
	snap := waitForStage(t, c, model.StageReviewing)
	require.Len(t, snap.Candidates, 1)
	resolved := snap.Candidates[0]
	require.Equal(t, model.StatusResolved, resolved.Status)

	before := g.calls
	c.Retry(resolved.ID)
	c.Retry("no-such-id")
	time.Sleep(20 * time.Millisecond)

	g.mu.Lock()
	after := g.calls
	g.mu.Unlock()
	assert.Equal(t, before, after, "resolved or unknown candidates must not re-geocode")
}

func TestCoordinator_ConfirmSavesTuplesAndCompletes(t *testing.T) {
	g := &switchableGeocoder{match: true, lat: 33.5186, lng: -86.8104}
	saver := &recordingSaver{}
	c := newTestCoordinator(g, &fakeFetcher{}, saver)

	c.Start(officeText)
	snap := waitForStage(t, c, model.StageReviewing)
	require.Len(t, snap.Candidates, 1)

	err := c.Confirm(context.Background(), []string{snap.Candidates[0].ID})
	require.NoError(t, err)

	assert.Equal(t, model.StageCompleted, c.State().Stage.Kind)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, "Birmingham Office", saver.saved[0][0])
	assert.InDelta(t, 33.5186, saver.saved[0][1].(float64), 0.0001)
	assert.InDelta(t, -86.8104, saver.saved[0][2].(float64), 0.0001)
}

func TestCoordinator_ConfirmOutsideReviewingFails(t *testing.T) {
	c := newTestCoordinator(&switchableGeocoder{}, &fakeFetcher{}, &recordingSaver{})

	err := c.Confirm(context.Background(), []string{"any"})
	require.Error(t, err)
}

func TestCoordinator_ConfirmSkipsUnresolvedCandidates(t *testing.T) {
	g := &switchableGeocoder{match: false}
	saver := &recordingSaver{}
	c := newTestCoordinator(g, &fakeFetcher{}, saver)

	c.Start(officeText)
	snap := waitForStage(t, c, model.StageReviewing)
	require.Len(t, snap.Candidates, 1)

	err := c.Confirm(context.Background(), []string{snap.Candidates[0].ID})
	require.NoError(t, err)
	assert.Empty(t, saver.saved, "failed candidates carry no coordinate to persist")
}
