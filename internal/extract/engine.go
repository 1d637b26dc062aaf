package extract

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/placepin/importer/internal/model"
)

// Strategy extracts address candidates from raw text or markup. Strategies
// fail soft: any internal failure yields zero candidates, never an error.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, input string) []model.CandidateAddress
}

// Engine runs the strategy chain in fixed priority order:
//
//  1. structured markup — short-circuits the chain when it finds anything
//  2. language model
//  3. named entities
//  4. heuristic blocks
//  5. generic patterns
//
// Results from strategies 2-5 are concatenated, filtered by the
// address-like heuristic, and deduplicated by normalized text.
type Engine struct {
	markup   Strategy
	fallback []Strategy // strategies 2-5, priority order
	llmIdx   int        // index of the LLM strategy in fallback, -1 if absent
}

// NewEngine builds the default strategy chain. llm may be nil when no model
// backend is configured; the chain simply skips that strategy.
func NewEngine(llm Strategy, windowLines int) *Engine {
	e := &Engine{
		markup: &markupStrategy{},
		llmIdx: -1,
	}
	if llm != nil {
		e.llmIdx = len(e.fallback)
		e.fallback = append(e.fallback, llm)
	}
	e.fallback = append(e.fallback,
		&entityStrategy{window: windowLines},
		&blockStrategy{},
		&patternStrategy{},
	)
	return e
}

// Extract runs the chain over the input. The returned flag reports whether
// the high-cost model strategy actually executed; callers use it to disclose
// fallback compute to the user.
func (e *Engine) Extract(ctx context.Context, input string) ([]model.CandidateAddress, bool) {
	log := zap.L().With(zap.String("component", "extract.engine"))

	if strings.TrimSpace(input) == "" {
		return nil, false
	}

	// Structured markup is the highest-confidence source; trust it alone.
	if found := e.markup.Extract(ctx, input); len(found) > 0 {
		log.Debug("markup extraction short-circuit", zap.Int("candidates", len(found)))
		return Dedup(found), false
	}

	// Run the remaining strategies concurrently, collecting into indexed
	// slots so the merge preserves strategy priority order.
	results := make([][]model.CandidateAddress, len(e.fallback))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range e.fallback {
		g.Go(func() error {
			results[i] = s.Extract(gctx, input)
			log.Debug("strategy done",
				zap.String("strategy", s.Name()),
				zap.Int("candidates", len(results[i])),
			)
			return nil
		})
	}
	_ = g.Wait() // strategies never return errors

	var merged []model.CandidateAddress
	for _, r := range results {
		merged = append(merged, r...)
	}

	filtered := merged[:0]
	for _, c := range merged {
		if addressLike(c) {
			filtered = append(filtered, c)
		}
	}

	usedFallbackCompute := e.llmIdx >= 0
	return Dedup(filtered), usedFallbackCompute
}

// Dedup removes candidates whose case-insensitive, trimmed normalized text
// matches an earlier entry. Order is preserved; the first occurrence wins.
func Dedup(candidates []model.CandidateAddress) []model.CandidateAddress {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]model.CandidateAddress, 0, len(candidates))
	for _, c := range candidates {
		key := c.DedupKey()
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// addressLike is the merged-result filter: keep a candidate only if it has
// a street-number-plus-street-type line, or a city/state pair together with
// a 5-digit postal token.
func addressLike(c model.CandidateAddress) bool {
	hasStreet := false
	hasCityState := IsStateToken(c.Parts.State) && c.Parts.City != ""
	hasZip := zipTokenRe.MatchString(c.Parts.PostalCode)

	for _, line := range strings.Split(c.NormalizedText, "\n") {
		if streetLineRe.MatchString(line) {
			hasStreet = true
		}
		if m := cityStateLineRe.FindStringSubmatch(line); m != nil && IsStateToken(m[2]) {
			hasCityState = true
			if m[3] != "" {
				hasZip = true
			}
		}
		if !hasZip && zipTokenRe.MatchString(line) {
			hasZip = true
		}
	}

	return hasStreet || (hasCityState && hasZip)
}
