package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/placepin/importer/internal/model"
	"github.com/placepin/importer/internal/resilience"
	"github.com/placepin/importer/pkg/llm"
)

// llmStrategy submits the text to a generative model constrained to return
// structured address fields. This is the costly fallback-compute path.
type llmStrategy struct {
	client llm.Client
}

// NewLLMStrategy wraps a model client as a chain strategy. Returns nil when
// no client is configured so the engine skips the strategy entirely.
func NewLLMStrategy(client llm.Client) Strategy {
	if client == nil {
		return nil
	}
	return &llmStrategy{client: client}
}

func (s *llmStrategy) Name() string { return "llm" }

func (s *llmStrategy) Extract(ctx context.Context, input string) []model.CandidateAddress {
	records, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(),
		func(ctx context.Context) ([]llm.AddressRecord, error) {
			return s.client.ExtractAddresses(ctx, input)
		})
	if err != nil {
		zap.L().Warn("llm extraction failed", zap.Error(err))
		return nil
	}

	out := make([]model.CandidateAddress, 0, len(records))
	for _, r := range records {
		if r.Street == "" && r.City == "" {
			continue
		}

		streetLines := []string{r.Street}
		if r.Suite != "" {
			streetLines = append(streetLines, r.Suite)
		}
		normalized := buildNormalized(streetLines, r.City, r.State, r.Postal, r.Country)
		if normalized == "" {
			continue
		}

		c := model.NewCandidate(cleanLine(r.Organization), normalized, normalized)
		c.Parts = model.AddressParts{
			City:       cleanLine(r.City),
			State:      cleanLine(r.State),
			PostalCode: cleanLine(r.Postal),
		}
		out = append(out, c)
	}
	return out
}
