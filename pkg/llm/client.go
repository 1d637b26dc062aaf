// Package llm provides a generative-model client for structured address
// extraction from free-form text.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the model operations used by the extraction engine.
type Client interface {
	// ExtractAddresses asks the model for structured postal addresses found
	// in the given text. A text with no addresses yields an empty slice.
	ExtractAddresses(ctx context.Context, text string) ([]AddressRecord, error)
}

// AddressRecord is a structured address as returned by the model.
type AddressRecord struct {
	Organization string `json:"organization"`
	Street       string `json:"street"`
	Suite        string `json:"suite"`
	City         string `json:"city"`
	State        string `json:"state"`
	Postal       string `json:"postal"`
	Country      string `json:"country"`
}

const extractSystemText = "You extract postal addresses from text. Return only valid JSON. Use empty strings for fields not present."

const extractPrompt = `Find every postal address in the text below. Return a JSON array of objects with exactly these keys: organization, street, suite, city, state, postal, country. Return [] if there are none.

Text:
%TEXT%`

// Config holds model settings.
type Config struct {
	Model     string
	MaxTokens int64
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
	cfg    Config
}

// NewClient creates a new extraction client backed by the SDK.
func NewClient(apiKey string, cfg Config) Client {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &sdkClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		cfg:    cfg,
	}
}

func (c *sdkClient) ExtractAddresses(ctx context.Context, text string) ([]AddressRecord, error) {
	prompt := strings.Replace(extractPrompt, "%TEXT%", text, 1)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		System: []sdk.TextBlockParam{
			{Text: extractSystemText},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: extract addresses")
	}

	var raw strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			raw.WriteString(block.Text)
		}
	}

	records, err := ParseRecords(raw.String())
	if err != nil {
		// Malformed model output is treated as zero results, not a failure.
		zap.L().Debug("llm: unparseable extraction output", zap.Error(err))
		return nil, nil
	}
	return records, nil
}

// ParseRecords parses the model's JSON array output, tolerating surrounding
// prose and markdown fences.
func ParseRecords(raw string) ([]AddressRecord, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return nil, eris.New("llm: no JSON array in output")
	}

	var records []AddressRecord
	if err := json.Unmarshal([]byte(raw[start:end+1]), &records); err != nil {
		return nil, eris.Wrap(err, "llm: parse records")
	}
	return records, nil
}
