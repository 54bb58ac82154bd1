package enrich

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"billscan/internal/config"
	"billscan/internal/domain"
	"billscan/internal/ports"
)

const analysisPromptFormat = `Analyze the following legislation and respond with JSON only, using exactly this structure:
{
    "summary": "A concise 2-3 sentence summary of the main points",
    "perspective": "The analytical perspective applied",
    "key_points": ["key point 1", "key point 2"],
    "estimated_cost_impact": "Analysis of fiscal impact on taxpayers and the federal budget",
    "government_growth_analysis": "Analysis of how this measure expands or contracts government power and bureaucracy",
    "market_impact_analysis": "Analysis of effects on market efficiency, competition, and economic freedom",
    "liberty_impact_analysis": "Analysis of implications for individual liberty and property rights"
}

%s`

// Client generates structured analyses via the Anthropic messages API.
// Pure request/response; persistence is the caller's concern.
type Client struct {
	client       anthropic.Client
	model        string
	maxTokens    int64
	systemPrompt string
}

var _ ports.Enricher = (*Client)(nil)

// NewClient builds a client from configuration. Extra request options are
// forwarded to the SDK (tests use option.WithBaseURL).
func NewClient(cfg config.EnrichmentConfig, opts ...option.RequestOption) *Client {
	requestOpts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Client{
		client:       anthropic.NewClient(requestOpts...),
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
	}
}

// GenerateAnalysis sends the legislative text, with optional parent-bill
// context, and decodes the model's JSON answer into the fixed analysis
// schema. An answer that cannot be decoded into that schema is a permanent
// failure; retrying the same text is the caller's per-item decision.
func (c *Client) GenerateAnalysis(ctx context.Context, text, contextText string) (*domain.AnalysisContent, error) {
	if text == "" {
		return nil, fmt.Errorf("enrich: %w", errEmptyInput)
	}

	content := text
	if contextText != "" {
		content = fmt.Sprintf("Original bill:\n%s\n\nAmendment:\n%s", contextText, text)
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: c.systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf(analysisPromptFormat, content))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	analysis, err := parseAnalysis(responseText)
	if err != nil {
		return nil, fmt.Errorf("enrich: %w", err)
	}
	return analysis, nil
}
