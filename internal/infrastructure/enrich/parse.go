package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"billscan/internal/domain"
)

// ErrInvalidSchema marks a model response that cannot be mapped onto the
// analysis schema. Callers must treat it as permanent.
var ErrInvalidSchema = errors.New("response does not match analysis schema")

var errEmptyInput = errors.New("no text to analyze")

// Models occasionally wrap JSON answers in markdown fences.
var codeFenceExpr = regexp.MustCompile("(?s)^```(?:json)?\\s*\n?(.*?)\n?```\\s*$")

// parseAnalysis decodes the model's answer, tolerating code fences and
// leading prose, and validates the required fields.
func parseAnalysis(text string) (*domain.AnalysisContent, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response: %w", ErrInvalidSchema)
	}

	if m := codeFenceExpr.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}
	if start := strings.Index(trimmed, "{"); start > 0 {
		trimmed = trimmed[start:]
	}
	if end := strings.LastIndex(trimmed, "}"); end >= 0 && end < len(trimmed)-1 {
		trimmed = trimmed[:end+1]
	}

	var content domain.AnalysisContent
	if err := json.Unmarshal([]byte(trimmed), &content); err != nil {
		return nil, fmt.Errorf("decode analysis (%v): %w", err, ErrInvalidSchema)
	}

	missing := missingFields(content)
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing fields %s: %w", strings.Join(missing, ", "), ErrInvalidSchema)
	}
	return &content, nil
}

func missingFields(content domain.AnalysisContent) []string {
	var missing []string
	for name, value := range map[string]string{
		"summary":                    content.Summary,
		"perspective":                content.Perspective,
		"estimated_cost_impact":      content.EstimatedCostImpact,
		"government_growth_analysis": content.GovernmentGrowthAnalysis,
		"market_impact_analysis":     content.MarketImpactAnalysis,
		"liberty_impact_analysis":    content.LibertyImpactAnalysis,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
