package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billscan/internal/config"
)

func messagesStub(t *testing.T, answer string, capture *map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "msg_test",
			"type": "message",
			"role": "assistant",
			"model": "claude-test-model",
			"stop_reason": "end_turn",
			"content": [{"type": "text", "text": %s}],
			"usage": {"input_tokens": 10, "output_tokens": 20}
		}`, mustJSON(t, answer))
	})
	return httptest.NewServer(mux)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func testConfig() config.EnrichmentConfig {
	return config.EnrichmentConfig{
		APIKey:       "test-key",
		Model:        "claude-test-model",
		MaxTokens:    1000,
		SystemPrompt: "You are an analyst.",
	}
}

func TestGenerateAnalysis(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	server := messagesStub(t, validAnalysisJSON, &captured)
	defer server.Close()

	client := NewClient(testConfig(), option.WithBaseURL(server.URL))
	content, err := client.GenerateAnalysis(context.Background(), "Be it enacted", "")
	require.NoError(t, err)
	assert.Equal(t, "Raises the widget tariff.", content.Summary)
	assert.Equal(t, "Restricts free exchange.", content.LibertyImpactAnalysis)

	assert.Equal(t, "claude-test-model", captured["model"])
	assert.EqualValues(t, 1000, captured["max_tokens"])

	prompt := promptText(t, captured)
	assert.Contains(t, prompt, "Be it enacted")
	assert.Contains(t, prompt, `"liberty_impact_analysis"`)
}

func TestGenerateAnalysisWrapsAmendmentContext(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	server := messagesStub(t, validAnalysisJSON, &captured)
	defer server.Close()

	client := NewClient(testConfig(), option.WithBaseURL(server.URL))
	_, err := client.GenerateAnalysis(context.Background(), "Strikes section 2", "Be it enacted")
	require.NoError(t, err)

	prompt := promptText(t, captured)
	assert.Contains(t, prompt, "Original bill:\nBe it enacted")
	assert.Contains(t, prompt, "Amendment:\nStrikes section 2")
}

func TestGenerateAnalysisFencedResponse(t *testing.T) {
	t.Parallel()

	server := messagesStub(t, "```json\n"+validAnalysisJSON+"\n```", nil)
	defer server.Close()

	client := NewClient(testConfig(), option.WithBaseURL(server.URL))
	content, err := client.GenerateAnalysis(context.Background(), "Be it enacted", "")
	require.NoError(t, err)
	assert.Equal(t, "Raises the widget tariff.", content.Summary)
}

func TestGenerateAnalysisRejectsInvalidAnswer(t *testing.T) {
	t.Parallel()

	server := messagesStub(t, "I cannot analyze this bill.", nil)
	defer server.Close()

	client := NewClient(testConfig(), option.WithBaseURL(server.URL))
	_, err := client.GenerateAnalysis(context.Background(), "Be it enacted", "")
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestGenerateAnalysisRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	client := NewClient(testConfig())
	_, err := client.GenerateAnalysis(context.Background(), "", "")
	assert.Error(t, err)
}

func promptText(t *testing.T, captured map[string]any) string {
	t.Helper()
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, messages)
	first, ok := messages[0].(map[string]any)
	require.True(t, ok)
	blocks, ok := first["content"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, blocks)
	block, ok := blocks[0].(map[string]any)
	require.True(t, ok)
	text, ok := block["text"].(string)
	require.True(t, ok)
	return text
}
