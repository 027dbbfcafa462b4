package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"salespulse/internal/config"
	"salespulse/internal/types"
)

// OpenAIClient turns a structured insight into a short human narrative via
// the chat completions API. Narration is best-effort throughout the
// pipeline: callers treat any error as "no narrative", so this client does
// not distinguish permanent from transient failures.
type OpenAIClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	model   string
	baseURL string
	logger  types.Logger
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithOpenAIBaseURL overrides the API base URL, for httptest servers.
func WithOpenAIBaseURL(u string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// NewOpenAIClient creates an OpenAIClient from the narrative configuration.
func NewOpenAIClient(httpClient *http.Client, cfg config.NarrativeConfig, logger types.Logger, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		base:    NewBaseClient(httpClient, "openai", RetryPolicy{MaxRetries: 1, MinWait: 500 * time.Millisecond, MaxWait: 2 * time.Second}),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const narrativeSystemPrompt = "You write one-sentence summaries of e-commerce " +
	"sales findings for busy store owners. Plain language, no jargon, no " +
	"advice, at most 30 words."

// Narrate produces a one-sentence narrative for the insight. Implements the
// insight Narrator interface.
func (c *OpenAIClient) Narrate(ctx context.Context, ins *types.Insight, current *types.SalesSnapshot) (string, error) {
	userPrompt := fmt.Sprintf(
		"Finding: %s. Metric: %s. Deviation: %.0f%%. Day: %s. Revenue that day: %.2f %s, %d orders.",
		ins.Title, ins.Metric, ins.Magnitude*100, ins.Bucket.Format("2006-01-02"),
		current.Revenue, current.Currency, current.OrderCount,
	)

	raw, err := json.Marshal(chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: narrativeSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   80,
		Temperature: 0.3,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("completion request returned %d", resp.StatusCode), nil)
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to decode completion response", err)
	}
	if len(out.Choices) == 0 {
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable, "completion response had no choices", nil)
	}

	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
