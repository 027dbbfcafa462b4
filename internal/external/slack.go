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

// slackAPIBase is the default Slack Web API base URL, overridable in tests.
const slackAPIBase = "https://slack.com/api"

// SlackClient posts direct messages through the Slack Web API using a bot
// token. Slack reports most failures as ok=false with an error code inside
// an HTTP 200, so status-based mapping alone is not enough.
type SlackClient struct {
	base     *BaseClient
	botToken types.SecretString
	baseURL  string
	logger   types.Logger
}

// SlackOption configures a SlackClient.
type SlackOption func(*SlackClient)

// WithSlackBaseURL overrides the API base URL, for httptest servers.
func WithSlackBaseURL(u string) SlackOption {
	return func(c *SlackClient) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// NewSlackClient creates a SlackClient from the slack configuration.
func NewSlackClient(httpClient *http.Client, cfg config.SlackConfig, logger types.Logger, opts ...SlackOption) *SlackClient {
	c := &SlackClient{
		base: NewBaseClient(httpClient, "slack", RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		}),
		botToken: cfg.BotToken,
		baseURL:  slackAPIBase,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type slackPostMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type slackPostMessageResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

// slackTerminalErrors are chat.postMessage error codes that can never
// succeed on retry for this recipient or workspace.
var slackTerminalErrors = map[string]types.ErrorCode{
	"channel_not_found": types.ErrCodePermanentAddress,
	"user_not_found":    types.ErrCodePermanentAddress,
	"user_not_visible":  types.ErrCodePermanentAddress,
	"is_archived":       types.ErrCodePermanentAddress,
	"not_in_channel":    types.ErrCodePermanentRejected,
	"msg_too_long":      types.ErrCodePermanentRejected,
	"restricted_action": types.ErrCodePermanentRejected,
	"invalid_auth":      types.ErrCodePermanentCredentials,
	"account_inactive":  types.ErrCodePermanentCredentials,
	"token_revoked":     types.ErrCodePermanentCredentials,
}

// PostDirectMessage sends text to a Slack user via chat.postMessage. Posting
// to a user ID opens (or reuses) the bot's DM conversation with that user.
// Returns the message timestamp, which serves as the provider message ID.
func (s *SlackClient) PostDirectMessage(ctx context.Context, userID, text string) (string, error) {
	raw, err := json.Marshal(slackPostMessageRequest{Channel: userID, Text: text})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal slack message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat.postMessage", bytes.NewReader(raw))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build slack request", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.botToken.Unmask())

	resp, err := s.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out slackPostMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to decode slack response", err)
	}

	if !out.OK {
		if code, terminal := slackTerminalErrors[out.Error]; terminal {
			return "", types.NewAppError(code, fmt.Sprintf("slack refused message: %s", out.Error), nil)
		}
		// Unknown Slack error codes (fatal_error, internal flakiness) are
		// treated as transient.
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("slack error: %s", out.Error), nil)
	}

	return out.TS, nil
}
