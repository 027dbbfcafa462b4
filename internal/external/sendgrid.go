package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"salespulse/internal/config"
	"salespulse/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL, overridable in tests.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClient sends transactional email through the SendGrid v3 Mail Send
// API via BaseClient, inheriting circuit breaking and retry behavior.
type SendGridClient struct {
	base     *BaseClient
	apiKey   types.SecretString
	baseURL  string
	fromAddr string
	fromName string
	logger   types.Logger
}

// SendGridOption configures a SendGridClient.
type SendGridOption func(*SendGridClient)

// WithSendGridBaseURL overrides the API base URL, for httptest servers.
func WithSendGridBaseURL(u string) SendGridOption {
	return func(c *SendGridClient) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// NewSendGridClient creates a SendGridClient from the email configuration.
func NewSendGridClient(httpClient *http.Client, cfg config.EmailConfig, logger types.Logger, opts ...SendGridOption) *SendGridClient {
	c := &SendGridClient{
		base: NewBaseClient(httpClient, "sendgrid", RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		}),
		apiKey:   cfg.SendGridAPIKey,
		baseURL:  sendGridAPIBase,
		fromAddr: cfg.FromAddress,
		fromName: cfg.FromName,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPayload struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendGridAddress `json:"from"`
	Subject string          `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

type sendGridErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// Send transmits a plain-text email and returns the provider message ID from
// the X-Message-Id response header.
//
// Error mapping:
//   - 403 -> permanent_provider_rejected (recipient on suppression list)
//   - 400 with a to-address error -> permanent_invalid_address
//   - 429/5xx -> transient, handled by BaseClient retry then surfaced
func (s *SendGridClient) Send(ctx context.Context, to, subject, body string) (string, error) {
	payload := sendGridPayload{
		From:    sendGridAddress{Email: s.fromAddr, Name: s.fromName},
		Subject: subject,
	}
	payload.Personalizations = append(payload.Personalizations, struct {
		To []sendGridAddress `json:"to"`
	}{To: []sendGridAddress{{Email: to}}})
	payload.Content = append(payload.Content, struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{Type: "text/plain", Value: body})

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal mail payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(raw))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build mail request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey.Unmask())

	resp, err := s.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}
	return "", s.mapErrorResponse(resp)
}

func (s *SendGridClient) mapErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	msg := string(raw)
	var sgErr sendGridErrorResponse
	field := ""
	if err := json.Unmarshal(raw, &sgErr); err == nil && len(sgErr.Errors) > 0 {
		msg = sgErr.Errors[0].Message
		field = sgErr.Errors[0].Field
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(types.ErrCodePermanentRejected,
			fmt.Sprintf("sendgrid blocked delivery: %s", msg), nil)
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(field, "to"):
		return types.NewAppError(types.ErrCodePermanentAddress,
			fmt.Sprintf("sendgrid rejected recipient: %s", msg), nil)
	case resp.StatusCode == http.StatusUnauthorized:
		return types.NewAppError(types.ErrCodePermanentCredentials,
			"sendgrid rejected the API key", nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("sendgrid error (%d): %s", resp.StatusCode, msg), nil)
	}
}
