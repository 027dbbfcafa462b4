package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"salespulse/internal/config"
	"salespulse/internal/types"
)

// twilioAPIBase is the default Twilio API base URL, overridable in tests.
const twilioAPIBase = "https://api.twilio.com"

// TwilioClient sends WhatsApp messages through Twilio's Messages API using
// form-encoded requests and basic auth.
type TwilioClient struct {
	base       *BaseClient
	accountSID types.SecretString
	authToken  types.SecretString
	fromNumber string
	baseURL    string
	logger     types.Logger
}

// TwilioOption configures a TwilioClient.
type TwilioOption func(*TwilioClient)

// WithTwilioBaseURL overrides the API base URL, for httptest servers.
func WithTwilioBaseURL(u string) TwilioOption {
	return func(c *TwilioClient) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// NewTwilioClient creates a TwilioClient from the whatsapp configuration.
func NewTwilioClient(httpClient *http.Client, cfg config.WhatsAppConfig, logger types.Logger, opts ...TwilioOption) *TwilioClient {
	c := &TwilioClient{
		base: NewBaseClient(httpClient, "twilio", RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		}),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    twilioAPIBase,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// twilioTerminalCodes maps Twilio error codes that can never succeed on
// retry. 21211/21614 are invalid or non-mobile numbers, 63024 is a recipient
// that has not opted in, 21610 is an unsubscribed recipient.
var twilioTerminalCodes = map[int]types.ErrorCode{
	21211: types.ErrCodePermanentAddress,
	21614: types.ErrCodePermanentAddress,
	21610: types.ErrCodePermanentRejected,
	63024: types.ErrCodePermanentRejected,
	20003: types.ErrCodePermanentCredentials,
}

// SendWhatsApp sends a WhatsApp text message and returns the Twilio message
// SID.
func (t *TwilioClient) SendWhatsApp(ctx context.Context, toNumber, body string) (string, error) {
	form := url.Values{
		"From": {"whatsapp:" + t.fromNumber},
		"To":   {"whatsapp:" + toNumber},
		"Body": {body},
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID.Unmask())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build twilio request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID.Unmask(), t.authToken.Unmask())

	resp, err := t.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out twilioMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to decode twilio response", err)
	}

	if resp.StatusCode >= 400 {
		if code, terminal := twilioTerminalCodes[out.Code]; terminal {
			return "", types.NewAppError(code,
				fmt.Sprintf("twilio refused message (code %d): %s", out.Code, out.Message), nil)
		}
		return "", types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("twilio error (%d, code %d): %s", resp.StatusCode, out.Code, out.Message), nil)
	}

	return out.SID, nil
}
