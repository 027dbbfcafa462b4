package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"salespulse/internal/config"
	"salespulse/internal/types"
)

// ShopifyClient pulls order data from the Shopify Admin REST API and
// aggregates it into daily SalesSnapshots. Per-store access tokens arrive
// sealed on the Store row and are unsealed just before the call.
type ShopifyClient struct {
	base       *BaseClient
	cipher     *CredentialCipher
	apiVersion string
	logger     types.Logger

	// compressor is shared across calls; zstd encoders are safe for
	// concurrent EncodeAll use.
	compressor *zstd.Encoder
}

// NewShopifyClient creates a ShopifyClient. The http client's timeout bounds
// each page fetch.
func NewShopifyClient(httpClient *http.Client, cfg config.ShopifyConfig, cipher *CredentialCipher, logger types.Logger) (*ShopifyClient, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}

	return &ShopifyClient{
		base:       NewBaseClient(httpClient, "shopify", DefaultRetryPolicy()),
		cipher:     cipher,
		apiVersion: cfg.APIVersion,
		logger:     logger,
		compressor: enc,
	}, nil
}

// shopifyOrder is the subset of the Shopify order resource the aggregation
// reads.
type shopifyOrder struct {
	ID         int64  `json:"id"`
	TotalPrice string `json:"total_price"`
	Currency   string `json:"currency"`
	Customer   *struct {
		ID int64 `json:"id"`
	} `json:"customer"`
}

type shopifyOrdersPage struct {
	Orders []shopifyOrder `json:"orders"`
}

// linkNextRe extracts the page_info cursor from Shopify's Link header.
var linkNextRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// FetchDailySnapshot pulls every order created inside the bucket day (UTC)
// and aggregates revenue, order count, and distinct customer count. The raw
// order pages are retained zstd-compressed on the snapshot for audit and
// reprocessing.
//
// Authentication failures (401/403) surface as permanent credential errors;
// rate limits and 5xx surface as transient upstream errors from BaseClient.
func (s *ShopifyClient) FetchDailySnapshot(ctx context.Context, store *types.Store, bucket time.Time) (*types.SalesSnapshot, error) {
	token, err := s.cipher.Open(store.ID, store.AccessToken)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodePermanentCredentials,
			"store access token cannot be unsealed", err)
	}

	dayStart := bucket.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	pageURL := fmt.Sprintf("%s/admin/api/%s/orders.json?%s",
		strings.TrimSuffix(store.StoreURL, "/"),
		s.apiVersion,
		url.Values{
			"status":         {"any"},
			"limit":          {"250"},
			"created_at_min": {dayStart.Format(time.RFC3339)},
			"created_at_max": {dayEnd.Format(time.RFC3339)},
		}.Encode(),
	)

	var (
		orders   []shopifyOrder
		rawPages [][]byte
	)
	for pageURL != "" {
		page, raw, next, err := s.fetchPage(ctx, pageURL, token)
		if err != nil {
			return nil, err
		}
		orders = append(orders, page.Orders...)
		rawPages = append(rawPages, raw)
		pageURL = next
	}

	snap := aggregateOrders(store.ID, dayStart, orders)

	rawPayload, err := s.compressPages(rawPages)
	if err != nil {
		// Aggregates are intact; losing the audit payload is not worth
		// failing the sync.
		s.logger.Warn("failed to compress raw order payload",
			"store_id", store.ID,
			"error", err.Error(),
		)
	} else {
		snap.RawPayload = rawPayload
	}

	return snap, nil
}

func (s *ShopifyClient) fetchPage(ctx context.Context, pageURL, token string) (*shopifyOrdersPage, []byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build orders request", err)
	}
	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.base.Do(req)
	if err != nil {
		return nil, nil, "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil, "", types.NewAppError(types.ErrCodePermanentCredentials,
			fmt.Sprintf("shopify rejected credentials with %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, nil, "", types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("shopify returned unexpected status %d", resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, "", types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to read orders response", err)
	}

	var page shopifyOrdersPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, nil, "", types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to decode orders response", err)
	}

	next := ""
	if m := linkNextRe.FindStringSubmatch(resp.Header.Get("Link")); m != nil {
		next = m[1]
	}
	return &page, raw, next, nil
}

// aggregateOrders folds a day's orders into a snapshot. Orders with an
// unparsable total are skipped rather than failing the day.
func aggregateOrders(storeID string, bucket time.Time, orders []shopifyOrder) *types.SalesSnapshot {
	snap := &types.SalesSnapshot{
		StoreID: storeID,
		Bucket:  bucket,
	}

	customers := make(map[int64]bool)
	for _, o := range orders {
		total, err := strconv.ParseFloat(o.TotalPrice, 64)
		if err == nil {
			snap.Revenue += total
		}
		snap.OrderCount++
		if snap.Currency == "" {
			snap.Currency = o.Currency
		}
		if o.Customer != nil {
			customers[o.Customer.ID] = true
		}
	}
	snap.CustomerCount = len(customers)
	return snap
}

// compressPages concatenates the raw order pages into a JSON array and zstd
// compresses it.
func (s *ShopifyClient) compressPages(pages [][]byte) ([]byte, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	var joined []byte
	joined = append(joined, '[')
	for i, p := range pages {
		if i > 0 {
			joined = append(joined, ',')
		}
		joined = append(joined, p...)
	}
	joined = append(joined, ']')

	return s.compressor.EncodeAll(joined, nil), nil
}

// DecompressRawPayload restores a snapshot's raw payload for reprocessing.
func DecompressRawPayload(payload []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(payload, nil)
}
