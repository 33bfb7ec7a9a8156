// Package gateway is the HTTP client for the hosted marketplace-data function
// that fronts every marketplace API behind a single fetch(marketplace,
// dataType, options) call.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const (
	functionPath   = "/functions/v1/marketplace-data"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 2048
)

// Config configures the gateway client.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a single call. Zero uses 30s.
	Timeout time.Duration
}

// Client implements domain.MarketplaceProvider against the gateway.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// New creates a gateway client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + functionPath,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Products implements domain.MarketplaceProvider.
func (c *Client) Products(ctx context.Context, mp domain.Marketplace) ([]domain.Product, error) {
	var raw []APIProduct
	if err := c.call(ctx, mp, domain.DataProducts, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(raw))
	for _, p := range raw {
		out = append(out, p.ToDomain(mp))
	}
	return out, nil
}

// Orders implements domain.MarketplaceProvider.
func (c *Client) Orders(ctx context.Context, mp domain.Marketplace, q domain.OrderQuery) ([]domain.Order, error) {
	opts := map[string]string{}
	if !q.Since.IsZero() {
		opts["fromDate"] = q.Since.UTC().Format("2006-01-02")
	}
	if !q.Until.IsZero() {
		opts["toDate"] = q.Until.UTC().Format("2006-01-02")
	}
	var raw []APIOrder
	if err := c.call(ctx, mp, domain.DataOrders, opts, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(raw))
	for _, o := range raw {
		out = append(out, o.ToDomain(mp))
	}
	return out, nil
}

// Tariffs implements domain.MarketplaceProvider.
func (c *Client) Tariffs(ctx context.Context, mp domain.Marketplace, queries []domain.TariffQuery) ([]domain.TariffQuote, error) {
	offers := make([]tariffOffer, 0, len(queries))
	for _, q := range queries {
		offers = append(offers, tariffOffer{OfferID: q.OfferID, CategoryID: q.CategoryCode, Price: q.Price})
	}
	var raw []APITariff
	if err := c.call(ctx, mp, domain.DataTariffs, map[string]any{"offers": offers}, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.TariffQuote, 0, len(raw))
	for _, t := range raw {
		out = append(out, t.toDomain())
	}
	return out, nil
}

// FinanceLedger implements domain.MarketplaceProvider.
func (c *Client) FinanceLedger(ctx context.Context, mp domain.Marketplace, offerIDs []string) ([]domain.LedgerEntry, error) {
	var raw []APILedgerEntry
	if err := c.call(ctx, mp, domain.DataFinanceLedger, map[string]any{"offerIds": offerIDs}, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.LedgerEntry, 0, len(raw))
	for _, e := range raw {
		out = append(out, e.toDomain())
	}
	return out, nil
}

// UpdateStock implements domain.MarketplaceProvider.
func (c *Client) UpdateStock(ctx context.Context, mp domain.Marketplace, updates []domain.StockUpdate) error {
	items := make([]stockItem, 0, len(updates))
	for _, u := range updates {
		items = append(items, stockItem{OfferID: u.OfferID, Count: u.Quantity})
	}
	var ignored json.RawMessage
	return c.call(ctx, mp, domain.DataUpdateStock, map[string]any{"items": items}, &ignored)
}

// call posts one request and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, mp domain.Marketplace, dt domain.DataType, opts any, out any) error {
	body, err := json.Marshal(request{Marketplace: mp, DataType: dt, Options: opts})
	if err != nil {
		return fmt.Errorf("gateway: %s/%s: marshal: %w", mp, dt, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway: %s/%s: create request: %w", mp, dt, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s/%s: %w", mp, dt, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("gateway: %s/%s: %w", mp, dt, statusError(resp.StatusCode, snippet))
	}

	env := envelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("gateway: %s/%s: decode: %w", mp, dt, err)
	}
	if !env.Success {
		return fmt.Errorf("gateway: %s/%s: %s", mp, dt, env.Error)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("gateway: %s/%s: decode data: %w", mp, dt, err)
	}
	return nil
}

// StatusError is a non-200 gateway response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func statusError(code int, body []byte) error {
	se := &StatusError{Code: code, Body: strings.TrimSpace(string(body))}
	switch code {
	case http.StatusNotImplemented:
		return errors.Join(domain.ErrUnsupported, se)
	case http.StatusTooManyRequests:
		return errors.Join(domain.ErrRateLimited, se)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Join(domain.ErrUnauthorized, se)
	}
	return se
}

var _ domain.MarketplaceProvider = (*Client)(nil)
