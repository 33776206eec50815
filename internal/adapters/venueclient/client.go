// Package venueclient implements the quote and order ports against the
// venue's REST CLOB API.
package venueclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ports"
	"polyTradeBot/pkg/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the venue connection parameters.
type Config struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
	Logger      ports.Logger
}

// Client talks to the venue over REST. Quote and status reads retry with
// backoff; order placement and cancellation never do, to avoid
// duplicates.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     ports.Logger
	readRetry  retry.Config
}

// New validates the configuration and creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: venue base URL is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     cfg.Logger,
		readRetry:  retry.DefaultConfig(),
	}, nil
}

// bookLevel matches the venue wire format: prices and sizes as strings.
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookResponse struct {
	TokenID string      `json:"asset_id"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
}

// GetQuote fetches the order book for a token. Retries transient
// failures; the caller treats a final failure as "no data this cycle".
func (c *Client) GetQuote(ctx context.Context, tokenID string) (*domain.Quote, error) {
	url := fmt.Sprintf("%s/book?token_id=%s", c.baseURL, tokenID)

	body, err := retry.DoWithResult(ctx, c.readRetry, func() ([]byte, error) {
		return c.get(ctx, url)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: book for %s: %v", ports.ErrQuoteUnavailable, tokenID, err)
	}

	var resp bookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode book for %s: %v", ports.ErrQuoteUnavailable, tokenID, err)
	}

	quote := &domain.Quote{
		TokenID:   tokenID,
		Bids:      convertLevels(resp.Bids),
		Asks:      convertLevels(resp.Asks),
		Timestamp: time.Now(),
	}
	if len(quote.Bids) == 0 && len(quote.Asks) == 0 {
		return nil, fmt.Errorf("%w: empty book for %s", ports.ErrQuoteUnavailable, tokenID)
	}
	return quote, nil
}

type orderRequest struct {
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Type    string  `json:"type"`
}

type orderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderID"`
	Error   string `json:"errorMsg"`
}

// SubmitOrder places a GTC limit order. Not retried.
func (c *Client) SubmitOrder(ctx context.Context, tokenID string, side domain.Side, price, qty float64) (string, error) {
	payload, err := json.Marshal(orderRequest{
		TokenID: tokenID,
		Side:    string(side),
		Price:   price,
		Size:    qty,
		Type:    "GTC",
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode order: %v", ports.ErrOrderPlacementFailed, err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/order", payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrOrderPlacementFailed, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ports.ErrOrderPlacementFailed, err)
	}
	if !resp.Success || resp.OrderID == "" {
		return "", fmt.Errorf("%w: %s", ports.ErrOrderPlacementFailed, resp.Error)
	}

	c.logger.Info(ctx, "Order submitted to venue", map[string]interface{}{
		"venue_order_id": resp.OrderID,
		"token_id":       tokenID,
		"side":           side,
		"price":          price,
		"qty":            qty,
	})
	return resp.OrderID, nil
}

// CancelOrder cancels an open order. Not retried.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if _, err := c.do(ctx, http.MethodDelete, c.baseURL+"/order/"+orderID, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ports.ErrOrderCancelFailed, orderID, err)
	}
	return nil
}

type orderStatusResponse struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Status       string `json:"status"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

// GetOrderStatus fetches the venue state of one order, with read retry.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*ports.VenueOrder, error) {
	url := c.baseURL + "/data/order/" + orderID

	body, err := retry.DoWithResult(ctx, c.readRetry, func() ([]byte, error) {
		return c.get(ctx, url)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrOrderNotFound, orderID, err)
	}

	var resp orderStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode status for %s: %v", ports.ErrOrderNotFound, orderID, err)
	}

	return &ports.VenueOrder{
		OrderID:      resp.ID,
		TokenID:      resp.AssetID,
		Status:       resp.Status,
		OriginalSize: parseFloat(resp.OriginalSize),
		SizeMatched:  parseFloat(resp.SizeMatched),
		AvgPrice:     parseFloat(resp.Price),
	}, nil
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// GetBalance returns available collateral in USD, with read retry.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	body, err := retry.DoWithResult(ctx, c.readRetry, func() ([]byte, error) {
		return c.get(ctx, c.baseURL+"/balance")
	})
	if err != nil {
		return 0, fmt.Errorf("%w: balance: %v", ports.ErrVenueUnavailable, err)
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: decode balance: %v", ports.ErrVenueUnavailable, err)
	}
	return parseFloat(resp.Balance), nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ports.ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("venue returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, retry.Permanent(fmt.Errorf("venue returned %d: %s", resp.StatusCode, string(body)))
	}
	return body, nil
}

func convertLevels(levels []bookLevel) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(levels))
	for _, l := range levels {
		price, size := parseFloat(l.Price), parseFloat(l.Size)
		if price > 0 && size > 0 {
			out = append(out, domain.BookLevel{Price: price, Size: size})
		}
	}
	return out
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
