// Package registry implements the HTTP and WebSocket client for the carbon
// registry backend, the external authority for order books, balances, and
// order execution. Responses are normalized before entering the domain; the
// rest of the gateway never sees registry wire formats.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/OneAIgency/carbondesk/internal/crypto"
	"github.com/OneAIgency/carbondesk/internal/domain"
)

// ClientConfig configures the registry REST client.
type ClientConfig struct {
	// BaseURL is the registry API root, e.g. "https://registry.example.com".
	BaseURL string

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// Client is the REST client for the registry API. All requests are
// HMAC-signed; the registry rejects unsigned requests.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
}

// NewClient creates a registry REST client.
func NewClient(cfg ClientConfig, auth *crypto.HMACAuth) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		auth: auth,
	}
}

// OrderBook fetches the full order book snapshot for one certificate type.
func (c *Client) OrderBook(ctx context.Context, ct domain.CertificateType) (domain.OrderBookSnapshot, error) {
	q := url.Values{"certificate_type": {string(ct)}}

	respBody, err := c.doSignedRequest(ctx, http.MethodGet, "/api/orderbook?"+q.Encode(), nil)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("registry: get order book: %w", err)
	}

	var book apiOrderBook
	if err := decodeNormalized(respBody, &book); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("registry: decode order book: %w", err)
	}

	return book.toDomain(), nil
}

// RecentTrades fetches the most recent public trade prints.
func (c *Client) RecentTrades(ctx context.Context, ct domain.CertificateType, limit int) ([]domain.Trade, error) {
	q := url.Values{
		"certificate_type": {string(ct)},
		"limit":            {strconv.Itoa(limit)},
	}

	respBody, err := c.doSignedRequest(ctx, http.MethodGet, "/api/trades?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("registry: get trades: %w", err)
	}

	var apiTrades []apiTrade
	if err := decodeNormalized(respBody, &apiTrades); err != nil {
		return nil, fmt.Errorf("registry: decode trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(apiTrades))
	for i := range apiTrades {
		trades = append(trades, apiTrades[i].toDomain())
	}
	return trades, nil
}

// OpenOrders fetches the authenticated user's orders, optionally filtered by
// status.
func (c *Client) OpenOrders(ctx context.Context, status string) ([]domain.Order, error) {
	path := "/api/orders"
	if status != "" {
		path += "?" + url.Values{"status": {status}}.Encode()
	}

	respBody, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: get orders: %w", err)
	}

	var apiOrders []apiOrder
	if err := decodeNormalized(respBody, &apiOrders); err != nil {
		return nil, fmt.Errorf("registry: decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(apiOrders))
	for i := range apiOrders {
		orders = append(orders, apiOrders[i].toDomain())
	}
	return orders, nil
}

// Balances fetches the authenticated user's EUR and certificate balances.
func (c *Client) Balances(ctx context.Context) (domain.Balances, error) {
	respBody, err := c.doSignedRequest(ctx, http.MethodGet, "/api/balances", nil)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("registry: get balances: %w", err)
	}

	var balances apiBalances
	if err := decodeNormalized(respBody, &balances); err != nil {
		return domain.Balances{}, fmt.Errorf("registry: decode balances: %w", err)
	}

	return balances.toDomain(), nil
}

// CurrentPrices fetches the reference prices; this is the polling equivalent
// of the /ws/prices stream.
func (c *Client) CurrentPrices(ctx context.Context) (domain.ReferencePrices, error) {
	respBody, err := c.doSignedRequest(ctx, http.MethodGet, "/api/prices", nil)
	if err != nil {
		return domain.ReferencePrices{}, fmt.Errorf("registry: get prices: %w", err)
	}

	var prices apiReferencePrices
	if err := decodeNormalized(respBody, &prices); err != nil {
		return domain.ReferencePrices{}, fmt.Errorf("registry: decode prices: %w", err)
	}

	return prices.toDomain(), nil
}

// PreviewOrder asks the registry for the authoritative execution economics
// of a prospective market order.
func (c *Client) PreviewOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderPreview, error) {
	respBody, err := c.doSignedRequest(ctx, http.MethodPost, "/api/orders/preview", req)
	if err != nil {
		return domain.OrderPreview{}, fmt.Errorf("registry: preview order: %w", err)
	}

	var preview apiOrderPreview
	if err := decodeNormalized(respBody, &preview); err != nil {
		return domain.OrderPreview{}, fmt.Errorf("registry: decode preview: %w", err)
	}

	return preview.toDomain(), nil
}

// ExecuteMarketOrder submits a market order and returns the registry's
// execution report. A rejected order surfaces as an error carrying the
// registry's message.
func (c *Client) ExecuteMarketOrder(ctx context.Context, req domain.OrderRequest) (domain.ExecutionResult, error) {
	respBody, err := c.doSignedRequest(ctx, http.MethodPost, "/api/orders/market", req)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("registry: execute market order: %w", err)
	}

	var apiResult apiExecutionResult
	if err := decodeNormalized(respBody, &apiResult); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("registry: decode execution result: %w", err)
	}

	result := apiResult.toDomain()
	if !result.Success {
		// Rejections carry the sentinel so callers can map them to a client
		// error and render the registry's reason inline.
		return result, fmt.Errorf("registry: order rejected: %w: %s", domain.ErrExecutionBlocked, result.Message)
	}

	return result, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSignedRequest builds, signs, sends, and reads an HTTP request against
// the registry API. path includes the query string; the signature covers
// method, path, and body. It returns the raw response body.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.auth != nil {
		for k, v := range c.auth.Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
