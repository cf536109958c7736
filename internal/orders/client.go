// Package orders talks to the external order store: it lists orders and
// patches an order's canonical tracking status.
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"cttsync/internal/logging"
	"cttsync/internal/status"
	"cttsync/internal/tracking"
)

// =============================================================================
// ORDER STORE CLIENT
// =============================================================================

// DefaultTimeout applies when the client is built with a zero timeout.
const DefaultTimeout = 30 * time.Second

// Client is an HTTP client for the order store.
type Client struct {
	baseURL  string
	listPath string
	client   *http.Client
}

// HTTPError reports a non-2xx answer from the order store.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s -> %d %s", e.Method, e.URL, e.Status, e.Body)
}

// NewClient creates a client for the store at baseURL. listPath is the
// collection path; single orders live under listPath/{id}.
func NewClient(baseURL, listPath string, timeout time.Duration) *Client {
	if listPath == "" {
		listPath = "/api/orders"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		listPath: "/" + strings.Trim(listPath, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// ListURL is the collection endpoint.
func (c *Client) ListURL() string {
	return c.baseURL + c.listPath
}

// OrderURL is the endpoint of a single order; the id is path-escaped.
func (c *Client) OrderURL(id string) string {
	return c.ListURL() + "/" + url.PathEscape(id)
}

// Fetch retrieves every order in the store's own order.
func (c *Client) Fetch(ctx context.Context) ([]tracking.Order, error) {
	target := c.ListURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{Method: http.MethodGet, URL: target, Status: resp.StatusCode, Body: string(body)}
	}

	orders, err := tracking.DecodeOrders(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	logging.Get(logging.CategoryOrders).Debug("fetched orders",
		zap.Int("count", len(orders)),
		zap.Duration("elapsed", time.Since(start)))
	return orders, nil
}

// UpdateBody is the PATCH document sent to the store.
type UpdateBody struct {
	Changes Changes `json:"changes"`
}

// Changes holds the fields being replaced.
type Changes struct {
	Status status.Record `json:"status"`
}

// PatchStatus replaces the status of order id and returns the store's
// response. A response that is not JSON comes back as {"raw": text}.
func (c *Client) PatchStatus(ctx context.Context, id string, rec status.Record) (json.RawMessage, error) {
	if id == "" {
		return nil, fmt.Errorf("patch status: empty order id")
	}
	body, err := json.Marshal(UpdateBody{Changes: Changes{Status: rec}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	target := c.OrderURL(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PATCH %s: %w", target, err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("PATCH %s: read response: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Method: http.MethodPatch, URL: target, Status: resp.StatusCode, Body: string(text)}
	}

	logging.Get(logging.CategoryOrders).Debug("patched order",
		zap.String("order_id", id),
		zap.Int("reached", rec.Reached()))
	return decodePayload(text), nil
}

func decodePayload(text []byte) json.RawMessage {
	if json.Valid(text) {
		return json.RawMessage(text)
	}
	raw, _ := json.Marshal(map[string]string{"raw": string(text)})
	return raw
}
