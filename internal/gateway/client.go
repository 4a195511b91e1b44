// Package gateway talks to the order-based payment provider used at checkout.
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
)

// OrderRequest asks the provider to open an order for the given amount in minor units.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is the provider-side record created before the customer pays.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// ErrUnavailable marks failures the caller may retry: network errors, timeouts and 5xx.
var ErrUnavailable = errors.New("payment provider unavailable")

// APIError is a non-retryable rejection returned by the provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment provider rejected request: status=%d body=%s", e.Status, e.Body)
}

// Client creates orders over HTTPS with basic auth and verifies checkout signatures.
type Client struct {
	BaseURL    string
	KeyIDValue string
	KeySecret  string
	HTTP       *http.Client
}

func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		KeyIDValue: keyID,
		KeySecret:  keySecret,
		HTTP:       &http.Client{Timeout: timeout},
	}
}

func (c *Client) KeyID() string { return c.KeyIDValue }

// CreateOrder is a single attempt; retries belong to the caller.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Order{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return Order{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.KeyIDValue, c.KeySecret)

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Order{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	switch {
	case resp.StatusCode >= 500:
		return Order{}, fmt.Errorf("%w: status=%d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return Order{}, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var order Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return Order{}, fmt.Errorf("decode order: %w", err)
	}
	if order.ID == "" {
		return Order{}, fmt.Errorf("decode order: id kosong")
	}
	return order, nil
}

// VerifySignature checks the signed payload returned by the checkout widget.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(c.KeySecret, orderID, paymentID, signature)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
