package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/core/logger"
	"github.com/m3rciful/printbot/core/netutil"
)

// ErrSubmissionFailed marks any order the endpoint did not accept.
var ErrSubmissionFailed = errors.New("orders: submission failed")

const maxBodyBytes = 64 << 10

// Client posts orders to the shop's order endpoint.
type Client struct {
	url   string
	token string
	http  *http.Client
	newID func() string
}

// NewClient builds a client from the orders section of the config.
func NewClient(cfg coreconfig.OrdersConfig) *Client {
	return &Client{
		url:   cfg.URL,
		token: cfg.Token,
		http: netutil.NewHTTPClient(netutil.ClientOptions{
			Timeout:         cfg.Timeout,
			ResponseTimeout: cfg.Timeout,
			MaxRetries:      2,
			RetryBackoff:    time.Second,
			// A timed out POST may already have created the order.
			Retry: netutil.IsDialError,
		}),
		newID: uuid.NewString,
	}
}

// Submit posts the order and returns the id assigned by the endpoint. Only
// failed dials are retried; retries share the same X-Request-ID.
func (c *Client) Submit(ctx context.Context, o Order) (string, error) {
	start := time.Now()
	reqID := c.newID()

	body, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrSubmissionFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrSubmissionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	orderID, err := c.do(req)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("request_id", reqID),
		slog.String("phone", o.Phone),
		slog.Int("files", len(o.Files)),
		slog.Duration("elapsed", logger.Took(start)),
	}
	if err != nil {
		logger.Warn(ctx, "orders", "orders.submit", append(attrs, slog.String("err", err.Error()))...)
		return "", err
	}
	logger.Info(ctx, "orders", "orders.submit", append(attrs, slog.String("order_id", orderID))...)
	return orderID, nil
}

func (c *Client) do(req *http.Request) (string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrSubmissionFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d: %s", ErrSubmissionFailed, resp.StatusCode, logger.SanitizeLimit(string(raw), 200))
	}

	id := parseOrderID(raw)
	if id == "" {
		return "", fmt.Errorf("%w: empty order id", ErrSubmissionFailed)
	}
	return id, nil
}

// parseOrderID accepts {"order_id": ...}, {"id": ...} or a plain-text id.
func parseOrderID(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] == '{' {
		var payload struct {
			OrderID json.RawMessage `json:"order_id"`
			ID      json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return ""
		}
		if id := scalar(payload.OrderID); id != "" {
			return id
		}
		return scalar(payload.ID)
	}
	return strings.Trim(string(trimmed), `"`)
}

// scalar renders a JSON string or number as text.
func scalar(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}
