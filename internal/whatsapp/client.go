package whatsapp

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

	coreconfig "github.com/m3rciful/printbot/core/config"
	"github.com/m3rciful/printbot/core/logger"
	"github.com/m3rciful/printbot/core/netutil"
)

const maxBodyBytes = 1 << 20

// APIError is a non-2xx answer from Green API.
type APIError struct {
	Method string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: %s: status %d: %s", e.Method, e.Status, e.Body)
}

// StatusCode lets the outbound dispatcher classify the failure.
func (e *APIError) StatusCode() int { return e.Status }

// Client calls the Green API instance endpoints.
type Client struct {
	base           string
	token          string
	receiveTimeout time.Duration
	http           *http.Client
}

// NewClient builds a client for one instance. The HTTP timeout leaves room
// for the receiveNotification wait.
func NewClient(cfg coreconfig.WhatsAppConfig) *Client {
	wait := time.Duration(cfg.ReceiveTimeoutSeconds) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Client{
		base:           fmt.Sprintf("%s/waInstance%s", cfg.APIURL, cfg.InstanceID),
		token:          cfg.Token,
		receiveTimeout: wait,
		http: netutil.NewHTTPClient(netutil.ClientOptions{
			Timeout:         wait + 15*time.Second,
			ResponseTimeout: wait + 10*time.Second,
		}),
	}
}

func (c *Client) endpoint(method string, extra ...string) string {
	u := c.base + "/" + method + "/" + url.PathEscape(c.token)
	for _, part := range extra {
		u += "/" + url.PathEscape(part)
	}
	return u
}

// SendMessage posts a text message to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(struct {
		ChatID  string `json:"chatId"`
		Message string `json:"message"`
	}{chatID, text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req, "sendMessage")
	return err
}

// ReceiveNotification waits for the next queued notification. It returns
// nil when the wait ended with nothing queued.
func (c *Client) ReceiveNotification(ctx context.Context) (*Notification, error) {
	u := c.endpoint("receiveNotification") + "?receiveTimeout=" + strconv.Itoa(int(c.receiveTimeout/time.Second))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	raw, err := c.do(req, "receiveNotification")
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("whatsapp: decode notification: %w", err)
	}
	return &n, nil
}

// DeleteNotification acknowledges a received notification.
func (c *Client) DeleteNotification(ctx context.Context, receiptID int64) error {
	u := c.endpoint("deleteNotification", strconv.FormatInt(receiptID, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, "deleteNotification")
	return err
}

func (c *Client) do(req *http.Request, method string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: %s: read body: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Method: method, Status: resp.StatusCode, Body: logger.SanitizeLimit(string(raw), 200)}
	}
	return raw, nil
}
