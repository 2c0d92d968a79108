// Package sheets talks to a user-deployed spreadsheet web app that mirrors
// the medicine, log, and glucose collections, and syncs it with the local
// store.
//
// Every request goes to the configured URL with an action query parameter
// naming the collection and, for item operations, an id parameter. Bodies
// are JSON sent as text/plain.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// Actions addressed by the client.
const (
	ActionMedicines       = "medicines"
	ActionMedicineLogs    = "medicine-logs"
	ActionGlucoseReadings = "glucose-readings"
)

// Defaults for Config.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
	maxBackoff        = 30 * time.Second
	maxResponseBytes  = 8 << 20
)

// ErrMissingURL is returned when no web app URL is configured.
var ErrMissingURL = errors.New("sheets web app URL is not configured")

// HTTPError is a non-2xx response. Its message is the response body when
// there is one.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("request failed: %d", e.StatusCode)
}

// Config holds client settings.
type Config struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its timeout is left as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client is a sheets web app client.
type Client struct {
	base       *url.URL
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewClient validates cfg and returns a client.
// Returns ErrMissingURL when cfg.URL is empty.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, ErrMissingURL
	}
	base, err := url.Parse(raw)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid sheets URL %q", raw)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		base:       base,
		http:       &http.Client{Timeout: timeout},
		maxRetries: max(0, cfg.MaxRetries),
		retryDelay: cfg.RetryDelay,
		logger:     zap.NewNop(),
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// endpoint returns the URL for action and optional id.
func (c *Client) endpoint(action, id string) string {
	u := *c.base
	q := u.Query()
	q.Set("action", action)
	if id != "" {
		q.Set("id", id)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// calculateBackoff doubles delay per attempt up to a cap, with jitter of
// plus or minus 25 percent.
func calculateBackoff(delay time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	attempt = min(attempt, 30)
	backoff := min(delay*time.Duration(1<<uint(attempt)), maxBackoff)
	if backoff <= 0 {
		backoff = maxBackoff
	}
	if half := int64(backoff) / 2; half > 0 {
		backoff += time.Duration(rand.Int64N(half)) - backoff/4
	}
	return backoff
}

// do sends one request, retrying network errors and 5xx responses.
func (c *Client) do(ctx context.Context, method, action, id string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", action, err)
		}
		body = b
	}
	target := c.endpoint(action, id)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := calculateBackoff(c.retryDelay, attempt)
			c.logger.Debug("retrying sheets request",
				zap.String("action", action), zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(lastErr))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		retry, err := c.attempt(ctx, method, target, body, out)
		if err == nil {
			return nil
		}
		if !retry || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%s %s failed after %d attempts: %w", method, action, c.maxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, method, target string, body []byte, out any) (retry bool, err error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return true, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		return resp.StatusCode >= 500, herr
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	return false, nil
}

// ListMedicines returns every remote medicine.
func (c *Client) ListMedicines(ctx context.Context) ([]types.Medicine, error) {
	var out []types.Medicine
	err := c.do(ctx, http.MethodGet, ActionMedicines, "", nil, &out)
	return out, err
}

// AddMedicine creates a remote medicine. The web app assigns id and createdAt.
func (c *Client) AddMedicine(ctx context.Context, in types.MedicineInput) (types.Medicine, error) {
	var out types.Medicine
	err := c.do(ctx, http.MethodPost, ActionMedicines, "", in, &out)
	return out, err
}

// UpdateMedicine sends a partial update.
func (c *Client) UpdateMedicine(ctx context.Context, id string, update types.MedicineUpdate) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return c.do(ctx, http.MethodPut, ActionMedicines, id, update, nil)
}

// DeleteMedicine removes a remote medicine.
func (c *Client) DeleteMedicine(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return c.do(ctx, http.MethodDelete, ActionMedicines, id, nil, nil)
}

// ListMedicineLogs returns every remote log.
func (c *Client) ListMedicineLogs(ctx context.Context) ([]types.MedicineLog, error) {
	var out []types.MedicineLog
	err := c.do(ctx, http.MethodGet, ActionMedicineLogs, "", nil, &out)
	return out, err
}

// AddMedicineLog creates a remote log.
func (c *Client) AddMedicineLog(ctx context.Context, in types.MedicineLogInput) (types.MedicineLog, error) {
	var out types.MedicineLog
	err := c.do(ctx, http.MethodPost, ActionMedicineLogs, "", in, &out)
	return out, err
}

// ListGlucoseReadings returns every remote reading.
func (c *Client) ListGlucoseReadings(ctx context.Context) ([]types.GlucoseReading, error) {
	var out []types.GlucoseReading
	err := c.do(ctx, http.MethodGet, ActionGlucoseReadings, "", nil, &out)
	return out, err
}

// AddGlucoseReading creates a remote reading.
func (c *Client) AddGlucoseReading(ctx context.Context, in types.GlucoseInput) (types.GlucoseReading, error) {
	var out types.GlucoseReading
	err := c.do(ctx, http.MethodPost, ActionGlucoseReadings, "", in, &out)
	return out, err
}

// DeleteGlucoseReading removes a remote reading.
func (c *Client) DeleteGlucoseReading(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return c.do(ctx, http.MethodDelete, ActionGlucoseReadings, id, nil, nil)
}
