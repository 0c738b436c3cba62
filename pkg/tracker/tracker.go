// Package tracker is a small Go client for the pageinsight ingest API.
//
// Delivery is best effort: failed sends are retried with exponential
// backoff and then dropped. No ordering is guaranteed between events.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second

	apiPrefix = "/api/analytics/"
)

// ErrDropped is returned when an event could not be delivered and was
// discarded. The last delivery error is wrapped alongside it.
var ErrDropped = errors.New("tracker: event dropped")

// StatusError is a non-2xx answer from the collector.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tracker: collector returned %d: %s", e.Code, e.Body)
}

// Temporary reports whether the request is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries uint64
	baseDelay  time.Duration
	onDrop     func(endpoint string, err error)

	wg sync.WaitGroup
}

type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds a single HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay sets the first backoff delay; later delays double.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// OnDrop registers a callback for events given up on by Dispatch.
func OnDrop(fn func(endpoint string, err error)) Option {
	return func(c *Client) { c.onDrop = fn }
}

// New returns a client posting to baseURL, e.g. "https://stats.example.com".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Send posts payload to the named ingest endpoint ("pageview", "event",
// "click-tracking", ...). Network errors, 429 and 5xx are retried; other
// 4xx answers are permanent. Any undelivered event yields ErrDropped.
func (c *Client) Send(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tracker: encode %s payload: %w", endpoint, err)
	}
	url := c.baseURL + apiPrefix + strings.TrimPrefix(endpoint, "/")

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.post(ctx, url, body)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDropped, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}

// Dispatch sends in the background. Failures go to the OnDrop callback,
// or to the log when none is set. Use Wait to drain before exit.
func (c *Client) Dispatch(ctx context.Context, endpoint string, payload any) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Send(ctx, endpoint, payload); err != nil {
			if c.onDrop != nil {
				c.onDrop(endpoint, err)
				return
			}
			zap.S().Warnw("analytics event dropped", "endpoint", endpoint, "error", err)
		}
	}()
}

// Wait blocks until every dispatched event has been sent or dropped.
func (c *Client) Wait() {
	c.wg.Wait()
}
