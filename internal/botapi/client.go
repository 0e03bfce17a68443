// Package botapi is a client for the trading bot's JSON API.
package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/newthinker/botdash/internal/core"
	"golang.org/x/time/rate"
)

// Endpoint paths, relative to the base URL.
const (
	PathStartBot     = "/api/start_bot"
	PathStopBot      = "/api/stop_bot"
	PathStatus       = "/api/status"
	PathCurrentPrice = "/api/current_price"
	PathSignals      = "/api/signals"
)

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// Client talks to the bot backend. Calls are never retried; only WaitReady
// backs off.
type Client struct {
	client   *http.Client
	baseURL  string
	limiter  *rate.Limiter
	location *time.Location
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithRateLimit limits outgoing requests. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLocation sets the zone used for timestamps the backend sends
// without an offset.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.location = loc }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		limiter:  rate.NewLimiter(rate.Inf, 0),
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartBot asks the backend to start the bot.
func (c *Client) StartBot(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, PathStartBot, nil)
}

// StopBot asks the backend to stop the bot.
func (c *Client) StopBot(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, PathStopBot, nil)
}

// Status fetches the bot status.
func (c *Client) Status(ctx context.Context) (*core.BotStatus, error) {
	var st core.BotStatus
	if err := c.do(ctx, http.MethodGet, PathStatus, &st); err != nil {
		return nil, err
	}
	if st.LastCheck != nil {
		*st.LastCheck = st.LastCheck.In(c.location)
	}
	if st.LastSignal != nil {
		st.LastSignal.Timestamp = st.LastSignal.Timestamp.In(c.location)
	}
	return &st, nil
}

// CurrentPrice fetches the latest price and indicator values.
func (c *Client) CurrentPrice(ctx context.Context) (*core.PriceSnapshot, error) {
	var p core.PriceSnapshot
	if err := c.do(ctx, http.MethodGet, PathCurrentPrice, &p); err != nil {
		return nil, err
	}
	if p.Timestamp != nil {
		*p.Timestamp = p.Timestamp.In(c.location)
	}
	return &p, nil
}

// Signals fetches recent signals in backend order.
func (c *Client) Signals(ctx context.Context) ([]core.Signal, error) {
	var list core.SignalList
	if err := c.do(ctx, http.MethodGet, PathSignals, &list); err != nil {
		return nil, err
	}
	if list.Signals == nil {
		return []core.Signal{}, nil
	}
	for i := range list.Signals {
		list.Signals[i].Timestamp = list.Signals[i].Timestamp.In(c.location)
	}
	return list.Signals, nil
}

// WaitReady polls the status endpoint with exponential backoff until it
// answers 2xx, maxWait elapses or ctx is done.
func (c *Client) WaitReady(ctx context.Context, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = maxWait

	operation := func() error {
		err := c.do(ctx, http.MethodGet, PathStatus, nil)
		var se *core.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return core.WrapError(core.ErrBackendNotReady, err)
	}
	return nil
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return core.WrapError(core.ErrBackendUnreachable, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return core.WrapError(core.ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return core.WrapError(core.ErrBackendUnreachable, fmt.Errorf("reading body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &core.StatusError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			se.Message = eb.Error
		}
		return core.WrapError(core.ErrBackendStatus, se)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.WrapError(core.ErrBackendDecode, err)
	}
	return nil
}
