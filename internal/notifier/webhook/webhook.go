// Package webhook implements an HTTP webhook notifier
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/botdash/internal/core"
	"github.com/newthinker/botdash/internal/notifier"
)

// Webhook posts events as JSON to a fixed URL
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) (*Webhook, error) {
	if url == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("webhook: url is required"))
	}
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, ev notifier.Event) error {
	return w.post(ctx, payload(ev))
}

func payload(ev notifier.Event) map[string]any {
	p := map[string]any{
		"type": string(ev.Kind),
		"time": ev.Time.UTC().Format(time.RFC3339),
	}
	switch ev.Kind {
	case notifier.KindSignal:
		if s := ev.Signal; s != nil {
			p["signal"] = map[string]any{
				"timestamp":   s.Timestamp.Raw,
				"type":        string(s.Type),
				"entry":       s.Entry,
				"stop_loss":   s.StopLoss,
				"take_profit": s.TakeProfit,
				"atr":         s.ATR,
			}
		}
	default:
		p["level"] = ev.Level
		p["message"] = ev.Message
	}
	return p
}

func (w *Webhook) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("webhook: request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("webhook: server returned %d", resp.StatusCode))
	}

	return nil
}
