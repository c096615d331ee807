package threat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"go-request-shield/internal/model"
)

// WebhookSink delivers high-severity events to an external webhook. It is a
// best-effort side channel: every call is fire-and-forget with its own
// bounded timeout, delivery failures are logged and swallowed, and an alert
// storm collapses through the limiter rather than hammering the endpoint.
type WebhookSink struct {
	url     string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "alert-webhook",
		Interval: time.Minute,
		Timeout:  2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})

	return &WebhookSink{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		// One alert per second sustained, bursts of five.
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

// Notify dispatches the event asynchronously. It never blocks the request
// path and never surfaces an error to the caller.
func (s *WebhookSink) Notify(event model.SecurityEvent) {
	if s.url == "" {
		return
	}
	if !s.limiter.Allow() {
		slog.Debug("alert throttled", "type", event.Type)
		return
	}

	go func() {
		if err := s.deliver(event); err != nil {
			slog.Warn("alert delivery failed", "type", event.Type, "error", err)
		}
	}()
}

func (s *WebhookSink) deliver(event model.SecurityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	_, err = s.breaker.Execute(func() (any, error) {
		r := retry.New(
			retry.Attempts(2),
			retry.Delay(200*time.Millisecond),
		)

		return nil, r.Do(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := s.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				return fmt.Errorf("webhook responded %d", resp.StatusCode)
			}
			return nil
		})
	})

	return err
}
