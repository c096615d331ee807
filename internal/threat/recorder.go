package threat

import (
	"context"
	"log/slog"
	"time"

	"go-request-shield/internal/model"
)

// EventWriter persists security events; the pgx repository implements it.
type EventWriter interface {
	Insert(ctx context.Context, event model.SecurityEvent) error
}

// Recorder is the single funnel for security events: structured log always,
// best-effort persistence when a writer is configured, webhook alert above
// the severity threshold.
type Recorder struct {
	sink         *WebhookSink
	writer       EventWriter
	minSeverity  model.Severity
	writeTimeout time.Duration
}

func NewRecorder(sink *WebhookSink, writer EventWriter, minSeverity model.Severity) *Recorder {
	if minSeverity == "" {
		minSeverity = model.SeverityHigh
	}
	return &Recorder{
		sink:         sink,
		writer:       writer,
		minSeverity:  minSeverity,
		writeTimeout: 3 * time.Second,
	}
}

func (r *Recorder) Record(event model.SecurityEvent) {
	attrs := []any{
		"type", string(event.Type),
		"severity", string(event.Severity),
		"ip", event.IP,
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	if event.UserID != 0 {
		attrs = append(attrs, "user_id", event.UserID)
	}

	if event.Severity.AtLeast(model.SeverityHigh) {
		slog.Error(event.Message, attrs...)
	} else {
		slog.Warn(event.Message, attrs...)
	}

	if r.writer != nil {
		// Detached from the request context: the event outlives the
		// response, and a slow insert must not stall it.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
			defer cancel()
			if err := r.writer.Insert(ctx, event); err != nil {
				slog.Warn("security event persist failed", "type", event.Type, "error", err)
			}
		}()
	}

	if r.sink != nil && event.Severity.AtLeast(r.minSeverity) {
		r.sink.Notify(event)
	}
}
