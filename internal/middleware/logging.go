package middleware

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"go-request-shield/internal/metrics"
	"go-request-shield/internal/model"
	"go-request-shield/internal/threat"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger assigns a request ID at pipeline entry, runs the threat
// detector, and logs the outcome on completion. Suspicious requests are
// flagged immediately and their outcome is logged at escalated level.
type RequestLogger struct {
	detector *threat.Detector
	recorder *threat.Recorder
}

func NewRequestLogger(detector *threat.Detector, recorder *threat.Recorder) *RequestLogger {
	return &RequestLogger{detector: detector, recorder: recorder}
}

func (m *RequestLogger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		ctx, meta := withRequestMeta(ctx)
		r = r.WithContext(ctx)
		ip := ClientIP(r)

		suspicious := false
		for _, finding := range m.detector.Inspect(r) {
			suspicious = true
			metrics.ThreatDetections.WithLabelValues(string(finding.Severity)).Inc()

			event := model.NewSecurityEvent(model.EventSuspiciousActivity, finding.Severity, finding.Reason, ip)
			event.UserAgent = r.UserAgent()
			event.RequestID = requestID
			event.Metadata = map[string]string{
				"method": r.Method,
				"path":   r.URL.Path,
			}
			m.recorder.Record(event)
		}

		started := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(started)
		metrics.ObserveRequest(r.Method, wrapped.status, duration)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", duration.Milliseconds(),
			"client_ip", ip,
		}
		if meta.userID != 0 {
			attrs = append(attrs, "user_id", meta.userID)
			if meta.sessionID != "" {
				attrs = append(attrs, "session_id", meta.sessionID)
			}
		}
		if suspicious {
			attrs = append(attrs, "suspicious", true)
		}

		switch {
		case wrapped.status >= 500:
			slog.Error("request", attrs...)
		case wrapped.status >= 400 && suspicious:
			slog.Error("request", attrs...)
		case wrapped.status >= 400:
			slog.Warn("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.status = statusCode
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
