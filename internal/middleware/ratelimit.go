package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"go-request-shield/internal/metrics"
	"go-request-shield/internal/model"
	"go-request-shield/internal/ratelimit"
	"go-request-shield/internal/threat"
)

type RateLimitMiddleware struct {
	limiter  *ratelimit.Limiter
	recorder *threat.Recorder
}

func NewRateLimitMiddleware(limiter *ratelimit.Limiter, recorder *threat.Recorder) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, recorder: recorder}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		decision := m.limiter.Check(r.Context(), ip, r.URL.Path, r.UserAgent())

		if decision.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))
			w.Header().Set("X-RateLimit-Window", decision.Window.String())
		}

		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		kind := "rule"
		message := "rate limit exceeded for " + r.URL.Path
		severity := model.SeverityMedium
		if decision.Burst {
			kind = "burst"
			message = "burst traffic detected"
			severity = model.SeverityHigh
		}
		metrics.RateLimitRejections.WithLabelValues(kind).Inc()

		event := model.NewSecurityEvent(model.EventRateLimit, severity, message, ip)
		event.UserAgent = r.UserAgent()
		event.RequestID = RequestIDFromContext(r.Context())
		event.Metadata = map[string]string{
			"path":        r.URL.Path,
			"retry_after": strconv.Itoa(decision.RetryAfter),
		}
		m.recorder.Record(event)

		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
		writeFailure(w, http.StatusTooManyRequests,
			fmt.Sprintf("too many requests, retry in %d seconds", decision.RetryAfter))
	})
}
