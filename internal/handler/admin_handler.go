package handler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go-request-shield/internal/middleware"
	"go-request-shield/internal/model"
	"go-request-shield/internal/ratelimit"
	"go-request-shield/internal/threat"
	"go-request-shield/pkg/apierror"
)

const defaultManualBlock = time.Hour

// EventLister reads the stored security event log.
type EventLister interface {
	List(ctx context.Context, query model.EventQuery) ([]model.SecurityEvent, model.Meta, error)
}

type AdminHandler struct {
	limiter  *ratelimit.Limiter
	events   EventLister
	recorder *threat.Recorder
}

func NewAdminHandler(limiter *ratelimit.Limiter, events EventLister, recorder *threat.Recorder) *AdminHandler {
	return &AdminHandler{limiter: limiter, events: events, recorder: recorder}
}

func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	ip := strings.TrimSpace(payload.IP)
	if net.ParseIP(ip) == nil {
		writeError(w, apierror.Validation("invalid IP address", "ip"))
		return
	}

	duration := defaultManualBlock
	if payload.Duration != "" {
		parsed, err := time.ParseDuration(payload.Duration)
		if err != nil || parsed <= 0 {
			writeError(w, apierror.Validation("invalid block duration", "duration"))
			return
		}
		duration = parsed
	}

	if err := h.limiter.BlockIP(r.Context(), ip, duration); err != nil {
		writeError(w, err)
		return
	}

	event := model.NewSecurityEvent(model.EventManualBlock, model.SeverityHigh,
		"IP manually blocked: "+payload.Reason, ip)
	event.RequestID = middleware.RequestIDFromContext(r.Context())
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		event.UserID = claims.UserID
	}
	event.Metadata = map[string]string{"duration": duration.String()}
	h.recorder.Record(event)

	writeSuccess(w, http.StatusOK, map[string]any{
		"blocked":  ip,
		"duration": duration.String(),
	})
}

func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	ip := strings.TrimSpace(payload.IP)
	if net.ParseIP(ip) == nil {
		writeError(w, apierror.Validation("invalid IP address", "ip"))
		return
	}

	if err := h.limiter.UnblockIP(r.Context(), ip); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"unblocked": ip})
}

func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	query := model.EventQuery{
		Type:     r.URL.Query().Get("type"),
		Severity: r.URL.Query().Get("severity"),
		IP:       r.URL.Query().Get("ip"),
		From:     r.URL.Query().Get("from"),
		To:       r.URL.Query().Get("to"),
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		query.Page = page
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		query.Limit = limit
	}

	events, meta, err := h.events.List(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"events": events,
		"meta":   meta,
	})
}
