package model

import "time"

type EventType string

const (
	EventAuthFailure        EventType = "auth_failure"
	EventRateLimit          EventType = "rate_limit"
	EventCSRFFailure        EventType = "csrf_failure"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventValidationFailure  EventType = "validation_failure"
	EventSessionAnomaly     EventType = "session_anomaly"
	EventManualBlock        EventType = "manual_block"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities so sinks can apply thresholds.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// SecurityEvent is write-once: constructed, emitted to sinks, never mutated.
type SecurityEvent struct {
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	IP        string            `json:"ip"`
	UserAgent string            `json:"user_agent,omitempty"`
	UserID    int64             `json:"user_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EventQuery filters the stored event log for the admin listing.
type EventQuery struct {
	Type     string
	Severity string
	IP       string
	From     string
	To       string
	Page     int
	Limit    int
}

// Meta carries pagination details alongside a listed page of results.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewSecurityEvent(eventType EventType, severity Severity, message string, ip string) SecurityEvent {
	return SecurityEvent{
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		IP:        ip,
		Timestamp: time.Now().UTC(),
	}
}
