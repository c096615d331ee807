package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"go-request-shield/internal/model"
)

// EventRepository stores security events for the admin audit trail. It
// satisfies threat.EventWriter.
type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Insert(ctx context.Context, event model.SecurityEvent) error {
	metadataJSON := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO security_events
		 (event_type, severity, message, ip_address, user_agent, request_id, user_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.Type, event.Severity, event.Message, event.IP, event.UserAgent,
		event.RequestID, event.UserID, metadataJSON, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

func (r *EventRepository) List(ctx context.Context, query model.EventQuery) ([]model.SecurityEvent, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if eventType := strings.TrimSpace(query.Type); eventType != "" {
		where = append(where, fmt.Sprintf("event_type = $%d", argIdx))
		args = append(args, eventType)
		argIdx++
	}
	if severity := strings.TrimSpace(query.Severity); severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, severity)
		argIdx++
	}
	if ip := strings.TrimSpace(query.IP); ip != "" {
		where = append(where, fmt.Sprintf("ip_address = $%d", argIdx))
		args = append(args, ip)
		argIdx++
	}
	if from := strings.TrimSpace(query.From); from != "" {
		where = append(where, fmt.Sprintf("created_at >= $%d::timestamptz", argIdx))
		args = append(args, from)
		argIdx++
	}
	if to := strings.TrimSpace(query.To); to != "" {
		where = append(where, fmt.Sprintf("created_at <= $%d::timestamptz", argIdx))
		args = append(args, to)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM security_events %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count security events: %w", err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + query.Limit - 1) / query.Limit
	}
	meta := model.Meta{Page: query.Page, Limit: query.Limit, Total: total, TotalPages: totalPages}

	offset := (query.Page - 1) * query.Limit
	dataQuery := fmt.Sprintf(
		`SELECT event_type, severity, message, ip_address, user_agent, request_id, user_id, metadata, created_at
		 FROM security_events %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, whereClause, argIdx, argIdx+1)
	args = append(args, query.Limit, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	events := make([]model.SecurityEvent, 0)
	for rows.Next() {
		var e model.SecurityEvent
		var metadataJSON []byte

		if err := rows.Scan(&e.Type, &e.Severity, &e.Message, &e.IP, &e.UserAgent,
			&e.RequestID, &e.UserID, &metadataJSON, &e.Timestamp); err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan security event: %w", err)
		}

		if len(metadataJSON) > 0 {
			var metadata map[string]string
			if jsonErr := json.Unmarshal(metadataJSON, &metadata); jsonErr == nil && len(metadata) > 0 {
				e.Metadata = metadata
			}
		}

		events = append(events, e)
	}

	return events, meta, rows.Err()
}
