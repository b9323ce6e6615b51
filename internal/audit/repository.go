// Package audit provides the security_events table: every authentication
// attempt, lockout, session expiry and admin logout, queryable by admins.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/hostel-gate/internal/infrastructure/database"
)

// Query limits.
const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// SecurityEvent is a single security audit entry.
type SecurityEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Role      string         `json:"role"`
	DeviceID  string         `json:"device_id"`
	IPAddress string         `json:"ip_address"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"timestamp"`
}

// Filter controls which security events to return.
type Filter struct {
	EventType string    // optional: exact event type
	DeviceID  string    // optional: exact device id
	Since     time.Time // optional: only events at or after this time
	Limit     int       // default 100, max 500
	Offset    int       // pagination offset
}

// ListResult contains the paginated results.
type ListResult struct {
	Events []SecurityEvent `json:"logs"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// Repository defines the interface for security event persistence.
type Repository interface {
	Create(ctx context.Context, ev *SecurityEvent) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLRepository stores security events in the hostel store.
type SQLRepository struct {
	db *database.DB
}

// NewSQLRepository creates a new security event repository.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Create inserts a new event. The ID and CreatedAt are generated if empty.
func (r *SQLRepository) Create(ctx context.Context, ev *SecurityEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("marshalling security event details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO security_events (id, event_type, role, device_id, ip_address, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.EventType, ev.Role, ev.DeviceID, ev.IPAddress, detailsJSON,
		database.FormatTime(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}
	return nil
}

// List returns events matching the filter, most recent first.
func (r *SQLRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, database.FormatTime(filter.Since))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM security_events %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting security events: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, event_type, role, device_id, ip_address, details, created_at FROM security_events %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying security events: %w", err)
	}
	defer rows.Close()

	events := []SecurityEvent{}
	for rows.Next() {
		var ev SecurityEvent
		var detailsJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Role, &ev.DeviceID,
			&ev.IPAddress, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning security event: %w", err)
		}

		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				ev.Details = details
			}
		}

		if ev.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating security events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
