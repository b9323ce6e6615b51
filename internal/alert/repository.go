package alert

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/hostel-gate/internal/infrastructure/database"
)

// Recent query limits.
const (
	DefaultRecentWindow = 7 * 24 * time.Hour
	DefaultRecentLimit  = 50
	maxRecentLimit      = 500
)

// SQLRepository stores alerts in the alerts table. It is also a Sink.
type SQLRepository struct {
	db *database.DB
}

// NewSQLRepository creates a new alert repository.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Publish stores the alert.
func (r *SQLRepository) Publish(ctx context.Context, a Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	var details *string
	if len(a.Details) > 0 {
		b, err := json.Marshal(a.Details)
		if err != nil {
			return fmt.Errorf("marshalling alert details: %w", err)
		}
		s := string(b)
		details = &s
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, type, message, priority, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Type, a.Message, string(a.Priority), details, database.FormatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// Recent returns alerts created at or after since, newest first.
// A limit <= 0 uses DefaultRecentLimit.
func (r *SQLRepository) Recent(ctx context.Context, since time.Time, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, message, priority, details, created_at FROM alerts
		WHERE created_at >= ? ORDER BY created_at DESC, id LIMIT ?`,
		database.FormatTime(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		var (
			a         Alert
			priority  string
			details   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Message, &priority, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.Priority = Priority(priority)
		if details.Valid && details.String != "" {
			var m map[string]any
			if json.Unmarshal([]byte(details.String), &m) == nil {
				a.Details = m
			}
		}
		if a.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}
