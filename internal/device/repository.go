package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/hostel-gate/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQL, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// UpdateStatus activates or revokes a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// TouchVerified records the time of the last successful verification.
	TouchVerified(ctx context.Context, id string, at time.Time) error
}

// SQLRepository implements Repository on the hostel store (SQLite or PostgreSQL).
type SQLRepository struct {
	db *database.DB
}

// NewSQLRepository creates a new SQL-backed repository.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

const deviceColumns = `id, name, device_type, status, registered_at, last_verified`

// GetByID retrieves a device by its identifier.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices ordered by registration time.
func (r *SQLRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY registered_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLRepository) Create(ctx context.Context, d *Device) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, device_type, status, registered_at, last_verified)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.DeviceType, string(d.Status),
		database.FormatTime(d.RegisteredAt), database.NullTime(d.LastVerified),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// UpdateStatus activates or revokes a device.
func (r *SQLRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.IsValid() {
		return ErrInvalidStatus
	}
	res, err := r.db.ExecContext(ctx, `UPDATE devices SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return requireOneRow(res)
}

// TouchVerified records the time of the last successful verification.
func (r *SQLRepository) TouchVerified(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE devices SET last_verified = ? WHERE id = ?`, database.FormatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating last_verified: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(s rowScanner) (*Device, error) {
	var (
		d            Device
		status       string
		registeredAt string
		lastVerified sql.NullString
	)
	if err := s.Scan(&d.ID, &d.Name, &d.DeviceType, &status, &registeredAt, &lastVerified); err != nil {
		return nil, err
	}
	d.Status = Status(status)

	var err error
	if d.RegisteredAt, err = database.ParseTime(registeredAt); err != nil {
		return nil, err
	}
	if d.LastVerified, err = database.ParseNullTime(lastVerified); err != nil {
		return nil, err
	}
	return &d, nil
}
