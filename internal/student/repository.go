package student

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/hostel-gate/internal/infrastructure/database"
)

// Visit query limits.
const (
	defaultVisitLimit = 100
	maxVisitLimit     = 1000
)

// Repository defines the durable store for students and their records.
type Repository interface {
	// FindStudent returns ErrStudentNotFound if the roll number is unknown.
	FindStudent(ctx context.Context, rollNo string) (*Student, error)

	// UpsertStudent creates or updates a student, keeping CreatedAt.
	UpsertStudent(ctx context.Context, s *Student) error

	// FindOpenMovementRecord returns the most recent open record, or ErrNoOpenRecord.
	FindOpenMovementRecord(ctx context.Context, rollNo string) (*MovementRecord, error)

	// AppendMovementRecord inserts an open record. Returns ErrOpenRecordExists
	// if the student already has one.
	AppendMovementRecord(ctx context.Context, rec *MovementRecord) error

	// UpdateOpenMovementRecord closes the open record identified by rollNo and
	// outTime. Only one caller can close a given record; the others get
	// ErrNoOpenRecord.
	UpdateOpenMovementRecord(ctx context.Context, rollNo string, outTime time.Time, patch CheckInPatch) (*MovementRecord, error)

	AppendDisciplinaryRecord(ctx context.Context, rec *DisciplinaryRecord) error
	AppendCanteenVisit(ctx context.Context, v *CanteenVisit) error
	AppendVerificationScan(ctx context.Context, s *VerificationScan) error

	ListMovementRecords(ctx context.Context, rollNo string) ([]MovementRecord, error)
	ListDisciplinaryRecords(ctx context.Context, rollNo string) ([]DisciplinaryRecord, error)
	ListCanteenVisits(ctx context.Context, filter VisitFilter) ([]CanteenVisit, error)

	// PruneMovementRecords deletes closed records checked out before the cutoff.
	PruneMovementRecords(ctx context.Context, before time.Time) (int64, error)

	// LateArrivals totals automatic disciplinary records per student,
	// most frequent first. An empty hostel means every hostel.
	LateArrivals(ctx context.Context, hostel string) ([]LateArrival, error)

	// UnauthorizedVisitCounts groups unauthorized visits since the given
	// time by student and canteen hostel. A non-empty hostel keeps pairs
	// where either side is that hostel.
	UnauthorizedVisitCounts(ctx context.Context, hostel string, since time.Time) ([]UnauthorizedVisitCount, error)
}

// SQLRepository implements Repository on the hostel store (SQLite or PostgreSQL).
type SQLRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLRepository creates a new SQL-backed repository.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db, now: time.Now}
}

// execer is satisfied by both *database.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ─── Students ───────────────────────────────────────────────────────────────

const studentColumns = `roll_no, name, hostel, room_no, course, branch, created_at, updated_at`

// FindStudent retrieves a student by roll number.
func (r *SQLRepository) FindStudent(ctx context.Context, rollNo string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE roll_no = ?`, rollNo)

	var (
		s                    Student
		createdAt, updatedAt string
	)
	err := row.Scan(&s.RollNo, &s.Name, &s.Hostel, &s.RoomNo, &s.Course, &s.Branch, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("querying student: %w", err)
	}
	if s.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertStudent creates or updates a student. Hostel is stored upper-case.
func (r *SQLRepository) UpsertStudent(ctx context.Context, s *Student) error {
	if err := ValidateStudent(s); err != nil {
		return err
	}
	s.Hostel = strings.ToUpper(s.Hostel)

	now := r.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (roll_no) DO UPDATE SET
			name = excluded.name,
			hostel = excluded.hostel,
			room_no = excluded.room_no,
			course = excluded.course,
			branch = excluded.branch,
			updated_at = excluded.updated_at`,
		s.RollNo, s.Name, s.Hostel, s.RoomNo, s.Course, s.Branch,
		database.FormatTime(s.CreatedAt), database.FormatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting student: %w", err)
	}
	return nil
}

// ─── Movement records ───────────────────────────────────────────────────────

const movementColumns = `id, roll_no, out_time, in_time, status, recorded_by, checked_in_by, time_spent_minutes, offline_sync, created_at`

// FindOpenMovementRecord returns the most recent record without an in time.
func (r *SQLRepository) FindOpenMovementRecord(ctx context.Context, rollNo string) (*MovementRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+movementColumns+` FROM movement_records
		WHERE roll_no = ? AND in_time IS NULL
		ORDER BY out_time DESC LIMIT 1`, rollNo)

	rec, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoOpenRecord
		}
		return nil, fmt.Errorf("querying open movement record: %w", err)
	}
	return rec, nil
}

// AppendMovementRecord inserts a new open record.
func (r *SQLRepository) AppendMovementRecord(ctx context.Context, rec *MovementRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusOutside
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO movement_records (`+movementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RollNo, database.FormatTime(rec.OutTime), database.NullTime(rec.InTime),
		string(rec.Status), rec.RecordedBy, nullString(rec.CheckedInBy), nullFloat(rec.TimeSpentMinutes),
		database.BoolInt(rec.OfflineSync), database.FormatTime(rec.CreatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrOpenRecordExists
		}
		return fmt.Errorf("inserting movement record: %w", err)
	}
	return nil
}

// UpdateOpenMovementRecord closes the open record checked out at outTime.
//
// The close is a conditional update on in_time IS NULL, so of two concurrent
// check-ins exactly one changes a row. The disciplinary record, if any, is
// inserted by that winner inside the same transaction.
func (r *SQLRepository) UpdateOpenMovementRecord(ctx context.Context, rollNo string, outTime time.Time, patch CheckInPatch) (*MovementRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var id string
	err = tx.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id FROM movement_records
		WHERE roll_no = ? AND out_time = ? AND in_time IS NULL`),
		rollNo, database.FormatTime(outTime),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoOpenRecord
		}
		return nil, fmt.Errorf("locating open movement record: %w", err)
	}

	res, err := tx.ExecContext(ctx, r.db.Rebind(`
		UPDATE movement_records
		SET in_time = ?, status = ?, checked_in_by = ?, time_spent_minutes = ?, offline_sync = ?
		WHERE id = ? AND in_time IS NULL`),
		database.FormatTime(patch.InTime), string(StatusInside), nullString(patch.CheckedInBy),
		patch.TimeSpentMinutes, database.BoolInt(patch.OfflineSync), id,
	)
	if err != nil {
		return nil, fmt.Errorf("closing movement record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNoOpenRecord
	}

	if patch.Disciplinary != nil {
		patch.Disciplinary.RollNo = rollNo
		patch.Disciplinary.MovementID = id
		if err := r.insertDisciplinary(ctx, tx, patch.Disciplinary); err != nil {
			return nil, err
		}
	}

	row := tx.QueryRowContext(ctx, r.db.Rebind(`SELECT `+movementColumns+` FROM movement_records WHERE id = ?`), id)
	closed, err := scanMovement(row)
	if err != nil {
		return nil, fmt.Errorf("reading closed movement record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing check-in: %w", err)
	}
	return closed, nil
}

// ListMovementRecords returns a student's records, oldest first.
func (r *SQLRepository) ListMovementRecords(ctx context.Context, rollNo string) ([]MovementRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+movementColumns+` FROM movement_records
		WHERE roll_no = ? ORDER BY out_time, id`, rollNo)
	if err != nil {
		return nil, fmt.Errorf("listing movement records: %w", err)
	}
	defer rows.Close()

	records := []MovementRecord{}
	for rows.Next() {
		rec, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning movement record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating movement records: %w", err)
	}
	return records, nil
}

// PruneMovementRecords deletes closed records with out_time before the cutoff.
// Open records are kept whatever their age.
func (r *SQLRepository) PruneMovementRecords(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM movement_records WHERE out_time < ? AND in_time IS NOT NULL`,
		database.FormatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning movement records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// ─── Disciplinary records ───────────────────────────────────────────────────

const disciplinaryColumns = `id, roll_no, movement_id, recorded_at, description, action_taken, recorded_by, time_exceeded_minutes, auto_generated, offline_sync`

// AppendDisciplinaryRecord inserts a disciplinary record.
func (r *SQLRepository) AppendDisciplinaryRecord(ctx context.Context, rec *DisciplinaryRecord) error {
	return r.insertDisciplinary(ctx, r.db, rec)
}

func (r *SQLRepository) insertDisciplinary(ctx context.Context, ex execer, rec *DisciplinaryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = r.now().UTC()
	}

	_, err := ex.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO disciplinary_records (`+disciplinaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.RollNo, nullString(rec.MovementID), database.FormatTime(rec.RecordedAt),
		rec.Description, rec.ActionTaken, rec.RecordedBy, rec.TimeExceededMinutes,
		database.BoolInt(rec.AutoGenerated), database.BoolInt(rec.OfflineSync),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDisciplinaryExists
		}
		return fmt.Errorf("inserting disciplinary record: %w", err)
	}
	return nil
}

// ListDisciplinaryRecords returns a student's disciplinary records, oldest first.
func (r *SQLRepository) ListDisciplinaryRecords(ctx context.Context, rollNo string) ([]DisciplinaryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+disciplinaryColumns+` FROM disciplinary_records
		WHERE roll_no = ? ORDER BY recorded_at, id`, rollNo)
	if err != nil {
		return nil, fmt.Errorf("listing disciplinary records: %w", err)
	}
	defer rows.Close()

	records := []DisciplinaryRecord{}
	for rows.Next() {
		var (
			rec                   DisciplinaryRecord
			movementID            sql.NullString
			recordedAt            string
			autoGenerated, synced int
		)
		if err := rows.Scan(&rec.ID, &rec.RollNo, &movementID, &recordedAt, &rec.Description,
			&rec.ActionTaken, &rec.RecordedBy, &rec.TimeExceededMinutes, &autoGenerated, &synced); err != nil {
			return nil, fmt.Errorf("scanning disciplinary record: %w", err)
		}
		rec.MovementID = movementID.String
		rec.AutoGenerated = autoGenerated != 0
		rec.OfflineSync = synced != 0
		if rec.RecordedAt, err = database.ParseTime(recordedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating disciplinary records: %w", err)
	}
	return records, nil
}

// ─── Canteen visits and verification scans ──────────────────────────────────

// AppendCanteenVisit inserts a canteen visit.
func (r *SQLRepository) AppendCanteenVisit(ctx context.Context, v *CanteenVisit) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO canteen_visits (id, roll_no, student_hostel, canteen_hostel, recorded_by, visited_at, is_unauthorized, offline_sync)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.RollNo, v.StudentHostel, v.CanteenHostel, v.RecordedBy,
		database.FormatTime(v.VisitedAt), database.BoolInt(v.IsUnauthorized), database.BoolInt(v.OfflineSync),
	)
	if err != nil {
		return fmt.Errorf("inserting canteen visit: %w", err)
	}
	return nil
}

// ListCanteenVisits returns visits matching the filter, most recent first.
func (r *SQLRepository) ListCanteenVisits(ctx context.Context, filter VisitFilter) ([]CanteenVisit, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultVisitLimit
	}
	if filter.Limit > maxVisitLimit {
		filter.Limit = maxVisitLimit
	}

	var conditions []string
	var args []any
	if filter.RollNo != "" {
		conditions = append(conditions, "roll_no = ?")
		args = append(args, filter.RollNo)
	}
	if filter.UnauthorizedOnly {
		conditions = append(conditions, "is_unauthorized = 1")
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "visited_at >= ?")
		args = append(args, database.FormatTime(filter.Since))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, roll_no, student_hostel, canteen_hostel, recorded_by, visited_at, is_unauthorized, offline_sync
		 FROM canteen_visits %s ORDER BY visited_at DESC, id LIMIT ?`, where)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing canteen visits: %w", err)
	}
	defer rows.Close()

	visits := []CanteenVisit{}
	for rows.Next() {
		var (
			v                    CanteenVisit
			visitedAt            string
			unauthorized, synced int
		)
		if err := rows.Scan(&v.ID, &v.RollNo, &v.StudentHostel, &v.CanteenHostel, &v.RecordedBy,
			&visitedAt, &unauthorized, &synced); err != nil {
			return nil, fmt.Errorf("scanning canteen visit: %w", err)
		}
		v.IsUnauthorized = unauthorized != 0
		v.OfflineSync = synced != 0
		if v.VisitedAt, err = database.ParseTime(visitedAt); err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating canteen visits: %w", err)
	}
	return visits, nil
}

// AppendVerificationScan inserts an identity-check scan.
func (r *SQLRepository) AppendVerificationScan(ctx context.Context, s *VerificationScan) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_scans (id, roll_no, recorded_by, scanned_at)
		VALUES (?, ?, ?, ?)`,
		s.ID, s.RollNo, s.RecordedBy, database.FormatTime(s.ScannedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting verification scan: %w", err)
	}
	return nil
}

// ─── Analytics ──────────────────────────────────────────────────────────────

// LateArrivals implements Repository.
func (r *SQLRepository) LateArrivals(ctx context.Context, hostel string) ([]LateArrival, error) {
	query := `
		SELECT s.roll_no, s.name, s.hostel, COUNT(*), SUM(d.time_exceeded_minutes), MAX(d.recorded_at)
		FROM disciplinary_records d
		JOIN students s ON s.roll_no = d.roll_no
		WHERE d.auto_generated = 1`
	var args []any
	if hostel != "" {
		query += ` AND s.hostel = ?`
		args = append(args, hostel)
	}
	query += `
		GROUP BY s.roll_no, s.name, s.hostel
		ORDER BY COUNT(*) DESC, s.roll_no`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying late arrivals: %w", err)
	}
	defer rows.Close()

	out := []LateArrival{}
	for rows.Next() {
		var (
			la   LateArrival
			last string
		)
		if err := rows.Scan(&la.RollNo, &la.Name, &la.Hostel, &la.LateCount, &la.TotalExceededMinutes, &last); err != nil {
			return nil, fmt.Errorf("scanning late arrival: %w", err)
		}
		if la.LastOccurrence, err = database.ParseTime(last); err != nil {
			return nil, err
		}
		out = append(out, la)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating late arrivals: %w", err)
	}
	return out, nil
}

// UnauthorizedVisitCounts implements Repository.
func (r *SQLRepository) UnauthorizedVisitCounts(ctx context.Context, hostel string, since time.Time) ([]UnauthorizedVisitCount, error) {
	query := `
		SELECT student_hostel, canteen_hostel, COUNT(*), MAX(visited_at)
		FROM canteen_visits
		WHERE is_unauthorized = 1 AND visited_at >= ?`
	args := []any{database.FormatTime(since)}
	if hostel != "" {
		query += ` AND (student_hostel = ? OR canteen_hostel = ?)`
		args = append(args, hostel, hostel)
	}
	query += `
		GROUP BY student_hostel, canteen_hostel
		ORDER BY COUNT(*) DESC, student_hostel, canteen_hostel`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unauthorized visits: %w", err)
	}
	defer rows.Close()

	out := []UnauthorizedVisitCount{}
	for rows.Next() {
		var (
			c      UnauthorizedVisitCount
			latest string
		)
		if err := rows.Scan(&c.StudentHostel, &c.CanteenHostel, &c.VisitCount, &latest); err != nil {
			return nil, fmt.Errorf("scanning unauthorized visit count: %w", err)
		}
		if c.LatestVisit, err = database.ParseTime(latest); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unauthorized visit counts: %w", err)
	}
	return out, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(s rowScanner) (*MovementRecord, error) {
	var (
		rec         MovementRecord
		outTime     string
		inTime      sql.NullString
		status      string
		checkedInBy sql.NullString
		spent       sql.NullFloat64
		synced      int
		createdAt   string
	)
	if err := s.Scan(&rec.ID, &rec.RollNo, &outTime, &inTime, &status, &rec.RecordedBy,
		&checkedInBy, &spent, &synced, &createdAt); err != nil {
		return nil, err
	}
	rec.Status = MovementStatus(status)
	rec.CheckedInBy = checkedInBy.String
	rec.OfflineSync = synced != 0
	if spent.Valid {
		v := spent.Float64
		rec.TimeSpentMinutes = &v
	}

	var err error
	if rec.OutTime, err = database.ParseTime(outTime); err != nil {
		return nil, err
	}
	if rec.InTime, err = database.ParseNullTime(inTime); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
