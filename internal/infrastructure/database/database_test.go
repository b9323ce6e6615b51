package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	t.Run("creates database file and directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(Config{
			Path:        dbPath,
			WALMode:     true,
			BusyTimeout: 5,
		})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
		if db.Driver() != DriverSQLite {
			t.Errorf("Driver() = %q, want %q", db.Driver(), DriverSQLite)
		}
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		if _, err := Open(Config{Driver: "oracle", Path: filepath.Join(t.TempDir(), "x.db")}); err == nil {
			t.Error("Open() with unknown driver should fail")
		}
	})

	t.Run("rejects postgres without dsn", func(t *testing.T) {
		if _, err := Open(Config{Driver: "postgres"}); err == nil {
			t.Error("Open() postgres without DSN should fail")
		}
	})
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	lite := &DB{driver: DriverSQLite}

	query := "UPDATE movement_records SET in_time = ? WHERE roll_no = ? AND in_time IS NULL"

	if got := lite.Rebind(query); got != query {
		t.Errorf("sqlite Rebind() = %q, want unchanged", got)
	}

	want := "UPDATE movement_records SET in_time = $1 WHERE roll_no = $2 AND in_time IS NULL"
	if got := pg.Rebind(query); got != want {
		t.Errorf("postgres Rebind() = %q, want %q", got, want)
	}

	if got := pg.Rebind("SELECT 1"); got != "SELECT 1" {
		t.Errorf("postgres Rebind() without placeholders = %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestQueryContext(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE students (roll_no TEXT PRIMARY KEY, hostel TEXT NOT NULL)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}
	for _, row := range [][2]string{{"A101", "A"}, {"A102", "A"}, {"B201", "B"}} {
		if _, err := db.ExecContext(ctx, "INSERT INTO students (roll_no, hostel) VALUES (?, ?)", row[0], row[1]); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
	}

	rows, err := db.QueryContext(ctx, "SELECT roll_no FROM students WHERE hostel = ? ORDER BY roll_no", "A")
	if err != nil {
		t.Fatalf("QueryContext() error = %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var roll string
		if err := rows.Scan(&roll); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		got = append(got, roll)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows.Err() = %v", err)
	}
	if len(got) != 2 || got[0] != "A101" || got[1] != "A102" {
		t.Errorf("rows = %v, want [A101 A102]", got)
	}
}

func TestBeginTx(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE tx_test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	for _, commit := range []bool{true, false} {
		value := "rolled_back"
		if commit {
			value = "committed"
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		if _, err := tx.ExecContext(ctx, db.Rebind("INSERT INTO tx_test (value) VALUES (?)"), value); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
		if commit {
			err = tx.Commit()
		} else {
			err = tx.Rollback()
		}
		if err != nil {
			t.Fatalf("finishing tx error = %v", err)
		}

		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_test WHERE value = ?", value).Scan(&count); err != nil {
			t.Fatalf("SELECT error = %v", err)
		}
		want := 0
		if commit {
			want = 1
		}
		if count != want {
			t.Errorf("%s: expected %d rows, got %d", value, want, count)
		}
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if stats := db.Stats(); stats.MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %v, want 1 (SQLite single writer)", stats.MaxOpenConnections)
	}
}

// openTestDB creates a temporary database for testing.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}
