package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/hostel-gate/internal/infrastructure/database/dbtest"
)

var registeredAt = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func testDevice(id, name string) *Device {
	return &Device{
		ID:           id,
		Name:         name,
		DeviceType:   DefaultDeviceType,
		Status:       StatusActive,
		RegisteredAt: registeredAt,
	}
}

func TestSQLRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLRepository(dbtest.Open(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice("scanner-01", "Gate A handheld")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "scanner-01")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Gate A handheld" {
		t.Errorf("Name = %q, want %q", got.Name, "Gate A handheld")
	}
	if got.Status != StatusActive {
		t.Errorf("Status = %q, want %q", got.Status, StatusActive)
	}
	if !got.RegisteredAt.Equal(registeredAt) {
		t.Errorf("RegisteredAt = %v, want %v", got.RegisteredAt, registeredAt)
	}
	if got.LastVerified != nil {
		t.Errorf("LastVerified = %v, want nil", got.LastVerified)
	}

	if err := repo.Create(ctx, testDevice("scanner-01", "dup")); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Create() duplicate error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLRepository_GetByID_NotFound(t *testing.T) {
	repo := NewSQLRepository(dbtest.Open(t))

	if _, err := repo.GetByID(context.Background(), "ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLRepository_List(t *testing.T) {
	repo := NewSQLRepository(dbtest.Open(t))
	ctx := context.Background()

	later := testDevice("b-scanner", "B")
	later.RegisteredAt = registeredAt.Add(time.Hour)
	for _, d := range []*Device{later, testDevice("a-scanner", "A")} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("List() returned %d devices, want 2", len(devices))
	}
	if devices[0].ID != "a-scanner" || devices[1].ID != "b-scanner" {
		t.Errorf("List() order = [%s, %s], want registration order", devices[0].ID, devices[1].ID)
	}
}

func TestSQLRepository_UpdateStatus(t *testing.T) {
	repo := NewSQLRepository(dbtest.Open(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice("scanner-01", "A")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.UpdateStatus(ctx, "scanner-01", StatusRevoked); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, "scanner-01")
	if got.Status != StatusRevoked {
		t.Errorf("Status = %q, want %q", got.Status, StatusRevoked)
	}

	if err := repo.UpdateStatus(ctx, "ghost", StatusActive); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateStatus(ghost) error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.UpdateStatus(ctx, "scanner-01", "lost"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("UpdateStatus(lost) error = %v, want ErrInvalidStatus", err)
	}
}

func TestSQLRepository_TouchVerified(t *testing.T) {
	repo := NewSQLRepository(dbtest.Open(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice("scanner-01", "A")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	at := registeredAt.Add(3 * time.Hour)
	if err := repo.TouchVerified(ctx, "scanner-01", at); err != nil {
		t.Fatalf("TouchVerified() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, "scanner-01")
	if got.LastVerified == nil || !got.LastVerified.Equal(at) {
		t.Errorf("LastVerified = %v, want %v", got.LastVerified, at)
	}
}
