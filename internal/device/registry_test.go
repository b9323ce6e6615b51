package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	gets    int
	// For testing error paths
	getErr    error
	createErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices: make(map[string]*Device),
	}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if d, ok := m.devices[id]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.DeepCopy())
	}
	return devices, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[d.ID]; exists {
		return ErrDeviceExists
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) UpdateStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Status = status
	return nil
}

func (m *MockRepository) TouchVerified(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.LastVerified = &at
	return nil
}

func TestRegistry_RegisterDevice_Defaults(t *testing.T) {
	reg := NewRegistry(NewMockRepository())

	d := &Device{ID: " scanner-01 "}
	if err := reg.RegisterDevice(context.Background(), d); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	if d.ID != "scanner-01" {
		t.Errorf("ID = %q, want trimmed", d.ID)
	}
	if d.Name != "Unnamed Device" || d.DeviceType != DefaultDeviceType || d.Status != StatusActive {
		t.Errorf("defaults not applied: %+v", d)
	}
	if d.RegisteredAt.IsZero() || d.LastVerified == nil {
		t.Error("timestamps should be set on registration")
	}
	if reg.GetDeviceCount() != 1 {
		t.Errorf("GetDeviceCount() = %d, want 1", reg.GetDeviceCount())
	}
}

func TestRegistry_RegisterDevice_Validation(t *testing.T) {
	reg := NewRegistry(NewMockRepository())

	tests := []struct {
		name string
		dev  *Device
	}{
		{"nil", nil},
		{"empty id", &Device{ID: ""}},
		{"bad id chars", &Device{ID: "scanner 01/../x"}},
		{"bad status", &Device{ID: "s1", Status: "lost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.RegisterDevice(context.Background(), tt.dev); err == nil {
				t.Error("RegisterDevice() should fail")
			}
		})
	}
}

func TestRegistry_IsActive(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	if err := reg.RegisterDevice(ctx, &Device{ID: "scanner-01"}); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	tests := []struct {
		id   string
		want bool
	}{
		{"scanner-01", true},
		{"ghost", false},
		{"", false},
	}
	for _, tt := range tests {
		got, err := reg.IsActive(ctx, tt.id)
		if err != nil {
			t.Errorf("IsActive(%q) error = %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("IsActive(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}

	if _, err := reg.SetStatus(ctx, "scanner-01", StatusRevoked); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if active, _ := reg.IsActive(ctx, "scanner-01"); active {
		t.Error("revoked device should not be active")
	}
}

func TestRegistry_IsActive_StoreError(t *testing.T) {
	repo := NewMockRepository()
	repo.getErr = errors.New("disk on fire")
	reg := NewRegistry(repo)

	if _, err := reg.IsActive(context.Background(), "scanner-01"); err == nil {
		t.Error("IsActive() should surface store errors")
	}
}

func TestRegistry_CacheServesReads(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["scanner-01"] = &Device{ID: "scanner-01", Status: StatusActive, DeviceType: "mobile"}
	reg := NewRegistry(repo)
	ctx := context.Background()

	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := reg.IsActive(ctx, "scanner-01"); err != nil {
			t.Fatalf("IsActive() error = %v", err)
		}
	}
	if repo.gets != 0 {
		t.Errorf("repository GetByID called %d times, want 0 (cache hit)", repo.gets)
	}
}

func TestRegistry_GetDevice_ReturnsCopy(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()
	_ = reg.RegisterDevice(ctx, &Device{ID: "scanner-01", Name: "orig"})

	d, err := reg.GetDevice(ctx, "scanner-01")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	d.Name = "mutated"

	again, _ := reg.GetDevice(ctx, "scanner-01")
	if again.Name != "orig" {
		t.Error("mutating a returned device changed the cache")
	}
}

func TestRegistry_SetStatus_Errors(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()

	if _, err := reg.SetStatus(ctx, "ghost", StatusRevoked); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetStatus(ghost) error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := reg.SetStatus(ctx, "ghost", "lost"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("SetStatus(lost) error = %v, want ErrInvalidStatus", err)
	}
}

func TestRegistry_TouchVerified(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()
	_ = reg.RegisterDevice(ctx, &Device{ID: "scanner-01"})

	fixed := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	reg.now = func() time.Time { return fixed }

	if err := reg.TouchVerified(ctx, "scanner-01"); err != nil {
		t.Fatalf("TouchVerified() error = %v", err)
	}
	d, _ := reg.GetDevice(ctx, "scanner-01")
	if d.LastVerified == nil || !d.LastVerified.Equal(fixed) {
		t.Errorf("LastVerified = %v, want %v", d.LastVerified, fixed)
	}
}

func TestRegistry_ListAndStats(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()
	_ = reg.RegisterDevice(ctx, &Device{ID: "b", RegisteredAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)})
	_ = reg.RegisterDevice(ctx, &Device{ID: "a", RegisteredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	_, _ = reg.SetStatus(ctx, "b", StatusRevoked)

	devices, err := reg.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 2 || devices[0].ID != "a" {
		t.Errorf("ListDevices() = %+v, want a then b", devices)
	}

	stats := reg.GetStats()
	if stats.TotalDevices != 2 || stats.ByStatus[StatusActive] != 1 || stats.ByStatus[StatusRevoked] != 1 {
		t.Errorf("GetStats() = %+v", stats)
	}
}
