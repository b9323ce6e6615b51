package device

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Logger is the logging the registry needs; *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Registry fronts a Repository with a read-through cache so the device
// check on every login does not touch the store. Writes go to the store
// first and then refresh the cached copy.
type Registry struct {
	repo   Repository
	logger Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]*Device
}

// NewRegistry returns a registry with an empty cache; call RefreshCache at
// startup to warm it.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
		cache:  make(map[string]*Device),
	}
}

// SetLogger replaces the no-op logger.
func (r *Registry) SetLogger(l Logger) {
	r.logger = l
}

// put caches a private copy of d.
func (r *Registry) put(d *Device) {
	r.mu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.mu.Unlock()
}

func (r *Registry) cached(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.cache[id]
	if !ok {
		return nil, false
	}
	return d.DeepCopy(), true
}

// RefreshCache replaces the cache with the store's contents.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	fresh := make(map[string]*Device, len(devices))
	for i := range devices {
		fresh[devices[i].ID] = devices[i].DeepCopy()
	}

	r.mu.Lock()
	r.cache = fresh
	r.mu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice returns a copy of the device, consulting the store on a cache
// miss. Unknown ids yield ErrDeviceNotFound.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	if d, ok := r.cached(id); ok {
		return d, nil
	}
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.put(d)
	return d, nil
}

// IsActive reports whether id names an active device. An unknown or blank
// id is simply inactive; only store failures are errors.
func (r *Registry) IsActive(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	d, err := r.GetDevice(ctx, id)
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return d.IsActive(), nil
}

// ListDevices returns every device, oldest registration first.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	r.mu.RUnlock()

	if len(devices) == 0 {
		return r.repo.List(ctx)
	}

	slices.SortFunc(devices, func(a, b Device) int {
		if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return devices, nil
}

// RegisterDevice fills defaults (name, type, active status, timestamps),
// validates and persists a new scanner.
func (r *Registry) RegisterDevice(ctx context.Context, d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	now := r.now()
	d.ID = strings.TrimSpace(d.ID)
	d.Name = cmp.Or(d.Name, "Unnamed Device")
	d.DeviceType = cmp.Or(d.DeviceType, DefaultDeviceType)
	d.Status = cmp.Or(d.Status, StatusActive)
	if d.RegisteredAt.IsZero() {
		d.RegisteredAt = now
	}
	if d.LastVerified == nil {
		d.LastVerified = &now
	}

	if err := ValidateDevice(d); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}
	r.put(d)

	r.logger.Info("device registered", "id", d.ID, "name", d.Name, "type", d.DeviceType)
	return nil
}

// SetStatus activates or revokes a device. Revocation takes effect at the
// device's next login.
func (r *Registry) SetStatus(ctx context.Context, id string, status Status) (*Device, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	if err := r.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.put(d)

	r.logger.Info("device status changed", "id", id, "status", string(status))
	return d, nil
}

// TouchVerified stamps a successful device verification.
func (r *Registry) TouchVerified(ctx context.Context, id string) error {
	now := r.now()
	if err := r.repo.TouchVerified(ctx, id, now); err != nil {
		return err
	}

	r.mu.Lock()
	if d, ok := r.cache[id]; ok {
		d.LastVerified = &now
	}
	r.mu.Unlock()

	r.logger.Debug("device verified", "id", id)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Stats summarises the cache for the admin metrics endpoint.
type Stats struct {
	TotalDevices int
	ByStatus     map[Status]int
}

// GetStats counts cached devices by status.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{TotalDevices: len(r.cache), ByStatus: make(map[Status]int)}
	for _, d := range r.cache {
		s.ByStatus[d.Status]++
	}
	return s
}
