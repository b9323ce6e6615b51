package device

import "time"

// Status is the lifecycle state of a registered scanner.
type Status string

// Status constants. Status is the only mutable field of a device.
const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusRevoked
}

// DefaultDeviceType is used when registration does not name one.
const DefaultDeviceType = "mobile"

// Device is a handheld scanner or admin tablet allowed to authenticate.
type Device struct {
	ID           string     `json:"device_id"`
	Name         string     `json:"device_name"`
	DeviceType   string     `json:"device_type"`
	Status       Status     `json:"status"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastVerified *time.Time `json:"last_verified,omitempty"`
}

// IsActive reports whether the device may authenticate.
func (d *Device) IsActive() bool {
	return d != nil && d.Status == StatusActive
}

// DeepCopy returns an independent copy of the device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.LastVerified != nil {
		t := *d.LastVerified
		cpy.LastVerified = &t
	}
	return &cpy
}
