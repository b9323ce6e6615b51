package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	maxIDLength   = 128
	maxNameLength = 100
	maxTypeLength = 32
	idPattern     = `^[A-Za-z0-9][A-Za-z0-9._:-]*$`
)

var idRegex = regexp.MustCompile(idPattern)

// ValidateDevice checks a device before it is persisted.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	if d.DeviceType == "" || len(d.DeviceType) > maxTypeLength {
		return fmt.Errorf("%w: device_type must be 1-%d characters", ErrInvalidDevice, maxTypeLength)
	}
	if !d.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// ValidateID checks a device identifier as reported by the scanner app.
func ValidateID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidDevice)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: device_id exceeds %d characters", ErrInvalidDevice, maxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: device_id contains invalid characters", ErrInvalidDevice)
	}
	return nil
}
