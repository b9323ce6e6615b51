package device

import "github.com/nerrad567/hostel-gate/internal/apperr"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = apperr.New(apperr.NotFound, "device_not_found", "device: not found")

	// ErrDeviceExists is returned when registering a device ID that already exists.
	ErrDeviceExists = apperr.New(apperr.Conflict, "device_exists", "device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = apperr.New(apperr.Invalid, "invalid_device", "device: invalid")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = apperr.New(apperr.Invalid, "invalid_status", "device: status must be active or revoked")
)
