// Package device provides the scanner registry for Hostel Gate.
//
// Only registered devices may authenticate. The registry is the source the
// authenticator asks "is this device active?" on every login and device
// verification; admins register scanners and flip their status between
// active and revoked.
//
// # Architecture
//
//	Registry (registry.go)        Repository (repository.go)
//	  • in-memory cache     ───▶    • devices table
//	  • IsActive for auth           • SQLite or PostgreSQL
//	  • register / revoke
//
// # Usage
//
//	repo := device.NewSQLRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	err := registry.RegisterDevice(ctx, &device.Device{ID: "scanner-07", Name: "Gate B handheld"})
//	_, err = registry.SetStatus(ctx, "scanner-07", device.StatusRevoked)
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by
// a read-write mutex. The Repository implementation must also be thread-safe.
package device
