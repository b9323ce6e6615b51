// Package api provides the HTTP REST API and WebSocket server for Hostel Gate.
//
// Scanners authenticate in two steps: POST /auth/verify-device proves the
// handset is registered, then POST /auth/subrole (or /auth/admin) exchanges a
// role credential for an identity token. Every other route requires that
// token as a Bearer header. Admin tokens also name a session that idles out.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
