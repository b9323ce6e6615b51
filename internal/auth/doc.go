// Package auth provides scanner authentication and authorisation for Hostel Gate.
//
// Scanners authenticate as fixed device+role pairs:
//   - a registered device first proves itself (role device_verified)
//   - it then logs in as a subrole such as security_a or canteen_c using
//     the role's unique id, or as admin
//
// Failed attempts are counted per client+device in a sliding window; five
// failures in fifteen minutes lock the scope for fifteen minutes. Admin
// logins open an in-memory session that expires after an idle period.
// Every other role is stateless and carries only an HS256 identity token.
//
// Permissions are static per tier (security, canteen, super, admin) and
// every non-admin role is additionally scoped to its own hostel.
package auth
