package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/hostel-gate/internal/apperr"
)

// Role is the authenticated role carried by an identity token.
//
// Subroles are "<tier>_<hostel letter>", for example "security_a" or
// "canteen_c". The single admin role has no hostel.
type Role string

const (
	// RoleAdmin has full control: devices, students, audit, retention.
	// Exempt from hostel scoping.
	RoleAdmin Role = "admin"

	// RoleDeviceVerified proves a scanner is registered. It grants nothing
	// else; the scanner must still log in with a subrole.
	RoleDeviceVerified Role = "device_verified"
)

// Tier is the permission tier of a role, independent of hostel.
type Tier string

// Tier constants.
const (
	TierNone     Tier = ""
	TierSecurity Tier = "security"
	TierCanteen  Tier = "canteen"
	TierSuper    Tier = "super"
	TierAdmin    Tier = "admin"
)

// Tier returns the permission tier encoded in the role name.
func (r Role) Tier() Tier {
	if r == RoleAdmin {
		return TierAdmin
	}
	prefix, _, ok := strings.Cut(string(r), "_")
	if !ok {
		return TierNone
	}
	switch Tier(prefix) {
	case TierSecurity, TierCanteen, TierSuper:
		return Tier(prefix)
	default:
		return TierNone
	}
}

// Hostel returns the upper-case hostel letter of a subrole, or "" for
// admin and roles without a hostel suffix.
func (r Role) Hostel() string {
	if r.Tier() == TierNone || r == RoleAdmin {
		return ""
	}
	_, suffix, _ := strings.Cut(string(r), "_")
	return strings.ToUpper(suffix)
}

// IsAdmin reports whether r is the admin role.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Identity is the authenticated principal decoded once from the token at the
// boundary. Everything downstream works with Identity, never with raw claims.
type Identity struct {
	DeviceID string `json:"device_id"`
	Role     Role   `json:"role"`
}

// Hostel returns the hostel the identity is scoped to ("" for admin).
func (i Identity) Hostel() string {
	return i.Role.Hostel()
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role.IsAdmin()
}

// CanAccessHostel reports whether the identity may act on students of
// the given hostel. Admin is exempt; everyone else must match exactly.
func (i Identity) CanAccessHostel(hostel string) bool {
	if i.IsAdmin() {
		return true
	}
	h := i.Hostel()
	return h != "" && strings.EqualFold(h, hostel)
}

// String returns "device:role", the identity form used in log lines.
func (i Identity) String() string {
	return i.DeviceID + ":" + string(i.Role)
}

// Session is an admin login tracked for idle timeout.
type Session struct {
	ID           string    `json:"session_id"`
	DeviceID     string    `json:"device_id"`
	Role         Role      `json:"role"`
	LoginTime    time.Time `json:"login_time"`
	LastActivity time.Time `json:"last_activity"`
	IPAddress    string    `json:"ip_address,omitempty"`
}

// Sentinel errors for authentication and authorisation.
var (
	ErrLocked             = apperr.New(apperr.Locked, "locked", "too many failed attempts")
	ErrDeviceNotVerified  = apperr.New(apperr.Unauthorized, "device_not_verified", "device not verified or inactive")
	ErrUnknownRole        = apperr.New(apperr.Invalid, "unknown_role", "invalid subrole")
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "invalid_credentials", "invalid unique id")
	ErrSessionExpired     = apperr.New(apperr.Expired, "session_expired", "session expired, please login again")
	ErrSessionNotFound    = apperr.New(apperr.Unauthorized, "invalid_session", "invalid session, please login again")
	ErrTokenInvalid       = apperr.New(apperr.Unauthorized, "invalid_token", "invalid or expired token")
	ErrForbidden          = apperr.New(apperr.Unauthorized, "forbidden", "role not permitted for this operation")
	ErrAdminRequired      = apperr.New(apperr.Unauthorized, "admin_required", "admin access required")
)

// LockedError reports a lockout together with the time left on it.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %d minutes", int(e.Remaining/time.Minute))
}

// Unwrap makes errors.Is(err, ErrLocked) hold.
func (e *LockedError) Unwrap() error {
	return ErrLocked
}

// RetryAfterSeconds rounds the remaining lockout up to whole seconds.
func (e *LockedError) RetryAfterSeconds() int {
	secs := int((e.Remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
