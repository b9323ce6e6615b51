package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Security event types written to the audit log.
const (
	EventDeviceVerified           = "device_verified"
	EventDeviceVerificationFailed = "device_verification_failed"
	EventUnknownRole              = "unknown_role"
	EventLoginLocked              = "login_locked"
	EventAuthFailed               = "auth_failed"
	EventAuthError                = "auth_error"
	EventLoginSuccess             = "login_success"
	EventAdminLogout              = "admin_logout"
	EventSessionExpired           = "session_expired"
	EventTokenRefreshed           = "token_refreshed"
)

// DeviceChecker answers whether a scanner is registered and active.
type DeviceChecker interface {
	IsActive(ctx context.Context, deviceID string) (bool, error)
	TouchVerified(ctx context.Context, deviceID string) error
}

// SecurityEvent is one entry in the security audit log.
type SecurityEvent struct {
	Type      string
	Role      string
	DeviceID  string
	IPAddress string
	Details   map[string]any
}

// SecurityLog receives security events. Implementations must not block the
// caller for long; the audit recorder buffers and writes asynchronously.
type SecurityLog interface {
	Record(ctx context.Context, ev SecurityEvent)
}

// Logger is the logging interface used by the authenticator.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

type noopSecurityLog struct{}

func (noopSecurityLog) Record(context.Context, SecurityEvent) {}

// LoginRequest is a subrole or admin login attempt.
type LoginRequest struct {
	ClientAddr string
	DeviceID   string
	Role       Role
	Credential string

	// Biometric is reported by the admin app; it is recorded, not enforced.
	Biometric bool
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  Identity
	Session   *Session
	Hostel    string
}

// Deps holds the collaborators of an Authenticator.
type Deps struct {
	Devices     DeviceChecker
	Credentials *Credentials
	Attempts    *AttemptTracker
	Sessions    *SessionRegistry
	Tokens      *TokenIssuer
	SecurityLog SecurityLog
	Logger      Logger
}

// Authenticator verifies scanners and role credentials, gates them through
// the attempt tracker and mints identity tokens.
type Authenticator struct {
	devices  DeviceChecker
	creds    *Credentials
	attempts *AttemptTracker
	sessions *SessionRegistry
	tokens   *TokenIssuer
	audit    SecurityLog
	logger   Logger
}

// NewAuthenticator creates an Authenticator. Devices, Credentials, Attempts,
// Sessions and Tokens are required.
func NewAuthenticator(deps Deps) *Authenticator {
	a := &Authenticator{
		devices:  deps.Devices,
		creds:    deps.Credentials,
		attempts: deps.Attempts,
		sessions: deps.Sessions,
		tokens:   deps.Tokens,
		audit:    deps.SecurityLog,
		logger:   deps.Logger,
	}
	if a.audit == nil {
		a.audit = noopSecurityLog{}
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}
	return a
}

// Authenticate runs a subrole or admin login:
//
//  1. reject if the client+device scope is locked
//  2. reject unknown or revoked devices
//  3. reject roles without a credential
//  4. on a wrong unique id, record the failure (which may lock the scope)
//  5. on success, clear the failure sequence and issue a token; admin
//     logins also open a session
//
// Every call writes exactly one security event.
func (a *Authenticator) Authenticate(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	key := AttemptKey{Client: req.ClientAddr, DeviceID: req.DeviceID}
	if !req.Role.IsAdmin() {
		key.Subrole = req.Role
	}

	if remaining, locked := a.attempts.IsLocked(key.Scope()); locked {
		a.record(ctx, EventLoginLocked, req, map[string]any{"remaining_seconds": int(remaining.Seconds())})
		return nil, &LockedError{Remaining: remaining}
	}

	active, err := a.devices.IsActive(ctx, req.DeviceID)
	if err != nil {
		a.record(ctx, EventAuthError, req, map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("looking up device: %w", err)
	}
	if !active {
		a.record(ctx, EventDeviceVerificationFailed, req, map[string]any{"reason": "device_not_found"})
		return nil, ErrDeviceNotVerified
	}

	if req.Role.Tier() == TierNone || !a.creds.Has(req.Role) {
		a.record(ctx, EventUnknownRole, req, nil)
		return nil, ErrUnknownRole
	}

	if _, ok := a.creds.Verify(req.Role, req.Credential); !ok {
		locked, remaining := a.attempts.RecordFailure(key)
		a.record(ctx, EventAuthFailed, req, map[string]any{
			"reason": "invalid_credentials",
			"locked": locked,
		})
		if locked {
			a.logger.Warn("login scope locked",
				"client", req.ClientAddr, "device_id", req.DeviceID, "role", string(req.Role))
			return nil, &LockedError{Remaining: remaining}
		}
		return nil, ErrInvalidCredentials
	}

	a.attempts.Clear(key)

	id := Identity{DeviceID: req.DeviceID, Role: req.Role}
	result := &LoginResult{Identity: id, Hostel: id.Hostel()}

	var sid string
	if id.IsAdmin() {
		s := a.sessions.Open(req.DeviceID, req.Role, req.ClientAddr)
		result.Session = &s
		sid = s.ID
	}

	token, expires, err := a.tokens.Issue(id, sid)
	if err != nil {
		if sid != "" {
			a.sessions.Close(sid)
		}
		a.record(ctx, EventAuthError, req, map[string]any{"error": err.Error()})
		return nil, err
	}
	result.Token = token
	result.ExpiresAt = expires

	details := map[string]any{"method": "device"}
	if req.Biometric {
		details["method"] = "biometric"
	}
	if sid != "" {
		details["session_id"] = sid
	}
	a.record(ctx, EventLoginSuccess, req, details)

	return result, nil
}

// VerifyDevice is the scanner bootstrap step. A registered, active device
// receives a token with role device_verified; anything else counts as a
// failed attempt against the client+device scope.
func (a *Authenticator) VerifyDevice(ctx context.Context, clientAddr, deviceID string) (*LoginResult, error) {
	key := AttemptKey{Client: clientAddr, DeviceID: deviceID}
	req := LoginRequest{ClientAddr: clientAddr, DeviceID: deviceID, Role: RoleDeviceVerified}

	if remaining, locked := a.attempts.IsLocked(key.Scope()); locked {
		a.record(ctx, EventLoginLocked, req, map[string]any{"remaining_seconds": int(remaining.Seconds())})
		return nil, &LockedError{Remaining: remaining}
	}

	active, err := a.devices.IsActive(ctx, deviceID)
	if err != nil {
		a.record(ctx, EventAuthError, req, map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("looking up device: %w", err)
	}
	if !active {
		locked, remaining := a.attempts.RecordFailure(key)
		a.record(ctx, EventDeviceVerificationFailed, req, map[string]any{
			"reason": "device_not_found",
			"locked": locked,
		})
		if locked {
			return nil, &LockedError{Remaining: remaining}
		}
		return nil, ErrDeviceNotVerified
	}

	a.attempts.Clear(key)

	if err := a.devices.TouchVerified(ctx, deviceID); err != nil {
		a.logger.Warn("failed to record device verification time", "device_id", deviceID, "error", err)
	}

	id := Identity{DeviceID: deviceID, Role: RoleDeviceVerified}
	token, expires, err := a.tokens.Issue(id, "")
	if err != nil {
		a.record(ctx, EventAuthError, req, map[string]any{"error": err.Error()})
		return nil, err
	}

	a.record(ctx, EventDeviceVerified, req, nil)
	return &LoginResult{Token: token, ExpiresAt: expires, Identity: id}, nil
}

// CheckSession enforces the admin idle timeout for a request. Non-admin
// identities are stateless and always pass.
func (a *Authenticator) CheckSession(ctx context.Context, id Identity, sessionID, clientAddr string) error {
	if !id.IsAdmin() {
		return nil
	}

	_, err := a.sessions.Touch(sessionID)
	if errors.Is(err, ErrSessionExpired) {
		a.audit.Record(ctx, SecurityEvent{
			Type:      EventSessionExpired,
			Role:      string(id.Role),
			DeviceID:  id.DeviceID,
			IPAddress: clientAddr,
			Details:   map[string]any{"session_id": sessionID},
		})
	}
	return err
}

// Logout closes the admin session named in the token.
func (a *Authenticator) Logout(ctx context.Context, id Identity, sessionID, clientAddr string) error {
	if !id.IsAdmin() {
		return ErrAdminRequired
	}

	closed := a.sessions.Close(sessionID)
	a.audit.Record(ctx, SecurityEvent{
		Type:      EventAdminLogout,
		Role:      string(id.Role),
		DeviceID:  id.DeviceID,
		IPAddress: clientAddr,
		Details:   map[string]any{"session_id": sessionID, "closed": closed},
	})
	return nil
}

// Refresh re-issues a token for the same identity. An admin refresh requires
// the session to still be live.
func (a *Authenticator) Refresh(ctx context.Context, id Identity, sessionID string) (*LoginResult, error) {
	result := &LoginResult{Identity: id, Hostel: id.Hostel()}

	if id.IsAdmin() {
		s, ok := a.sessions.Get(sessionID)
		if !ok {
			return nil, ErrSessionNotFound
		}
		result.Session = &s
	} else {
		sessionID = ""
	}

	token, expires, err := a.tokens.Issue(id, sessionID)
	if err != nil {
		return nil, err
	}
	result.Token = token
	result.ExpiresAt = expires

	a.audit.Record(ctx, SecurityEvent{
		Type:     EventTokenRefreshed,
		Role:     string(id.Role),
		DeviceID: id.DeviceID,
	})
	return result, nil
}

// ParseToken validates a bearer token and returns the identity and admin
// session id it carries.
func (a *Authenticator) ParseToken(token string) (Identity, string, error) {
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return Identity{}, "", err
	}
	return claims.Identity(), claims.SessionID, nil
}

// Sessions exposes the session registry for housekeeping.
func (a *Authenticator) Sessions() *SessionRegistry {
	return a.sessions
}

// Attempts exposes the attempt tracker for housekeeping.
func (a *Authenticator) Attempts() *AttemptTracker {
	return a.attempts
}

func (a *Authenticator) record(ctx context.Context, typ string, req LoginRequest, details map[string]any) {
	a.audit.Record(ctx, SecurityEvent{
		Type:      typ,
		Role:      string(req.Role),
		DeviceID:  req.DeviceID,
		IPAddress: req.ClientAddr,
		Details:   details,
	})
}
