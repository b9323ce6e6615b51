package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/hostel-gate/internal/clock"
)

// defaultTokenTTL matches the eight-hour shift the scanners are issued for.
const defaultTokenTTL = 8 * time.Hour

// CustomClaims extends JWT standard claims with the scanner role and the
// admin session id. Subject is the device id.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role      Role   `json:"role"`
	SessionID string `json:"sid,omitempty"`
}

// Identity returns the typed principal carried by the claims.
func (c *CustomClaims) Identity() Identity {
	return Identity{DeviceID: c.Subject, Role: c.Role}
}

// TokenIssuer signs and validates HS256 identity tokens.
// Access tokens are validated by signature and expiry only (no store hit).
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokenIssuer creates an issuer. A non-positive ttl uses eight hours and a
// nil clock uses the wall clock.
func NewTokenIssuer(secret string, ttl time.Duration, clk clock.Clock) *TokenIssuer {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clk}
}

// TTL returns the lifetime of issued tokens.
func (ti *TokenIssuer) TTL() time.Duration {
	return ti.ttl
}

// Issue creates a signed token for the identity. sessionID is empty for
// every role except admin.
func (ti *TokenIssuer) Issue(id Identity, sessionID string) (string, time.Time, error) {
	now := ti.clock.Now()
	expires := now.Add(ti.ttl)

	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.DeviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Role:      id.Role,
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expires, nil
}

// Parse validates and parses a token, returning the custom claims.
// It checks the signature, expiry against the issuer's clock, and required fields.
func (ti *TokenIssuer) Parse(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if claims.Role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrTokenInvalid)
	}

	return claims, nil
}
