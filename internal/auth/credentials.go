package auth

import (
	"crypto/subtle"
	"sort"
)

// Credentials is the read-only table of role unique ids.
//
// Values are either plaintext unique ids or Argon2id PHC hashes produced by
// HashSecret. The table is built once at startup and never mutated, so it
// is safe for concurrent use without locking.
type Credentials struct {
	secrets map[Role]string
}

// NewCredentials copies the role → secret map from configuration.
// Entries with an empty role or secret are ignored.
func NewCredentials(m map[string]string) *Credentials {
	c := &Credentials{secrets: make(map[Role]string, len(m))}
	for role, secret := range m {
		if role == "" || secret == "" {
			continue
		}
		c.secrets[Role(role)] = secret
	}
	return c
}

// Has reports whether role has a configured credential.
func (c *Credentials) Has(role Role) bool {
	_, ok := c.secrets[role]
	return ok
}

// Verify checks a supplied unique id for role.
// known is false when the role has no credential at all.
func (c *Credentials) Verify(role Role, supplied string) (known, ok bool) {
	expected, found := c.secrets[role]
	if !found {
		return false, false
	}

	if IsHashedSecret(expected) {
		match, err := VerifySecret(supplied, expected)
		if err != nil {
			// A malformed hash in config never matches.
			return true, false
		}
		return true, match
	}

	return true, subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}

// Roles returns the configured roles in sorted order.
func (c *Credentials) Roles() []Role {
	roles := make([]Role, 0, len(c.secrets))
	for r := range c.secrets {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
