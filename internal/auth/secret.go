package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost for role unique ids (OWASP 2025 minimums).
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

const phcPrefix = "$argon2id$"

var errBadPHC = errors.New("invalid argon2id PHC string")

// IsHashedSecret reports whether a configured credential is an Argon2id
// hash rather than a plaintext unique id.
func IsHashedSecret(value string) bool {
	return strings.HasPrefix(value, phcPrefix)
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$hash string.
type phc struct {
	version int
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	hash    []byte
}

func (p phc) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		p.version, p.memory, p.time, p.threads,
		enc.EncodeToString(p.salt), enc.EncodeToString(p.hash))
}

func (p phc) derive(secret string) []byte {
	return argon2.IDKey([]byte(secret), p.salt, p.time, p.memory, p.threads, uint32(len(p.hash))) //nolint:gosec // hash length is small
}

// HashSecret hashes a role unique id for security.credentials in the config
// file.
func HashSecret(secret string) (string, error) {
	p := phc{
		version: argon2.Version,
		memory:  argonMemory,
		time:    argonTime,
		threads: argonThreads,
		salt:    make([]byte, argonSaltLen),
		hash:    make([]byte, argonKeyLen),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	p.hash = p.derive(secret)
	return p.String(), nil
}

// VerifySecret compares secret against an encoded hash in constant time.
// A malformed hash is an error, not a mismatch.
func VerifySecret(secret, encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.hash, p.derive(secret)) == 1, nil
}

func parsePHC(encoded string) (phc, error) {
	var p phc

	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return p, fmt.Errorf("%w: unsupported algorithm", errBadPHC)
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return p, fmt.Errorf("%w: want 4 fields after the prefix, got %d", errBadPHC, len(fields))
	}

	if _, err := fmt.Sscanf(fields[0], "v=%d", &p.version); err != nil {
		return p, fmt.Errorf("%w: version: %w", errBadPHC, err)
	}
	if p.version != argon2.Version {
		return p, fmt.Errorf("%w: unsupported version %d", errBadPHC, p.version)
	}
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, fmt.Errorf("%w: parameters: %w", errBadPHC, err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(fields[2]); err != nil {
		return p, fmt.Errorf("%w: salt: %w", errBadPHC, err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(fields[3]); err != nil {
		return p, fmt.Errorf("%w: hash: %w", errBadPHC, err)
	}
	if len(p.hash) == 0 {
		return p, fmt.Errorf("%w: empty hash", errBadPHC)
	}
	return p, nil
}
