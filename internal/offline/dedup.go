package offline

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/hostel-gate/internal/clock"
)

// DefaultDedupTTL is how long an applied event id is remembered.
const DefaultDedupTTL = 72 * time.Hour

// dedupKeyPrefix namespaces claim keys in shared stores.
const dedupKeyPrefix = "hostelgate:sync:"

// Claim values stored in shared stores.
const (
	claimValuePending = "pending"
	claimValueApplied = "applied"
)

// ClaimState is the outcome of Deduper.Claim.
type ClaimState int

const (
	// ClaimWon means the caller now holds a pending claim and must apply
	// the event, then Confirm or Release it.
	ClaimWon ClaimState = iota
	// ClaimPending means another copy of the event is being applied.
	ClaimPending
	// ClaimApplied means the event was already applied.
	ClaimApplied
)

// String returns the state name for logs.
func (s ClaimState) String() string {
	switch s {
	case ClaimWon:
		return "won"
	case ClaimPending:
		return "pending"
	case ClaimApplied:
		return "applied"
	}
	return "unknown"
}

// Deduper remembers which offline events are in flight or applied.
type Deduper interface {
	// Claim takes a pending claim on key if nobody holds one and reports
	// the state it found otherwise.
	Claim(ctx context.Context, key string) (ClaimState, error)

	// Confirm marks a pending claim as applied.
	Confirm(ctx context.Context, key string) error

	// Release forgets key so a failed event can be retried.
	Release(ctx context.Context, key string) error
}

// dedupKey scopes a client event id to the device that produced it.
func dedupKey(deviceID, eventID string) string {
	return dedupKeyPrefix + deviceID + ":" + eventID
}

type memoryClaim struct {
	applied bool
	expires time.Time
}

// MemoryDeduper keeps claims in process memory with a TTL.
type MemoryDeduper struct {
	mu     sync.Mutex
	claims map[string]memoryClaim
	ttl    time.Duration
	clock  clock.Clock
}

// NewMemoryDeduper creates an in-memory deduper. ttl <= 0 uses
// DefaultDedupTTL; a nil clock uses the wall clock.
func NewMemoryDeduper(ttl time.Duration, clk clock.Clock) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryDeduper{claims: make(map[string]memoryClaim), ttl: ttl, clock: clk}
}

// Claim implements Deduper.
func (d *MemoryDeduper) Claim(_ context.Context, key string) (ClaimState, error) {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.claims[key]; ok && now.Before(c.expires) {
		if c.applied {
			return ClaimApplied, nil
		}
		return ClaimPending, nil
	}
	d.claims[key] = memoryClaim{expires: now.Add(d.ttl)}
	return ClaimWon, nil
}

// Confirm implements Deduper. The expiry set by Claim is kept.
func (d *MemoryDeduper) Confirm(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.claims[key]; ok {
		c.applied = true
		d.claims[key] = c
	}
	return nil
}

// Release implements Deduper.
func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.claims, key)
	d.mu.Unlock()
	return nil
}

// Sweep drops expired claims and returns how many were removed.
func (d *MemoryDeduper) Sweep() int {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, c := range d.claims {
		if !now.Before(c.expires) {
			delete(d.claims, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live and expired-but-unswept claims.
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claims)
}

// KeyValueStore is the subset of the Redis client the Redis deduper needs.
type KeyValueStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	SetKeepTTL(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
}

// RedisDeduper keeps claims in Redis so every core instance shares them.
// Expiry is left to Redis.
type RedisDeduper struct {
	store KeyValueStore
	ttl   time.Duration
}

// NewRedisDeduper creates a Redis-backed deduper.
func NewRedisDeduper(store KeyValueStore, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{store: store, ttl: ttl}
}

// Claim implements Deduper with SET NX, reading the existing value when
// the key is taken. A key that expires between the two calls is retried
// once.
func (d *RedisDeduper) Claim(ctx context.Context, key string) (ClaimState, error) {
	for range 2 {
		created, err := d.store.SetNX(ctx, key, claimValuePending, d.ttl)
		if err != nil {
			return ClaimWon, err
		}
		if created {
			return ClaimWon, nil
		}

		value, found, err := d.store.Get(ctx, key)
		if err != nil {
			return ClaimWon, err
		}
		if !found {
			continue
		}
		if value == claimValueApplied {
			return ClaimApplied, nil
		}
		return ClaimPending, nil
	}
	return ClaimPending, nil
}

// Confirm implements Deduper with SET KEEPTTL.
func (d *RedisDeduper) Confirm(ctx context.Context, key string) error {
	return d.store.SetKeepTTL(ctx, key, claimValueApplied)
}

// Release implements Deduper.
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.store.Del(ctx, key)
}
