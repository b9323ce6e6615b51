package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/hostel-gate/internal/apperr"
)

func TestRole_TierAndHostel(t *testing.T) {
	tests := []struct {
		role   Role
		tier   Tier
		hostel string
	}{
		{"security_a", TierSecurity, "A"},
		{"canteen_b", TierCanteen, "B"},
		{"super_d", TierSuper, "D"},
		{RoleAdmin, TierAdmin, ""},
		{RoleDeviceVerified, TierNone, ""},
		{"warden_a", TierNone, ""},
		{"", TierNone, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			if got := tt.role.Tier(); got != tt.tier {
				t.Errorf("Tier() = %q, want %q", got, tt.tier)
			}
			if got := tt.role.Hostel(); got != tt.hostel {
				t.Errorf("Hostel() = %q, want %q", got, tt.hostel)
			}
		})
	}
}

func TestIdentity_CanAccessHostel(t *testing.T) {
	tests := []struct {
		name   string
		id     Identity
		hostel string
		want   bool
	}{
		{"same hostel", Identity{Role: "super_a"}, "A", true},
		{"lowercase student hostel", Identity{Role: "super_a"}, "a", true},
		{"other hostel", Identity{Role: "security_b"}, "A", false},
		{"admin exempt", Identity{Role: RoleAdmin}, "C", true},
		{"device only", Identity{Role: RoleDeviceVerified}, "A", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.CanAccessHostel(tt.hostel); got != tt.want {
				t.Errorf("CanAccessHostel(%q) = %v, want %v", tt.hostel, got, tt.want)
			}
		})
	}
}

func TestLockedError(t *testing.T) {
	err := &LockedError{Remaining: 14*time.Minute + 500*time.Millisecond}

	if !errors.Is(err, ErrLocked) {
		t.Error("errors.Is(LockedError, ErrLocked) = false, want true")
	}
	if apperr.KindOf(err) != apperr.Locked {
		t.Errorf("KindOf() = %v, want Locked", apperr.KindOf(err))
	}
	if got := err.RetryAfterSeconds(); got != 841 {
		t.Errorf("RetryAfterSeconds() = %d, want 841", got)
	}
	if got := (&LockedError{}).RetryAfterSeconds(); got != 1 {
		t.Errorf("RetryAfterSeconds() for zero = %d, want 1", got)
	}
}
