package models

import "time"

// CooldownStrategy selects how the cooldown after a failed call is computed.
type CooldownStrategy string

const (
	CooldownFixed       CooldownStrategy = "fixed"
	CooldownExponential CooldownStrategy = "exponential"
	CooldownSmart       CooldownStrategy = "smart"
)

// Valid reports whether s is a known strategy.
func (s CooldownStrategy) Valid() bool {
	switch s {
	case CooldownFixed, CooldownExponential, CooldownSmart:
		return true
	}
	return false
}

// LastError describes the most recent failed remote call.
type LastError struct {
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
}

// LimitState is the persisted rate-limit record shared by all callers.
type LimitState struct {
	RemainingRequests    int              `json:"remaining_requests"`
	ResetTime            time.Time        `json:"reset_time"`
	LastError            *LastError       `json:"last_error,omitempty"`
	CooldownStrategy     CooldownStrategy `json:"cooldown_strategy"`
	CooldownMultiplier   float64          `json:"cooldown_multiplier"`
	ConsecutiveErrors    int              `json:"consecutive_errors"`
	ConsecutiveSuccesses int              `json:"consecutive_successes"`
}

// LimitStatus is a point-in-time view of the tracker for display.
type LimitStatus struct {
	State               LimitState `json:"state"`
	CanProceed          bool       `json:"can_proceed"`
	CooldownMs          int64      `json:"cooldown_ms"`
	RemainingCooldownMs int64      `json:"remaining_cooldown_ms"`
	RemainingDisplay    string     `json:"remaining_display"`
}
