// Package connectivity tracks whether the origin is reachable, derived from
// the outcome of upstream requests, and signals reconnects so queued report
// submissions can be replayed.
package connectivity

import (
	"time"
)

// RedisKeyState holds the JSON-encoded State shared by gateway instances.
const RedisKeyState = "civicsense:connectivity:state"

// State represents the current view of origin reachability.
type State struct {
	// Online is false after a network failure until the next success.
	Online bool `json:"online"`

	// ConsecutiveFailures counts network failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// LastChange is when Online last flipped.
	LastChange time.Time `json:"last_change"`

	// LastUpdate is when any outcome was last recorded.
	LastUpdate time.Time `json:"last_update"`
}

// NewState returns an online state; the origin is assumed reachable until
// proven otherwise.
func NewState(now time.Time) State {
	return State{
		Online:     true,
		LastChange: now,
		LastUpdate: now,
	}
}

// IsStale returns true if the state data is older than the given duration.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// OfflineFor returns how long the origin has been unreachable.
// Returns 0 while online.
func (s *State) OfflineFor() time.Duration {
	if s.Online {
		return 0
	}
	return time.Since(s.LastChange)
}

// recordSuccess applies a successful round trip and reports whether it
// ended an offline period.
func (s *State) recordSuccess(now time.Time) bool {
	s.LastUpdate = now
	s.ConsecutiveFailures = 0
	if s.Online {
		return false
	}
	s.Online = true
	s.LastChange = now
	return true
}

// recordFailure applies a network failure and reports whether it started an
// offline period.
func (s *State) recordFailure(now time.Time) bool {
	s.LastUpdate = now
	s.ConsecutiveFailures++
	if !s.Online {
		return false
	}
	s.Online = false
	s.LastChange = now
	return true
}
