package reconnect

import (
	"math"
	"time"
)

// Default policy parameters.
const (
	// DefaultMaxAttempts is how many consecutive attempts run without any
	// backoff delay.
	DefaultMaxAttempts = 3

	// DefaultBackoffFactor doubles the wait for each failure past the
	// free attempts.
	DefaultBackoffFactor = 2.0

	// DefaultMinInterval is the first backoff delay, in seconds.
	DefaultMinInterval = 3600

	// DefaultMaxInterval caps the backoff delay, in seconds.
	DefaultMaxInterval = 21600
)

// State is the reconnection ledger carried across power cycles.
//
// The static parameters come from configuration; AttemptCount and
// LastAttemptTime are rewritten by RecordAttempt/RecordSuccess and must be
// persisted together — they only make sense as a pair.
type State struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	MaxAttempts   int     `yaml:"max_attempts" json:"max_attempts"`
	BackoffFactor float64 `yaml:"backoff_factor" json:"backoff_factor"`

	// MinInterval and MaxInterval are in seconds, matching the wire
	// format of the node's configuration document.
	MinInterval int `yaml:"min_interval" json:"min_interval"`
	MaxInterval int `yaml:"max_interval" json:"max_interval"`

	AttemptCount    int       `yaml:"attempt_count" json:"attempt_count"`
	LastAttemptTime time.Time `yaml:"last_attempt_time" json:"last_attempt_time"`
}

// DefaultState returns an enabled policy with the stock schedule.
func DefaultState() State {
	return State{
		Enabled:       true,
		MaxAttempts:   DefaultMaxAttempts,
		BackoffFactor: DefaultBackoffFactor,
		MinInterval:   DefaultMinInterval,
		MaxInterval:   DefaultMaxInterval,
	}
}

// ShouldAttempt reports whether a connection attempt is permitted at the
// given moment.
//
// A disabled policy always permits. The first MaxAttempts failures in a row
// are free; after that the required gap since the last attempt grows
// exponentially, capped at MaxInterval.
func ShouldAttempt(s State, now time.Time) bool {
	if !s.Enabled {
		return true
	}
	if s.AttemptCount < s.MaxAttempts {
		return true
	}
	return now.Sub(s.LastAttemptTime) >= wait(s)
}

// RecordAttempt folds an attempt into the state before its outcome is
// known. The count and timestamp move together, so a node that loses power
// mid-connect still charges itself for the try on the next wake.
func RecordAttempt(s State, now time.Time) State {
	s.AttemptCount++
	s.LastAttemptTime = now
	return s
}

// RecordSuccess resets the failure streak after a completed handshake.
// The last attempt timestamp is kept for diagnostics.
func RecordSuccess(s State) State {
	s.AttemptCount = 0
	return s
}

// NextAttemptAt returns the earliest moment ShouldAttempt will permit a
// try. For a state still inside its free attempts this is the zero time,
// meaning "immediately".
func NextAttemptAt(s State) time.Time {
	if !s.Enabled || s.AttemptCount < s.MaxAttempts {
		return time.Time{}
	}
	return s.LastAttemptTime.Add(wait(s))
}

// wait computes the required gap after the current failure streak:
// min_interval * backoff_factor^(attempt_count - max_attempts), capped at
// max_interval.
func wait(s State) time.Duration {
	exp := float64(s.AttemptCount - s.MaxAttempts)
	secs := float64(s.MinInterval) * math.Pow(s.BackoffFactor, exp)
	if ceiling := float64(s.MaxInterval); secs > ceiling {
		secs = ceiling
	}
	return time.Duration(secs * float64(time.Second))
}
