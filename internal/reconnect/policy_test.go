package reconnect

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

// failAttempts records n failed attempts, each one minute apart, returning
// the resulting state and the time of the last attempt.
func failAttempts(s State, n int) (State, time.Time) {
	now := testNow
	for i := 0; i < n; i++ {
		s = RecordAttempt(s, now)
		now = now.Add(time.Minute)
	}
	return s, s.LastAttemptTime
}

// =============================================================================
// Free Attempt Tests
// =============================================================================

func TestFirstAttemptsAlwaysPermitted(t *testing.T) {
	s := DefaultState()
	now := testNow

	for attempt := 1; attempt <= DefaultMaxAttempts; attempt++ {
		if !ShouldAttempt(s, now) {
			t.Fatalf("attempt %d not permitted, want free", attempt)
		}
		s = RecordAttempt(s, now)
	}
	if s.AttemptCount != DefaultMaxAttempts {
		t.Errorf("AttemptCount = %d, want %d", s.AttemptCount, DefaultMaxAttempts)
	}
}

func TestDisabledPolicyAlwaysPermits(t *testing.T) {
	s := DefaultState()
	s.Enabled = false
	s, _ = failAttempts(s, 50)

	if !ShouldAttempt(s, s.LastAttemptTime) {
		t.Error("disabled policy refused an attempt")
	}
}

// =============================================================================
// Backoff Schedule Tests
// =============================================================================

func TestBackoffSchedule(t *testing.T) {
	// With the defaults: attempt 4 needs 1h since attempt 3, attempt 5
	// needs 2h, attempt 6 needs 4h, attempt 7 onward is capped at 6h.
	tests := []struct {
		failures int
		wantWait time.Duration
	}{
		{3, 1 * time.Hour},
		{4, 2 * time.Hour},
		{5, 4 * time.Hour},
		{6, 6 * time.Hour},
		{10, 6 * time.Hour},
	}

	for _, tc := range tests {
		s, last := failAttempts(DefaultState(), tc.failures)

		if ShouldAttempt(s, last.Add(tc.wantWait-time.Second)) {
			t.Errorf("after %d failures: permitted %v early", tc.failures, time.Second)
		}
		if !ShouldAttempt(s, last.Add(tc.wantWait)) {
			t.Errorf("after %d failures: refused at the %v boundary", tc.failures, tc.wantWait)
		}
	}
}

func TestNextAttemptAt(t *testing.T) {
	s := DefaultState()
	if !NextAttemptAt(s).IsZero() {
		t.Error("NextAttemptAt() on a fresh state, want zero (immediately)")
	}

	s, last := failAttempts(s, 4)
	if got, want := NextAttemptAt(s), last.Add(2*time.Hour); !got.Equal(want) {
		t.Errorf("NextAttemptAt() = %v, want %v", got, want)
	}
}

// =============================================================================
// State Transition Tests
// =============================================================================

func TestRecordAttemptStampsCountAndTimeTogether(t *testing.T) {
	s := RecordAttempt(DefaultState(), testNow)

	if s.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", s.AttemptCount)
	}
	if !s.LastAttemptTime.Equal(testNow) {
		t.Errorf("LastAttemptTime = %v, want %v", s.LastAttemptTime, testNow)
	}
}

func TestRecordSuccessResetsStreak(t *testing.T) {
	s, last := failAttempts(DefaultState(), 7)

	s = RecordSuccess(s)
	if s.AttemptCount != 0 {
		t.Errorf("AttemptCount after success = %d, want 0", s.AttemptCount)
	}
	if !s.LastAttemptTime.Equal(last) {
		t.Error("RecordSuccess cleared LastAttemptTime, want it preserved")
	}

	// The streak is over: the next attempt is free again.
	if !ShouldAttempt(s, last) {
		t.Error("attempt refused immediately after a success")
	}
}
