/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package timer holds the shared phase countdown. The server keeps the
// authoritative start time; clients receive the remaining seconds and count
// down locally.
package timer

import (
	"time"
)

// DefaultSeconds is the countdown length used when a start request names
// none.
const DefaultSeconds = 30 * 60

type Timer struct {
	DurationSeconds  int        `json:"duration_seconds" yaml:"duration_seconds"`
	RemainingSeconds int        `json:"remaining_seconds" yaml:"remaining_seconds"`
	Running          bool       `json:"running" yaml:"running"`
	StartedAt        *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
}

// New returns a stopped timer of the given length.
func New(seconds int) Timer {
	if seconds <= 0 {
		seconds = DefaultSeconds
	}
	return Timer{DurationSeconds: seconds, RemainingSeconds: seconds}
}

// Remaining reports the seconds left at now, never below zero.
func (t Timer) Remaining(now time.Time) int {
	if !t.Running || t.StartedAt == nil {
		return max(t.RemainingSeconds, 0)
	}
	elapsed := int(now.Sub(*t.StartedAt) / time.Second)
	return max(t.RemainingSeconds-elapsed, 0)
}

func (t Timer) Expired(now time.Time) bool {
	return t.Remaining(now) == 0
}

// Start runs the timer from its remaining time. A positive seconds value
// restarts it with that length instead.
func (t Timer) Start(now time.Time, seconds int) Timer {
	if seconds > 0 {
		t.DurationSeconds = seconds
		t.RemainingSeconds = seconds
	} else if t.Running {
		return t
	}
	if t.DurationSeconds <= 0 {
		t.DurationSeconds = DefaultSeconds
		t.RemainingSeconds = DefaultSeconds
	}
	if t.RemainingSeconds <= 0 {
		t.RemainingSeconds = t.DurationSeconds
	}

	started := now
	t.StartedAt = &started
	t.Running = true
	return t
}

// Pause freezes the remaining time.
func (t Timer) Pause(now time.Time) Timer {
	if !t.Running {
		return t
	}
	t.RemainingSeconds = t.Remaining(now)
	t.Running = false
	t.StartedAt = nil
	return t
}

// Reset stops the timer and restores its full length.
func (t Timer) Reset() Timer {
	return New(t.DurationSeconds)
}

// Snapshot returns a copy with RemainingSeconds evaluated at now, suitable
// for sending to clients.
func (t Timer) Snapshot(now time.Time) Timer {
	t.RemainingSeconds = t.Remaining(now)
	if t.Running {
		at := now
		t.StartedAt = &at
	}
	return t
}
