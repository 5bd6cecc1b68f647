// Package models provides unit tests for the data model invariants.
package models

import (
	"testing"
	"time"
)

// TestSessionValidate checks the GameSession invariants.
func TestSessionValidate(t *testing.T) {
	now := time.Now().UnixMilli()

	session := &GameSession{
		ID:         "s1",
		Prompt:     "cat",
		Confidence: 80,
		StartedAt:  now,
	}
	if err := session.Validate(); err != nil {
		t.Fatalf("valid session rejected: %v", err)
	}

	session.Confidence = 101
	if err := session.Validate(); err == nil {
		t.Error("expected confidence > 100 to be rejected")
	}
	session.Confidence = -1
	if err := session.Validate(); err == nil {
		t.Error("expected negative confidence to be rejected")
	}

	session.Confidence = 50
	session.EndedAt = now - 1000
	if err := session.Validate(); err == nil {
		t.Error("expected ended_at before started_at to be rejected")
	}

	session.EndedAt = 0
	session.Duration = -1
	if err := session.Validate(); err == nil {
		t.Error("expected negative duration to be rejected")
	}
}

// TestEffectiveTimestamp checks the end-else-start rule.
func TestEffectiveTimestamp(t *testing.T) {
	session := &GameSession{ID: "s1", StartedAt: 1000}
	if got := session.EffectiveTimestamp(); got != 1000 {
		t.Errorf("expected start time 1000 for unfinished round, got %d", got)
	}

	session.EndedAt = 5000
	if got := session.EffectiveTimestamp(); got != 5000 {
		t.Errorf("expected end time 5000 for finished round, got %d", got)
	}
}

// TestFinishDerivesDuration checks that Finish computes whole seconds.
func TestFinishDerivesDuration(t *testing.T) {
	session := &GameSession{ID: "s1", StartedAt: 10_000}
	session.Finish(25_500)

	if session.EndedAt != 25_500 {
		t.Errorf("expected ended_at 25500, got %d", session.EndedAt)
	}
	if session.Duration != 15 {
		t.Errorf("expected duration 15s, got %d", session.Duration)
	}
	if err := session.Validate(); err != nil {
		t.Errorf("finished session failed validation: %v", err)
	}
}

// TestCloneIsDeep checks that mutating a clone leaves the original alone.
func TestCloneIsDeep(t *testing.T) {
	session := &GameSession{ID: "s1", AIGuess: "cat"}
	clone := session.Clone()
	clone.AIGuess = "dog"

	if session.AIGuess != "cat" {
		t.Errorf("clone mutation leaked into original: %s", session.AIGuess)
	}
}

// TestSyncOptionsValidate checks option validation.
func TestSyncOptionsValidate(t *testing.T) {
	opts := DefaultSyncOptions()
	if err := opts.Validate(); err != nil {
		t.Fatalf("default options rejected: %v", err)
	}

	opts.Resolution = "newest-wins"
	if err := opts.Validate(); err == nil {
		t.Error("expected unknown resolution to be rejected")
	}

	opts = DefaultSyncOptions()
	opts.BatchSize = 0
	if err := opts.Validate(); err == nil {
		t.Error("expected zero batch size to be rejected")
	}
}

// TestResolutionIsValid enumerates the accepted policies.
func TestResolutionIsValid(t *testing.T) {
	for _, r := range []Resolution{ResolutionLocal, ResolutionRemote, ResolutionMerge, ResolutionAsk} {
		if !r.IsValid() {
			t.Errorf("expected %q to be valid", r)
		}
	}
	if Resolution("").IsValid() {
		t.Error("expected empty resolution to be invalid")
	}
}
