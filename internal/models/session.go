// Package models provides data model definitions for the DrawGuess sync backend.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// GameSession represents one play-through of the drawing game:
// the prompt the player was given, the drawing they produced, and
// what the vision model guessed.
//
// Timestamps are Unix milliseconds. EndedAt is zero while a round is
// still in progress.
type GameSession struct {
	ID         UUID   `db:"id" json:"id"`
	UserID     string `db:"user_id" json:"user_id,omitempty"`
	Prompt     string `db:"prompt" json:"prompt"`
	Category   string `db:"category" json:"category,omitempty"`
	DrawingURL string `db:"drawing_url" json:"drawing_url,omitempty"`
	AIGuess    string `db:"ai_guess" json:"ai_guess,omitempty"`
	Confidence int    `db:"confidence" json:"confidence"`
	Correct    bool   `db:"correct" json:"correct"`
	StartedAt  int64  `db:"started_at" json:"started_at"`
	EndedAt    int64  `db:"ended_at" json:"ended_at,omitempty"`
	Duration   int64  `db:"duration" json:"duration"` // seconds, derived from ended - started
	CreatedAt  int64  `db:"created_at" json:"created_at"`
	UpdatedAt  int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for GameSession.
func (GameSession) TableName() string {
	return "game_sessions"
}

// EffectiveTimestamp returns the timestamp used for conflict and merge
// comparisons: the end time if the round finished, otherwise the start time.
func (s *GameSession) EffectiveTimestamp() int64 {
	if s.EndedAt > 0 {
		return s.EndedAt
	}
	return s.StartedAt
}

// Finish marks the session complete at the given time and derives the duration.
func (s *GameSession) Finish(endedAt int64) {
	s.EndedAt = endedAt
	s.Duration = (endedAt - s.StartedAt) / 1000
}

// Touch updates the UpdatedAt timestamp.
func (s *GameSession) Touch() {
	s.UpdatedAt = time.Now().UnixMilli()
}

// Clone returns a deep copy of the session.
func (s *GameSession) Clone() *GameSession {
	c := *s
	return &c
}

// Validate checks the session invariants.
func (s *GameSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is empty")
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("confidence %d out of range [0,100]", s.Confidence)
	}
	if s.EndedAt > 0 && s.EndedAt < s.StartedAt {
		return fmt.Errorf("ended_at %d precedes started_at %d", s.EndedAt, s.StartedAt)
	}
	if s.Duration < 0 {
		return fmt.Errorf("duration %d is negative", s.Duration)
	}
	return nil
}

// StartedAtTime returns StartedAt as time.Time.
func (s *GameSession) StartedAtTime() time.Time {
	return time.UnixMilli(s.StartedAt)
}

// EndedAtTime returns EndedAt as time.Time, or the zero time for an
// unfinished round.
func (s *GameSession) EndedAtTime() time.Time {
	if s.EndedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.EndedAt)
}
