// Package models provides data model definitions for the DrawGuess sync backend.
package models

import "time"

// ConflictKind classifies how a local and a remote session diverge.
type ConflictKind string

const (
	// ConflictKindTimestamp means the effective timestamps differ beyond tolerance.
	ConflictKindTimestamp ConflictKind = "timestamp"
	// ConflictKindContent means guess, confidence, correctness, or drawing differ.
	ConflictKindContent ConflictKind = "content"
	// ConflictKindBoth means both of the above hold.
	ConflictKindBoth ConflictKind = "both"
)

// Resolution selects how a conflict is settled.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionRemote Resolution = "remote"
	ResolutionMerge  Resolution = "merge"
	// ResolutionAsk defers the decision: the conflict stays listed in
	// SyncStatus until settled through ResolveConflict.
	ResolutionAsk Resolution = "ask"
)

// IsValid reports whether r is a known resolution policy.
func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionLocal, ResolutionRemote, ResolutionMerge, ResolutionAsk:
		return true
	}
	return false
}

// SyncConflict pairs the local and remote copies of one session that
// have diverged.
type SyncConflict struct {
	SessionID  UUID         `json:"session_id"`
	Local      *GameSession `json:"local"`
	Remote     *GameSession `json:"remote"`
	Kind       ConflictKind `json:"kind"`
	DetectedAt int64        `json:"detected_at"`
}

// ConflictRecord is the persisted log row of a settled conflict,
// kept for user awareness.
type ConflictRecord struct {
	ID              UUID   `db:"id" json:"id"`
	SessionID       UUID   `db:"session_id" json:"session_id"`
	Kind            string `db:"kind" json:"kind"`
	LocalTimestamp  int64  `db:"local_timestamp" json:"local_timestamp"`
	RemoteTimestamp int64  `db:"remote_timestamp" json:"remote_timestamp"`
	Resolution      string `db:"resolution" json:"resolution"`
	DetectedAt      int64  `db:"detected_at" json:"detected_at"`
}

// TableName returns the table name for ConflictRecord.
func (ConflictRecord) TableName() string {
	return "conflict_log"
}

// DetectedAtTime returns DetectedAt as time.Time.
func (c *ConflictRecord) DetectedAtTime() time.Time {
	return time.UnixMilli(c.DetectedAt)
}
