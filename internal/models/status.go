// Package models provides data model definitions for the DrawGuess sync backend.
package models

import "fmt"

// SyncStatus is the caller-visible view of the orchestrator.
type SyncStatus struct {
	Syncing    bool            `json:"syncing"`
	LastSyncAt int64           `json:"last_sync_at,omitempty"` // Unix ms, zero before first success
	Pending    int             `json:"pending"`
	Conflicts  []*SyncConflict `json:"conflicts,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
}

// SyncOptions controls a sync run.
type SyncOptions struct {
	Force      bool       `json:"force"`
	Resolution Resolution `json:"resolution"`
	BatchSize  int        `json:"batch_size"`
}

// DefaultSyncOptions returns the options used when a caller passes none.
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		Resolution: ResolutionMerge,
		BatchSize:  50,
	}
}

// Validate checks the options for malformed values.
func (o SyncOptions) Validate() error {
	if !o.Resolution.IsValid() {
		return fmt.Errorf("unknown resolution policy %q", o.Resolution)
	}
	if o.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", o.BatchSize)
	}
	return nil
}

// PendingKind tags a locally recorded mutation awaiting sync.
type PendingKind string

const (
	PendingCreate PendingKind = "create"
	PendingUpdate PendingKind = "update"
	PendingDelete PendingKind = "delete"
)
