// Package store provides persistence contracts and the local SQLite store
// for game sessions.
package store

import (
	"context"

	"github.com/drawguess/backend/internal/models"
)

// SessionStore is the CRUD contract shared by the local and remote stores.
type SessionStore interface {
	// List returns all sessions, newest first.
	List(ctx context.Context) ([]*models.GameSession, error)

	// Get returns the session with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.GameSession, error)

	// Create inserts a new session.
	Create(ctx context.Context, session *models.GameSession) error

	// Update replaces the stored session with the same id.
	Update(ctx context.Context, session *models.GameSession) error

	// Delete removes the session with the given id.
	Delete(ctx context.Context, id string) error
}

// ChangeType tags a remote change-feed event.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is one notification from the remote change feed.
// Old carries only the id on deletes.
type ChangeEvent struct {
	Type ChangeType
	New  *models.GameSession
	Old  *models.GameSession
}

// RemoteStore extends the CRUD contract with a realtime change feed.
type RemoteStore interface {
	SessionStore

	// Changes opens a subscription to remote session changes. The
	// returned channel is closed when ctx is cancelled or the
	// subscription fails; Changes must be called again to resubscribe.
	Changes(ctx context.Context) (<-chan ChangeEvent, error)
}
