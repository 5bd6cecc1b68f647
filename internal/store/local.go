package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/drawguess/backend/internal/errors"
	"github.com/drawguess/backend/internal/models"
	"github.com/drawguess/backend/internal/uuid"
)

// Local is the SQLite-backed session store.
// Frequently used statements are prepared on first use and cached.
type Local struct {
	db *sql.DB

	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewLocal creates a Local store over an open database.
func NewLocal(db *DB) *Local {
	return &Local{db: db.DB}
}

// prepare gets or creates a cached prepared statement.
func (l *Local) prepare(query string) (*sql.Stmt, error) {
	if stmt, ok := l.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}
	stmt, err := l.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	actual, loaded := l.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements.
func (l *Local) Close() error {
	var firstErr error
	l.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

const sessionColumns = `id, user_id, prompt, category, drawing_url, ai_guess,
	confidence, correct, started_at, ended_at, duration, created_at, updated_at`

// List returns all sessions ordered by most recent update.
func (l *Local) List(ctx context.Context) ([]*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions ORDER BY updated_at DESC`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list sessions", err)
	}
	defer rows.Close()

	var sessions []*models.GameSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "failed to scan session", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Get returns the session with the given id.
func (l *Local) Get(ctx context.Context, id string) (*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE id = ?`
	stmt, err := l.prepare(query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to prepare get", err)
	}

	s, err := scanSession(stmt.QueryRowContext(ctx, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf(errors.ErrNotFound, "session %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to get session", err)
	}
	return s, nil
}

// Create inserts a new session, assigning an id if the caller left it empty.
func (l *Local) Create(ctx context.Context, session *models.GameSession) error {
	now := time.Now().UnixMilli()
	if session.ID == "" {
		session.ID = models.UUID(uuid.New())
	}
	if session.CreatedAt == 0 {
		session.CreatedAt = now
	}
	if session.UpdatedAt == 0 {
		session.UpdatedAt = now
	}
	if err := session.Validate(); err != nil {
		return errors.Wrap(errors.ErrValidation, "invalid session", err)
	}

	query := `INSERT INTO game_sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := l.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.Prompt, session.Category,
		session.DrawingURL, session.AIGuess, session.Confidence, session.Correct,
		session.StartedAt, session.EndedAt, session.Duration,
		session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to create session", err)
	}
	return nil
}

// Update replaces the stored session with the same id.
func (l *Local) Update(ctx context.Context, session *models.GameSession) error {
	if err := session.Validate(); err != nil {
		return errors.Wrap(errors.ErrValidation, "invalid session", err)
	}

	query := `UPDATE game_sessions SET
		user_id = ?, prompt = ?, category = ?, drawing_url = ?, ai_guess = ?,
		confidence = ?, correct = ?, started_at = ?, ended_at = ?, duration = ?,
		updated_at = ?
	WHERE id = ?`
	res, err := l.db.ExecContext(ctx, query,
		session.UserID, session.Prompt, session.Category, session.DrawingURL,
		session.AIGuess, session.Confidence, session.Correct,
		session.StartedAt, session.EndedAt, session.Duration,
		session.UpdatedAt, session.ID)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to update session", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to read update result", err)
	}
	if affected == 0 {
		return errors.Newf(errors.ErrNotFound, "session %s not found", session.ID)
	}
	return nil
}

// Delete removes the session with the given id.
func (l *Local) Delete(ctx context.Context, id string) error {
	_, err := l.db.ExecContext(ctx, "DELETE FROM game_sessions WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to delete session", err)
	}
	return nil
}

// Upsert creates the session if missing, otherwise updates it in place.
// Sync pulls use this to apply remote records without a read-first round trip.
func (l *Local) Upsert(ctx context.Context, session *models.GameSession) error {
	err := l.Update(ctx, session)
	if errors.Is(err, errors.ErrNotFound) {
		return l.Create(ctx, session)
	}
	return err
}

// RecordConflict appends a row to the conflict log.
func (l *Local) RecordConflict(ctx context.Context, rec *models.ConflictRecord) error {
	if rec.ID == "" {
		rec.ID = models.UUID(uuid.New())
	}
	if rec.DetectedAt == 0 {
		rec.DetectedAt = time.Now().UnixMilli()
	}
	query := `INSERT INTO conflict_log
		(id, session_id, kind, local_timestamp, remote_timestamp, resolution, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := l.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.Kind, rec.LocalTimestamp,
		rec.RemoteTimestamp, rec.Resolution, rec.DetectedAt)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to record conflict", err)
	}
	return nil
}

// ListConflicts returns the most recent conflict log rows, newest first.
func (l *Local) ListConflicts(ctx context.Context, limit int) ([]*models.ConflictRecord, error) {
	query := `SELECT id, session_id, kind, local_timestamp, remote_timestamp, resolution, detected_at
	FROM conflict_log ORDER BY detected_at DESC LIMIT ?`
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list conflicts", err)
	}
	defer rows.Close()

	var recs []*models.ConflictRecord
	for rows.Next() {
		var r models.ConflictRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Kind, &r.LocalTimestamp,
			&r.RemoteTimestamp, &r.Resolution, &r.DetectedAt); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "failed to scan conflict", err)
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.GameSession, error) {
	var s models.GameSession
	err := row.Scan(
		&s.ID, &s.UserID, &s.Prompt, &s.Category, &s.DrawingURL, &s.AIGuess,
		&s.Confidence, &s.Correct, &s.StartedAt, &s.EndedAt, &s.Duration,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
