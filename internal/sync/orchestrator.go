package sync

import (
	"context"
	"sync"
	"time"

	"github.com/drawguess/backend/internal/errors"
	"github.com/drawguess/backend/internal/logging"
	"github.com/drawguess/backend/internal/models"
	"github.com/drawguess/backend/internal/store"
)

// LocalStore is what the orchestrator needs from the local side.
type LocalStore interface {
	store.SessionStore

	// Upsert writes the session whether or not it already exists.
	Upsert(ctx context.Context, session *models.GameSession) error

	// RecordConflict persists a settled conflict for user awareness.
	RecordConflict(ctx context.Context, rec *models.ConflictRecord) error
}

// RemoteStore is what the orchestrator needs from the remote side.
type RemoteStore interface {
	store.RemoteStore

	// Upsert writes the session whether or not it already exists.
	Upsert(ctx context.Context, session *models.GameSession) error
}

// Notifier receives sync lifecycle events. All methods must be
// non-blocking; a nil Notifier disables notifications.
type Notifier interface {
	SyncStarted()
	SyncCompleted(pushed, pulled, conflicts int, took time.Duration)
	SyncFailed(code string, err error)
	ConflictDetected(conflict *models.SyncConflict)
}

// Orchestrator reconciles the local and remote session stores. It is
// constructed explicitly and injected into whatever needs it; there is
// no package-level instance.
type Orchestrator struct {
	local    LocalStore
	remote   RemoteStore
	opts     models.SyncOptions
	interval time.Duration
	notifier Notifier

	mu        sync.Mutex
	active    bool
	status    models.SyncStatus
	pending   map[string]models.PendingKind
	conflicts map[models.UUID]*models.SyncConflict
	stopCh    chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewOrchestrator creates an orchestrator in the Stopped state.
// Invalid options are replaced field-wise by defaults at Start.
func NewOrchestrator(local LocalStore, remote RemoteStore, opts models.SyncOptions, interval time.Duration) *Orchestrator {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Orchestrator{
		local:     local,
		remote:    remote,
		opts:      opts,
		interval:  interval,
		pending:   make(map[string]models.PendingKind),
		conflicts: make(map[models.UUID]*models.SyncConflict),
	}
}

// SetNotifier attaches a lifecycle event receiver. Must be called
// before Start.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.notifier = n
}

// Start transitions Stopped -> Active: one immediate full sync, then a
// recurring incremental sync plus realtime change ingestion. Calling
// Start while Active is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return nil
	}
	if err := o.opts.Validate(); err != nil {
		o.mu.Unlock()
		return errors.Wrap(errors.ErrValidation, "invalid sync options", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.active = true
	o.cancel = cancel
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	// First pass runs before the timer so a fresh start converges
	// without waiting out the interval.
	o.runCycle(runCtx, o.fullSync)

	o.wg.Add(2)
	go o.incrementalLoop(runCtx)
	go o.realtimeLoop(runCtx)

	logging.Info("Sync orchestrator started", map[string]interface{}{
		"interval":   o.interval.String(),
		"resolution": o.opts.Resolution,
	})
	return nil
}

// Stop transitions Active -> Stopped. The recurring timer is cancelled
// and the realtime subscription closed; in-flight store calls are not
// aborted and may complete afterwards. Calling Stop while Stopped is a
// no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.active = false
	cancel := o.cancel
	close(o.stopCh)
	o.mu.Unlock()

	cancel()
	o.wg.Wait()

	o.mu.Lock()
	o.status.Syncing = false
	o.mu.Unlock()

	logging.Info("Sync orchestrator stopped", nil)
}

// Active reports whether the orchestrator is running.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Status returns a snapshot of the sync status.
func (o *Orchestrator) Status() models.SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := o.status
	snapshot.Pending = len(o.pending)
	snapshot.Conflicts = make([]*models.SyncConflict, 0, len(o.conflicts))
	for _, c := range o.conflicts {
		snapshot.Conflicts = append(snapshot.Conflicts, c)
	}
	return snapshot
}

// TriggerSync runs a full sync immediately. Requires the Active state
// unless opts.Force is set.
func (o *Orchestrator) TriggerSync(ctx context.Context, opts *models.SyncOptions) error {
	if opts != nil {
		if err := opts.Validate(); err != nil {
			return errors.Wrap(errors.ErrValidation, "invalid sync options", err)
		}
	}

	o.mu.Lock()
	active := o.active
	force := opts != nil && opts.Force
	if opts != nil {
		o.opts.Resolution = opts.Resolution
		o.opts.BatchSize = opts.BatchSize
	}
	o.mu.Unlock()

	if !active && !force {
		return errors.New(errors.ErrSyncInactive, "sync is not active")
	}

	return o.runCycle(ctx, o.fullSync)
}

// AddPendingOperation records a locally mutated session for the next
// incremental cycle.
func (o *Orchestrator) AddPendingOperation(id string, kind models.PendingKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[id] = kind
}

// ResolveConflict settles a previously deferred conflict with the
// caller's decision and writes the winner to both stores. This is the
// follow-up path for the "ask" policy.
func (o *Orchestrator) ResolveConflict(ctx context.Context, conflict *models.SyncConflict, resolution models.Resolution) error {
	o.mu.Lock()
	active := o.active
	o.mu.Unlock()
	if !active {
		return errors.New(errors.ErrSyncInactive, "sync is not active")
	}
	if resolution == models.ResolutionAsk {
		return errors.New(errors.ErrSyncResolution, "ask cannot settle a conflict")
	}

	winner, err := Resolve(conflict, resolution)
	if err != nil {
		return err
	}

	if err := o.applyWinner(ctx, conflict, winner, resolution); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.conflicts, conflict.SessionID)
	o.mu.Unlock()
	return nil
}

// runCycle executes one sync pass and records the outcome in status.
// Cycle errors never propagate as crashes; the orchestrator stays
// Active so later cycles can retry.
func (o *Orchestrator) runCycle(ctx context.Context, pass func(context.Context) (pushed, pulled, deferred int, err error)) error {
	o.mu.Lock()
	if o.status.Syncing {
		o.mu.Unlock()
		return nil
	}
	o.status.Syncing = true
	o.status.LastError = ""
	o.mu.Unlock()

	if o.notifier != nil {
		o.notifier.SyncStarted()
	}
	start := time.Now()

	pushed, pulled, deferred, err := pass(ctx)

	o.mu.Lock()
	o.status.Syncing = false
	if err != nil {
		o.status.LastError = err.Error()
	} else {
		o.status.LastSyncAt = time.Now().UnixMilli()
	}
	o.mu.Unlock()

	if err != nil {
		logging.ErrorWithCode("Sync cycle failed", string(errors.CodeOf(err)), err, nil)
		if o.notifier != nil {
			o.notifier.SyncFailed(string(errors.CodeOf(err)), err)
		}
		return err
	}

	logging.Info("Sync cycle completed", map[string]interface{}{
		"pushed":    pushed,
		"pulled":    pulled,
		"conflicts": deferred,
		"took_ms":   time.Since(start).Milliseconds(),
	})
	if o.notifier != nil {
		o.notifier.SyncCompleted(pushed, pulled, deferred, time.Since(start))
	}
	return nil
}

// fullSync reconciles the entire local and remote session sets.
func (o *Orchestrator) fullSync(ctx context.Context) (int, int, int, error) {
	o.mu.Lock()
	opts := o.opts
	o.mu.Unlock()

	locals, err := o.local.List(ctx)
	if err != nil {
		return 0, 0, 0, errors.Wrap(errors.ErrSyncFailed, "listing local sessions", err)
	}
	remotes, err := o.remote.List(ctx)
	if err != nil {
		return 0, 0, 0, errors.Wrap(errors.ErrSyncFailed, "listing remote sessions", err)
	}

	remoteByID := make(map[models.UUID]*models.GameSession, len(remotes))
	for _, r := range remotes {
		remoteByID[r.ID] = r
	}
	localByID := make(map[models.UUID]*models.GameSession, len(locals))
	for _, l := range locals {
		localByID[l.ID] = l
	}

	var pushed, pulled, deferred int

	// Matching ids: detect and settle divergence.
	for _, l := range locals {
		r, ok := remoteByID[l.ID]
		if !ok {
			continue
		}
		outcome, err := o.reconcilePair(ctx, l, r, opts.Resolution)
		if err != nil {
			return pushed, pulled, deferred, err
		}
		if outcome == pairDeferred {
			deferred++
		}
	}

	// Local-only sessions go up.
	for _, l := range locals {
		if _, ok := remoteByID[l.ID]; ok {
			continue
		}
		if pushed >= opts.BatchSize {
			break
		}
		if err := o.remote.Upsert(ctx, l); err != nil {
			return pushed, pulled, deferred, errors.Wrap(errors.ErrSyncFailed, "pushing session", err)
		}
		pushed++
	}

	// Remote-only sessions come down.
	for _, r := range remotes {
		if _, ok := localByID[r.ID]; ok {
			continue
		}
		if pulled >= opts.BatchSize {
			break
		}
		if err := o.local.Upsert(ctx, r); err != nil {
			return pushed, pulled, deferred, errors.Wrap(errors.ErrSyncFailed, "pulling session", err)
		}
		pulled++
	}

	o.mu.Lock()
	o.pending = make(map[string]models.PendingKind)
	o.mu.Unlock()

	return pushed, pulled, deferred, nil
}

// incrementalSync processes only the sessions mutated locally since the
// last cycle. An empty pending set is a no-op.
func (o *Orchestrator) incrementalSync(ctx context.Context) (int, int, int, error) {
	o.mu.Lock()
	opts := o.opts
	batch := make(map[string]models.PendingKind, len(o.pending))
	for id, kind := range o.pending {
		batch[id] = kind
	}
	o.mu.Unlock()

	if len(batch) == 0 {
		return 0, 0, 0, nil
	}

	var pushed, deferred int

	for id, kind := range batch {
		if kind == models.PendingDelete {
			if err := o.remote.Delete(ctx, id); err != nil && !errors.Is(err, errors.ErrNotFound) {
				return pushed, 0, deferred, errors.Wrap(errors.ErrSyncFailed, "deleting remote session", err)
			}
			pushed++
			continue
		}

		l, err := o.local.Get(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			// Mutated then deleted before this cycle ran.
			continue
		}
		if err != nil {
			return pushed, 0, deferred, errors.Wrap(errors.ErrSyncFailed, "loading pending session", err)
		}

		r, err := o.remote.Get(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			if err := o.remote.Upsert(ctx, l); err != nil {
				return pushed, 0, deferred, errors.Wrap(errors.ErrSyncFailed, "pushing pending session", err)
			}
			pushed++
			continue
		}
		if err != nil {
			return pushed, 0, deferred, errors.Wrap(errors.ErrSyncFailed, "loading remote session", err)
		}

		outcome, err := o.reconcilePair(ctx, l, r, opts.Resolution)
		if err != nil {
			return pushed, 0, deferred, err
		}
		switch outcome {
		case pairInSync:
			// No conflict; the local copy still carries the pending
			// mutation, so push it.
			if err := o.remote.Upsert(ctx, l); err != nil {
				return pushed, 0, deferred, errors.Wrap(errors.ErrSyncFailed, "pushing pending session", err)
			}
			pushed++
		case pairResolved:
			pushed++
		case pairDeferred:
			deferred++
		}
	}

	o.mu.Lock()
	for id := range batch {
		delete(o.pending, id)
	}
	o.mu.Unlock()

	return pushed, 0, deferred, nil
}

// pairOutcome says what reconcilePair did with a local/remote pair.
type pairOutcome int

const (
	pairInSync pairOutcome = iota
	pairResolved
	pairDeferred
)

// reconcilePair runs the detect/resolve path for one local/remote pair.
func (o *Orchestrator) reconcilePair(ctx context.Context, local, remote *models.GameSession, resolution models.Resolution) (pairOutcome, error) {
	conflict := DetectConflict(local, remote)
	if conflict == nil {
		return pairInSync, nil
	}

	if resolution == models.ResolutionAsk {
		o.mu.Lock()
		o.conflicts[conflict.SessionID] = conflict
		o.mu.Unlock()
		if o.notifier != nil {
			o.notifier.ConflictDetected(conflict)
		}
		return pairDeferred, nil
	}

	winner, err := Resolve(conflict, resolution)
	if err != nil {
		return pairInSync, err
	}
	if err := o.applyWinner(ctx, conflict, winner, resolution); err != nil {
		return pairInSync, err
	}
	return pairResolved, nil
}

// applyWinner writes the reconciled session to both stores and logs the
// settled conflict locally.
func (o *Orchestrator) applyWinner(ctx context.Context, conflict *models.SyncConflict, winner *models.GameSession, resolution models.Resolution) error {
	winner.Touch()

	if err := o.local.Upsert(ctx, winner); err != nil {
		return errors.Wrap(errors.ErrSyncFailed, "applying resolution locally", err)
	}
	if err := o.remote.Upsert(ctx, winner); err != nil {
		return errors.Wrap(errors.ErrSyncFailed, "applying resolution remotely", err)
	}

	rec := &models.ConflictRecord{
		SessionID:       conflict.SessionID,
		Kind:            string(conflict.Kind),
		LocalTimestamp:  conflict.Local.EffectiveTimestamp(),
		RemoteTimestamp: conflict.Remote.EffectiveTimestamp(),
		Resolution:      string(resolution),
		DetectedAt:      conflict.DetectedAt,
	}
	if err := o.local.RecordConflict(ctx, rec); err != nil {
		// The resolution itself succeeded; a missing log row is not
		// worth failing the cycle over.
		logging.Warn("Failed to record conflict", map[string]interface{}{
			"session_id": conflict.SessionID,
			"error":      err.Error(),
		})
	}
	return nil
}

// incrementalLoop drives the recurring incremental sync.
func (o *Orchestrator) incrementalLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.runCycle(ctx, o.incrementalSync)
		}
	}
}

// realtimeLoop consumes the remote change feed, resubscribing with a
// short delay when the connection drops.
func (o *Orchestrator) realtimeLoop(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		default:
		}

		events, err := o.remote.Changes(ctx)
		if err != nil {
			logging.Warn("Realtime subscription failed, retrying", map[string]interface{}{
				"error": err.Error(),
			})
			select {
			case <-ctx.Done():
				return
			case <-o.stopCh:
				return
			case <-time.After(10 * time.Second):
				continue
			}
		}

		for event := range events {
			if err := o.ingestChange(ctx, event); err != nil {
				o.mu.Lock()
				o.status.LastError = err.Error()
				o.mu.Unlock()
				logging.ErrorWithCode("Realtime ingestion failed", string(errors.CodeOf(err)), err, nil)
			}
		}
	}
}

// ingestChange applies one realtime notification through the same
// detect/resolve path as a sync cycle, immediately.
func (o *Orchestrator) ingestChange(ctx context.Context, event store.ChangeEvent) error {
	o.mu.Lock()
	resolution := o.opts.Resolution
	o.mu.Unlock()

	switch event.Type {
	case store.ChangeDelete:
		if event.Old == nil || event.Old.ID == "" {
			return nil
		}
		return o.local.Delete(ctx, event.Old.ID.String())

	case store.ChangeInsert, store.ChangeUpdate:
		if event.New == nil {
			return nil
		}
		local, err := o.local.Get(ctx, event.New.ID.String())
		if errors.Is(err, errors.ErrNotFound) {
			return o.local.Upsert(ctx, event.New)
		}
		if err != nil {
			return err
		}
		_, err = o.reconcilePair(ctx, local, event.New, resolution)
		return err
	}

	return nil
}
