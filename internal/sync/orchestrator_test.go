// Package sync provides unit tests for the sync orchestrator.
package sync

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/drawguess/backend/internal/errors"
	"github.com/drawguess/backend/internal/models"
	"github.com/drawguess/backend/internal/store"
)

// fakeStore is an in-memory SessionStore shared by both fakes.
type fakeStore struct {
	mu        stdsync.Mutex
	sessions  map[models.UUID]*models.GameSession
	listCalls int
	failList  bool
}

func newFakeStore(sessions ...*models.GameSession) *fakeStore {
	m := make(map[models.UUID]*models.GameSession)
	for _, s := range sessions {
		m[s.ID] = s.Clone()
	}
	return &fakeStore{sessions: m}
}

func (f *fakeStore) List(ctx context.Context) ([]*models.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failList {
		return nil, errors.New(errors.ErrRemoteUnavailable, "store offline")
	}
	out := make([]*models.GameSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*models.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[models.UUID(id)]
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "session %s not found", id)
	}
	return s.Clone(), nil
}

func (f *fakeStore) Create(ctx context.Context, session *models.GameSession) error {
	return f.Upsert(ctx, session)
}

func (f *fakeStore) Update(ctx context.Context, session *models.GameSession) error {
	return f.Upsert(ctx, session)
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, models.UUID(id))
	return nil
}

func (f *fakeStore) Upsert(ctx context.Context, session *models.GameSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session.Clone()
	return nil
}

func (f *fakeStore) get(id string) *models.GameSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[models.UUID(id)]
	if !ok {
		return nil
	}
	return s.Clone()
}

// fakeLocal adds the conflict log.
type fakeLocal struct {
	*fakeStore
	mu      stdsync.Mutex
	records []*models.ConflictRecord
}

func (f *fakeLocal) RecordConflict(ctx context.Context, rec *models.ConflictRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLocal) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeRemote adds the change feed.
type fakeRemote struct {
	*fakeStore
	events chan store.ChangeEvent
}

func newFakeRemote(sessions ...*models.GameSession) *fakeRemote {
	return &fakeRemote{
		fakeStore: newFakeStore(sessions...),
		events:    make(chan store.ChangeEvent, 16),
	}
}

func (f *fakeRemote) Changes(ctx context.Context) (<-chan store.ChangeEvent, error) {
	out := make(chan store.ChangeEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-f.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func session(id string, guess string, confidence int, endedAt int64) *models.GameSession {
	return &models.GameSession{
		ID:         models.UUID(id),
		UserID:     "u1",
		Prompt:     "cat",
		AIGuess:    guess,
		Confidence: confidence,
		StartedAt:  endedAt - 30_000,
		EndedAt:    endedAt,
		Duration:   30,
	}
}

func newTestOrchestrator(local *fakeLocal, remote *fakeRemote, resolution models.Resolution) *Orchestrator {
	opts := models.DefaultSyncOptions()
	opts.Resolution = resolution
	return NewOrchestrator(local, remote, opts, time.Hour)
}

// TestStartRunsImmediateFullSync checks that Start converges both
// stores without waiting for the timer.
func TestStartRunsImmediateFullSync(t *testing.T) {
	local := &fakeLocal{fakeStore: newFakeStore(session("s1", "cat", 80, 1_000_000))}
	remote := newFakeRemote(session("s2", "dog", 70, 2_000_000))
	orch := newTestOrchestrator(local, remote, models.ResolutionMerge)

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer orch.Stop()

	if remote.get("s1") == nil {
		t.Error("expected local-only session to be pushed")
	}
	if local.get("s2") == nil {
		t.Error("expected remote-only session to be pulled")
	}

	status := orch.Status()
	if status.LastSyncAt == 0 {
		t.Error("expected last sync timestamp to be set")
	}
	if status.Pending != 0 {
		t.Errorf("expected pending cleared, got %d", status.Pending)
	}
}

// TestStartTwiceIsNoOp checks the second Start neither errors nor
// reruns the full sync.
func TestStartTwiceIsNoOp(t *testing.T) {
	local := &fakeLocal{fakeStore: newFakeStore()}
	remote := newFakeRemote()
	orch := newTestOrchestrator(local, remote, models.ResolutionMerge)

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer orch.Stop()

	before := orch.Status()
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	after := orch.Status()

	if local.listCalls != 1 {
		t.Errorf("expected one full sync, local store listed %d times", local.listCalls)
	}
	if before.LastSyncAt != after.LastSyncAt {
		t.Error("expected status unchanged by second Start")
	}
}

// TestTriggerSyncRequiresActive checks the inactive error and the
// force override.
func TestTriggerSyncRequiresActive(t *testing.T) {
	local := &fakeLocal{fakeStore: newFakeStore(session("s1", "cat", 80, 1_000_000))}
	remote := newFakeRemote()
	orch := newTestOrchestrator(local, remote, models.ResolutionMerge)

	err := orch.TriggerSync(context.Background(), nil)
	if !errors.Is(err, errors.ErrSyncInactive) {
		t.Fatalf("expected inactive error, got %v", err)
	}

	opts := models.DefaultSyncOptions()
	opts.Force = true
	if err := orch.TriggerSync(context.Background(), &opts); err != nil {
		t.Fatalf("forced trigger failed: %v", err)
	}
	if remote.get("s1") == nil {
		t.Error("expected forced sync to push local session")
	}
}

// TestFullSyncMergesConflict checks the end-to-end merge path: the
// remote side finished later with a different guess, so its outcome
// lands in both stores.
func TestFullSyncMergesConflict(t *testing.T) {
	base := int64(1_000_000)
	local := &fakeLocal{fakeStore: newFakeStore(session("s1", "cat", 80, base))}
	localDrawing := local.get("s1")
	localDrawing.DrawingURL = "https://cdn.example/u1/s1.jpg"
	local.Upsert(context.Background(), localDrawing)

	remote := newFakeRemote(session("s1", "dog", 90, base+5000))
	orch := newTestOrchestrator(local, remote, models.ResolutionMerge)

	opts := models.DefaultSyncOptions()
	opts.Force = true
	if err := orch.TriggerSync(context.Background(), &opts); err != nil {
		t.Fatalf("TriggerSync failed: %v", err)
	}

	for _, side := range []*models.GameSession{local.get("s1"), remote.get("s1")} {
		if side == nil {
			t.Fatal("session vanished during merge")
		}
		if side.AIGuess != "dog" || side.Confidence != 90 {
			t.Errorf("expected merged outcome dog/90, got %s/%d", side.AIGuess, side.Confidence)
		}
		if side.DrawingURL != "https://cdn.example/u1/s1.jpg" {
			t.Errorf("expected local drawing reference kept, got %q", side.DrawingURL)
		}
	}

	if local.recordCount() != 1 {
		t.Errorf("expected one conflict record, got %d", local.recordCount())
	}
}

// TestAskPolicyDefersConflict checks that ask leaves the conflict in
// status and ResolveConflict settles it later.
func TestAskPolicyDefersConflict(t *testing.T) {
	base := int64(1_000_000)
	local := &fakeLocal{fakeStore: newFakeStore(session("s1", "cat", 80, base))}
	remote := newFakeRemote(session("s1", "dog", 90, base+5000))
	orch := newTestOrchestrator(local, remote, models.ResolutionAsk)

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer orch.Stop()

	status := orch.Status()
	if len(status.Conflicts) != 1 {
		t.Fatalf("expected one deferred conflict, got %d", len(status.Conflicts))
	}
	if got := local.get("s1").AIGuess; got != "cat" {
		t.Errorf("expected local record untouched while deferred, got %q", got)
	}

	if err := orch.ResolveConflict(context.Background(), status.Conflicts[0], models.ResolutionLocal); err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}

	if got := remote.get("s1").AIGuess; got != "cat" {
		t.Errorf("expected local record applied remotely, got %q", got)
	}
	if len(orch.Status().Conflicts) != 0 {
		t.Error("expected conflict removed after resolution")
	}
}

// TestResolveConflictRequiresActive checks the inactive error path.
func TestResolveConflictRequiresActive(t *testing.T) {
	local := &fakeLocal{fakeStore: newFakeStore()}
	remote := newFakeRemote()
	orch := newTestOrchestrator(local, remote, models.ResolutionAsk)

	conflict := &models.SyncConflict{
		SessionID: "s1",
		Local:     session("s1", "cat", 80, 1_000_000),
		Remote:    session("s1", "dog", 90, 2_000_000),
	}
	err := orch.ResolveConflict(context.Background(), conflict, models.ResolutionLocal)
	if !errors.Is(err, errors.ErrSyncInactive) {
		t.Errorf("expected inactive error, got %v", err)
	}
}

// TestIncrementalSyncEmptyPendingIsNoOp checks that an empty pending
// set touches neither store.
func TestIncrementalSyncEmptyPendingIsNoOp(t *testing.T) {
	local := &fakeLocal{fakeStore: newFakeStore()}
	remote := newFakeRemote()
	orch := newTestOrchestrator(local, remote, models.ResolutionMerge)

	pushed, pulled, deferred, err := orch.incrementalSync(context.Background())
	if err != nil {
		t.Fatalf("incrementalSync failed: %v", err)
	}
	if pushed != 0 || pulled != 0 || deferred != 0 {
		t.Errorf("expected no work, got pushed=%d pulled=%d deferred=%d", pushed, pulled, deferred)
	}
	if remote.listCalls != 0 {
		t.Error("expected remote store untouched")
	}
}

// TestIncrementalSyncPushesPending checks the pending set drives the
// cycle and is cleared afterwards.
func TestIncrementalSyncPushesPending(t *testing.T) {
	local := &fakeLocal{fakeStore: newFakeStore(
		session("s1", "cat", 80, 1_000_000),
		session("s2", "dog", 70, 2_000_000),
	)}
	remote := newFakeRemote()
	orch := newTestOrchestrator(local, remote, models.ResolutionMerge)

	orch.AddPendingOperation("s1", models.PendingUpdate)

	pushed, _, _, err := orch.incrementalSync(context.Background())
	if err != nil {
		t.Fatalf("incrementalSync failed: %v", err)
	}
	if pushed != 1 {
		t.Errorf("expected one push, got %d", pushed)
	}
	if remote.get("s1") == nil {
		t.Error("expected pending session pushed")
	}
	if remote.get("s2") != nil {
		t.Error("expected non-pending session untouched")
	}
	if orch.Status().Pending != 0 {
		t.Error("expected pending set cleared")
	}
}

// TestIncrementalSyncDeletesRemotely checks the delete kind.
func TestIncrementalSyncDeletesRemotely(t *testing.T) {
	local := &fakeLocal{fakeStore: newFakeStore()}
	remote := newFakeRemote(session("s1", "cat", 80, 1_000_000))
	orch := newTestOrchestrator(local, remote, models.ResolutionMerge)

	orch.AddPendingOperation("s1", models.PendingDelete)

	if _, _, _, err := orch.incrementalSync(context.Background()); err != nil {
		t.Fatalf("incrementalSync failed: %v", err)
	}
	if remote.get("s1") != nil {
		t.Error("expected remote session deleted")
	}
}

// TestCycleErrorKeepsOrchestratorActive checks that a failing cycle is
// recorded in status without deactivating anything.
func TestCycleErrorKeepsOrchestratorActive(t *testing.T) {
	local := &fakeLocal{fakeStore: newFakeStore()}
	remote := newFakeRemote()
	remote.failList = true
	orch := newTestOrchestrator(local, remote, models.ResolutionMerge)

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer orch.Stop()

	status := orch.Status()
	if status.LastError == "" {
		t.Error("expected cycle error recorded in status")
	}
	if status.LastSyncAt != 0 {
		t.Error("expected no success timestamp after a failed cycle")
	}
	if !orch.Active() {
		t.Error("expected orchestrator to stay active after a failed cycle")
	}

	// A later cycle against a recovered store succeeds.
	remote.mu.Lock()
	remote.failList = false
	remote.mu.Unlock()
	if err := orch.TriggerSync(context.Background(), nil); err != nil {
		t.Fatalf("retry cycle failed: %v", err)
	}
	if orch.Status().LastError != "" {
		t.Error("expected error cleared after a successful cycle")
	}
}

// TestRealtimeIngestion checks that change events land through the
// same reconcile path.
func TestRealtimeIngestion(t *testing.T) {
	base := int64(1_000_000)
	local := &fakeLocal{fakeStore: newFakeStore(session("s1", "cat", 80, base))}
	remote := newFakeRemote(session("s1", "cat", 80, base))
	orch := newTestOrchestrator(local, remote, models.ResolutionMerge)

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer orch.Stop()

	// Insert of an unseen session.
	remote.events <- store.ChangeEvent{Type: store.ChangeInsert, New: session("s9", "fish", 60, base)}
	waitFor(t, func() bool { return local.get("s9") != nil }, "inserted session to appear locally")

	// Conflicting update resolves through merge, remote newer.
	remote.events <- store.ChangeEvent{Type: store.ChangeUpdate, New: session("s1", "dog", 90, base+5000)}
	waitFor(t, func() bool {
		s := local.get("s1")
		return s != nil && s.AIGuess == "dog"
	}, "conflicting update to merge locally")

	// Delete removes the local copy.
	remote.events <- store.ChangeEvent{Type: store.ChangeDelete, Old: &models.GameSession{ID: "s9"}}
	waitFor(t, func() bool { return local.get("s9") == nil }, "deleted session to vanish locally")
}

// TestStopTransitionsToStopped checks Stop is effective and idempotent.
func TestStopTransitionsToStopped(t *testing.T) {
	local := &fakeLocal{fakeStore: newFakeStore()}
	remote := newFakeRemote()
	orch := newTestOrchestrator(local, remote, models.ResolutionMerge)

	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	orch.Stop()
	orch.Stop() // second Stop is a no-op

	if orch.Active() {
		t.Error("expected orchestrator stopped")
	}
	if err := orch.TriggerSync(context.Background(), nil); !errors.Is(err, errors.ErrSyncInactive) {
		t.Errorf("expected inactive error after Stop, got %v", err)
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
