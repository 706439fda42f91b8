package workflow_test

import (
	"context"
	"testing"
	"time"

	"shipflow/internal/config"
	"shipflow/internal/coord"
	"shipflow/internal/database"
	"shipflow/internal/lifecycle"
	"shipflow/internal/logging"
	"shipflow/internal/queue"
	"shipflow/internal/shipment"
	"shipflow/internal/testsupport"
	"shipflow/internal/workflow"
)

type engineFixture struct {
	cfg    *config.Config
	db     *database.DB
	store  *shipment.Store
	queues map[string]*queue.Queue
	lock   coord.DistributedLock
	clock  *testsupport.Clock
	engine *workflow.Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	db, store := testsupport.MustShipmentStore(t, cfg, clock)
	queues := testsupport.MustQueues(t, cfg, db, clock)
	lock := coord.NewSQLiteLock(db, "engine-test", coord.WithLockClock(clock.Now))
	engine := workflow.NewEngine(cfg, db, store, queues, coord.NewCoordinator(lock, logging.NewNop()), logging.NewNop(),
		workflow.WithClock(clock.Now),
	)
	return &engineFixture{cfg: cfg, db: db, store: store, queues: queues, lock: lock, clock: clock, engine: engine}
}

func (f *engineFixture) tick(t *testing.T) workflow.TickResult {
	t.Helper()
	res, err := f.engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return res
}

func (f *engineFixture) wake(t *testing.T, id string) {
	t.Helper()
	if err := f.engine.Wake(context.Background(), id); err != nil {
		t.Fatalf("Wake: %v", err)
	}
}

func (f *engineFixture) liveEntries(t *testing.T, name string) []queue.Entry {
	t.Helper()
	entries, err := f.queues[name].List(context.Background(), 0, queue.StatePending, queue.StateLeased)
	if err != nil {
		t.Fatalf("List %s: %v", name, err)
	}
	return entries
}

func assertPhase(t *testing.T, store *shipment.Store, id string, phase shipment.Phase, subphase shipment.Subphase) {
	t.Helper()
	shp := testsupport.MustGetShipment(t, store, id)
	if shp.Phase != phase || shp.Subphase != subphase {
		t.Fatalf("shipment %s at %s/%s, want %s/%s", id, shp.Phase, shp.Subphase, phase, subphase)
	}
}

func TestEngineHoldsPendingShipmentUntilFallback(t *testing.T) {
	f := newEngineFixture(t)
	testsupport.MustCreateShipment(t, f.store, "shp-1", shipment.HoldPending)

	res := f.tick(t)
	if res.Selected != 1 || res.Transitioned != 0 {
		t.Fatalf("first tick = %+v, want one selected and no transition", res)
	}
	assertPhase(t, f.store, "shp-1", shipment.PhaseReadyToFulfill, shipment.SubphaseNone)

	f.clock.Advance(11 * time.Minute)
	res = f.tick(t)
	if res.Transitioned != 1 {
		t.Fatalf("second tick = %+v, want a transition", res)
	}
	assertPhase(t, f.store, "shp-1", shipment.PhaseReadyToSession, shipment.SubphaseNone)
}

func TestEngineAdvancesAsSoonAsHoldIsLifted(t *testing.T) {
	f := newEngineFixture(t)
	testsupport.MustCreateShipment(t, f.store, "shp-1", shipment.HoldOnHold)

	if res := f.tick(t); res.Selected != 1 || res.Transitioned != 0 {
		t.Fatalf("on_hold tick = %+v, want one selected and no transition", res)
	}
	if res := f.tick(t); res.Selected != 0 {
		t.Fatalf("fresh shipment reselected before staleness: %+v", res)
	}

	if err := f.store.RecordHold(context.Background(), "shp-1", shipment.HoldPending); err != nil {
		t.Fatalf("RecordHold: %v", err)
	}
	res := f.tick(t)
	if res.Selected != 1 || res.Transitioned != 1 {
		t.Fatalf("tick after hold lifted = %+v, want a transition", res)
	}
	assertPhase(t, f.store, "shp-1", shipment.PhaseReadyToSession, shipment.SubphaseNone)
}

func TestEngineReleasedShipmentWalksDecisionChain(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	testsupport.MustCreateShipment(t, f.store, "shp-1", shipment.HoldReleased)
	testsupport.MustSetLineItems(t, f.store, "shp-1", shipment.LineItem{SKU: "MUG-01", Quantity: 1})

	f.tick(t)
	assertPhase(t, f.store, "shp-1", shipment.PhaseAwaitingDecisions, shipment.SubphaseNeedsHydration)

	hydration := f.liveEntries(t, queue.NameHydration)
	if len(hydration) != 1 || hydration[0].Reason != string(lifecycle.ReasonHydration) {
		t.Fatalf("hydration queue = %+v, want one hydration entry", hydration)
	}
	if events := f.liveEntries(t, queue.NameEvents); len(events) != 0 {
		t.Fatalf("events queue should be empty, got %d", len(events))
	}

	testsupport.MustCompleteDecisions(t, f.store, "shp-1", f.clock.Now())
	f.wake(t, "shp-1")
	f.tick(t)
	assertPhase(t, f.store, "shp-1", shipment.PhaseAwaitingDecisions, shipment.SubphaseNeedsSession)

	events := f.liveEntries(t, queue.NameEvents)
	if len(events) != 1 || events[0].Reason != string(lifecycle.ReasonSession) {
		t.Fatalf("events queue = %+v, want one session entry", events)
	}

	if err := f.store.RecordSession(ctx, "shp-1", shipment.SessionUpdate{SessionID: "S-9", SpotNumber: 4, State: shipment.SessionNew}); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}
	f.wake(t, "shp-1")
	f.tick(t)
	assertPhase(t, f.store, "shp-1", shipment.PhaseSessionCreated, shipment.SubphaseNone)

	writes := f.liveEntries(t, queue.NameExternalWrite)
	if len(writes) != 1 || writes[0].Reason != string(lifecycle.ReasonShipmentSync) {
		t.Fatalf("external_write queue = %+v, want one shipment_sync entry", writes)
	}

	history, err := f.store.Transitions(ctx, "shp-1", 0)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(history))
	}
	if history[0].FromPhase != shipment.PhaseReadyToFulfill {
		t.Fatalf("first transition from %s, want ready_to_fulfill", history[0].FromPhase)
	}
}

func TestEngineDiscardsBackwardTransition(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	testsupport.MustCreateShipment(t, f.store, "shp-1", shipment.HoldReleased)
	testsupport.MustSetLineItems(t, f.store, "shp-1", shipment.LineItem{SKU: "MUG-01", Quantity: 1})
	testsupport.MustCompleteDecisions(t, f.store, "shp-1", f.clock.Now())
	if err := f.store.RecordSession(ctx, "shp-1", shipment.SessionUpdate{SessionID: "S-1", SpotNumber: 2, State: shipment.SessionActive}); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}
	f.tick(t)
	assertPhase(t, f.store, "shp-1", shipment.PhaseReadyToPick, shipment.SubphaseNone)

	if err := f.store.RecordHold(ctx, "shp-1", shipment.HoldOnHold); err != nil {
		t.Fatalf("RecordHold: %v", err)
	}
	f.wake(t, "shp-1")
	res := f.tick(t)
	if res.Discarded != 1 || res.Transitioned != 0 {
		t.Fatalf("tick = %+v, want one discard", res)
	}
	assertPhase(t, f.store, "shp-1", shipment.PhaseReadyToPick, shipment.SubphaseNone)

	shp := testsupport.MustGetShipment(t, f.store, "shp-1")
	if shp.WakeRequested {
		t.Fatal("discard should clear the wake flag")
	}
}

func TestEngineSkipsLockedShipment(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	testsupport.MustCreateShipment(t, f.store, "shp-1", shipment.HoldReleased)

	other := coord.NewSQLiteLock(f.db, "other-worker", coord.WithLockClock(f.clock.Now))
	handle, ok, err := other.TryAcquire(ctx, coord.ShipmentScope("shp-1"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
	}

	res := f.tick(t)
	if res.Skipped != 1 || res.Evaluated != 0 {
		t.Fatalf("tick = %+v, want one skip", res)
	}
	assertPhase(t, f.store, "shp-1", shipment.PhaseReadyToFulfill, shipment.SubphaseNone)

	if err := other.Release(ctx, handle); err != nil {
		t.Fatalf("Release: %v", err)
	}
	res = f.tick(t)
	if res.Transitioned != 1 {
		t.Fatalf("tick after release = %+v, want a transition", res)
	}
}

func TestEngineFailureDoesNotAbortBatch(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	testsupport.MustCreateShipment(t, f.store, "shp-bad", shipment.HoldReleased)
	testsupport.MustCreateShipment(t, f.store, "shp-good", shipment.HoldReleased)

	if _, err := f.db.Exec(ctx, `UPDATE shipments SET phase = 'misrouted' WHERE id = ?`, "shp-bad"); err != nil {
		t.Fatalf("corrupt phase: %v", err)
	}

	res := f.tick(t)
	if res.Selected != 2 || res.Failed != 1 || res.Transitioned != 1 {
		t.Fatalf("tick = %+v, want one failure and one transition", res)
	}
	assertPhase(t, f.store, "shp-good", shipment.PhaseReadyToSession, shipment.SubphaseNone)
}

func TestEngineDoesNotDuplicateLiveSideEffects(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	testsupport.MustCreateShipment(t, f.store, "shp-1", shipment.HoldReleased)
	testsupport.MustSetLineItems(t, f.store, "shp-1", shipment.LineItem{SKU: "MUG-01", Quantity: 1})
	f.tick(t)

	// Items replaced before hydration ran: the shipment leaves and re-enters
	// needs_hydration while the first entry is still pending.
	if _, err := f.db.Exec(ctx, `UPDATE shipments SET subphase = 'needs_categorization' WHERE id = ?`, "shp-1"); err != nil {
		t.Fatalf("move subphase: %v", err)
	}
	f.wake(t, "shp-1")
	f.tick(t)
	assertPhase(t, f.store, "shp-1", shipment.PhaseAwaitingDecisions, shipment.SubphaseNeedsHydration)

	if entries := f.liveEntries(t, queue.NameHydration); len(entries) != 1 {
		t.Fatalf("expected a single live hydration entry, got %d", len(entries))
	}
}

func TestEngineTerminalShipmentsAreNotSelected(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	testsupport.MustCreateShipment(t, f.store, "shp-1", shipment.HoldReleased)
	if err := f.store.RecordSignal(ctx, "shp-1", shipment.SignalCancelled, f.clock.Now(), ""); err != nil {
		t.Fatalf("RecordSignal: %v", err)
	}
	f.tick(t)
	assertPhase(t, f.store, "shp-1", shipment.PhaseCancelled, shipment.SubphaseNone)

	f.clock.Advance(time.Hour)
	if res := f.tick(t); res.Selected != 0 {
		t.Fatalf("terminal shipment selected again: %+v", res)
	}
}

func TestEngineStartStopAndStatus(t *testing.T) {
	f := newEngineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.engine.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}
	testsupport.MustCreateShipment(t, f.store, "shp-1", shipment.HoldReleased)
	f.wake(t, "shp-1")

	deadline := time.Now().Add(5 * time.Second)
	for {
		shp := testsupport.MustGetShipment(t, f.store, "shp-1")
		if shp.Phase == shipment.PhaseReadyToSession {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("engine did not advance shipment, at %s", shp.Phase)
		}
		time.Sleep(10 * time.Millisecond)
	}

	status := f.engine.Status(ctx)
	if !status.Running {
		t.Fatal("expected running status")
	}
	if _, ok := status.Queues[queue.NameEvents]; !ok {
		t.Fatalf("status missing events queue: %+v", status.Queues)
	}
	if !f.engine.Stats().Snapshot().Running {
		t.Fatal("stats should report running")
	}

	f.engine.Stop()
	if f.engine.Status(ctx).Running {
		t.Fatal("expected stopped status")
	}
	if got := f.engine.Stats().Snapshot().RecentTransitions; len(got) == 0 || got[0].ShipmentID != "shp-1" {
		t.Fatalf("recent transitions = %+v", got)
	}
}
