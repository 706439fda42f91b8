package shipment_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"shipflow/internal/services"
	"shipflow/internal/shipment"
	"shipflow/internal/testsupport"
)

func TestUpsertCreatesAndRefreshes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	_, store := testsupport.MustShipmentStore(t, cfg, clock)
	ctx := context.Background()

	created := testsupport.MustCreateShipment(t, store, "shp_1", shipment.HoldOnHold)
	if created.Phase != shipment.PhaseReadyToFulfill {
		t.Fatalf("expected ready_to_fulfill, got %s", created.Phase)
	}
	if !created.SeenOnHold {
		t.Fatal("expected seen_on_hold after on_hold ingest")
	}
	if !created.FirstSeenAt.Equal(clock.Now()) {
		t.Fatalf("first seen = %v, want %v", created.FirstSeenAt, clock.Now())
	}

	clock.Advance(time.Minute)
	refreshed, err := store.Upsert(ctx, shipment.Ingest{ID: "shp_1", HoldState: shipment.HoldPending})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if refreshed.HoldState != shipment.HoldPending || !refreshed.SeenOnHold {
		t.Fatalf("unexpected refresh %+v", refreshed)
	}
	if refreshed.OrderNumber != "ORD-shp_1" {
		t.Fatalf("order number lost on refresh: %q", refreshed.OrderNumber)
	}
	if !refreshed.FirstSeenAt.Equal(created.FirstSeenAt) {
		t.Fatal("first seen must not move on refresh")
	}
}

func TestUpsertValidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, store := testsupport.MustShipmentStore(t, cfg, nil)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, shipment.Ingest{ID: " "}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
	if _, err := store.Upsert(ctx, shipment.Ingest{ID: "x", HoldState: "frozen"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for hold state, got %v", err)
	}
}

func TestGetMissingShipment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, store := testsupport.MustShipmentStore(t, cfg, nil)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, shipment.ErrNotFound) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.RequestWake(context.Background(), "nope"); !errors.Is(err, shipment.ErrNotFound) {
		t.Fatalf("expected not found on wake, got %v", err)
	}
}

func TestRecordHoldRemembersOnHold(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, store := testsupport.MustShipmentStore(t, cfg, nil)
	ctx := context.Background()
	testsupport.MustCreateShipment(t, store, "shp_h", shipment.HoldPending)

	if shp := testsupport.MustGetShipment(t, store, "shp_h"); shp.SeenOnHold {
		t.Fatal("pending ingest must not set seen_on_hold")
	}
	for _, hold := range []shipment.HoldState{shipment.HoldOnHold, shipment.HoldPending} {
		if err := store.RecordHold(ctx, "shp_h", hold); err != nil {
			t.Fatalf("RecordHold(%s): %v", hold, err)
		}
	}
	shp := testsupport.MustGetShipment(t, store, "shp_h")
	if shp.HoldState != shipment.HoldPending || !shp.SeenOnHold {
		t.Fatalf("unexpected hold state %s seen=%v", shp.HoldState, shp.SeenOnHold)
	}
}

func TestRecordHoldWakesWhenLeavingOnHold(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	_, store := testsupport.MustShipmentStore(t, cfg, clock)
	ctx := context.Background()
	testsupport.MustCreateShipment(t, store, "shp_w", shipment.HoldOnHold)
	if err := store.Touch(ctx, "shp_w", clock.Now()); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	if err := store.RecordHold(ctx, "shp_w", shipment.HoldOnHold); err != nil {
		t.Fatalf("RecordHold(on_hold): %v", err)
	}
	if shp := testsupport.MustGetShipment(t, store, "shp_w"); shp.WakeRequested {
		t.Fatal("staying on_hold must not request a wake")
	}

	if err := store.RecordHold(ctx, "shp_w", shipment.HoldReleased); err != nil {
		t.Fatalf("RecordHold(released): %v", err)
	}
	if shp := testsupport.MustGetShipment(t, store, "shp_w"); !shp.WakeRequested {
		t.Fatal("leaving on_hold must request a wake")
	}

	testsupport.MustCreateShipment(t, store, "shp_u", shipment.HoldOnHold)
	if err := store.Touch(ctx, "shp_u", clock.Now()); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	refreshed, err := store.Upsert(ctx, shipment.Ingest{ID: "shp_u", HoldState: shipment.HoldPending})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !refreshed.WakeRequested {
		t.Fatal("re-ingest off on_hold must request a wake")
	}
}

func TestLineItemsAndHydration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	_, store := testsupport.MustShipmentStore(t, cfg, clock)
	ctx := context.Background()
	testsupport.MustCreateShipment(t, store, "shp_2", shipment.HoldReleased)

	testsupport.MustSetLineItems(t, store, "shp_2",
		shipment.LineItem{SKU: "KIT-STARTER", Quantity: 1, IsKit: true},
		shipment.LineItem{SKU: "BOX-ART", Quantity: 2},
	)
	shp := testsupport.MustGetShipment(t, store, "shp_2")
	if len(shp.LineItems) != 2 || !shp.LineItems[0].IsKit {
		t.Fatalf("unexpected items %+v", shp.LineItems)
	}

	exploded := []shipment.LineItem{{SKU: "MUG-01", Quantity: 1}, {SKU: "TEA-01", Quantity: 2}, {SKU: "BOX-ART", Quantity: 2}}
	if err := store.ApplyHydration(ctx, "shp_2", exploded, clock.Now()); err != nil {
		t.Fatalf("ApplyHydration: %v", err)
	}
	if err := store.SetCategories(ctx, "shp_2", map[string]string{"MUG-01": "drinkware", "TEA-01": "consumable"}); err != nil {
		t.Fatalf("SetCategories: %v", err)
	}
	shp = testsupport.MustGetShipment(t, store, "shp_2")
	if shp.HydratedAt == nil || len(shp.LineItems) != 3 {
		t.Fatalf("hydration not applied: %+v", shp)
	}
	if shp.LineItems[0].Category != "drinkware" || shp.LineItems[2].Category != "" {
		t.Fatalf("unexpected categories %+v", shp.LineItems)
	}

	testsupport.MustSetLineItems(t, store, "shp_2", shipment.LineItem{SKU: "MUG-01", Quantity: 3})
	if shp := testsupport.MustGetShipment(t, store, "shp_2"); shp.HydratedAt != nil {
		t.Fatal("new ingest composition must reset hydration")
	}

	if err := store.SetLineItems(ctx, "shp_2", []shipment.LineItem{{SKU: "MUG-01", Quantity: 0}}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for zero quantity, got %v", err)
	}
	if err := store.ApplyHydration(ctx, "missing", exploded, clock.Now()); !errors.Is(err, shipment.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionAndSignals(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	_, store := testsupport.MustShipmentStore(t, cfg, clock)
	ctx := context.Background()
	testsupport.MustCreateShipment(t, store, "shp_3", shipment.HoldReleased)

	if err := store.RecordSession(ctx, "shp_3", shipment.SessionUpdate{SessionID: "12345", SpotNumber: 7, State: shipment.SessionActive}); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}
	if err := store.RecordSession(ctx, "shp_3", shipment.SessionUpdate{State: "bogus"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := store.RecordSignal(ctx, "shp_3", shipment.SignalPickingIssue, clock.Now(), "short pick"); err != nil {
		t.Fatalf("RecordSignal issue: %v", err)
	}
	shp := testsupport.MustGetShipment(t, store, "shp_3")
	if shp.SessionID != "12345" || shp.SpotNumber != 7 || shp.SessionState != shipment.SessionActive || shp.PickingIssue != "short pick" {
		t.Fatalf("unexpected session fields %+v", shp)
	}

	if err := store.RecordSignal(ctx, "shp_3", shipment.SignalPickingResolved, clock.Now(), ""); err != nil {
		t.Fatalf("RecordSignal resolved: %v", err)
	}
	if err := store.RecordSignal(ctx, "shp_3", shipment.SignalLabelCreated, clock.Now(), ""); err != nil {
		t.Fatalf("RecordSignal label: %v", err)
	}
	shp = testsupport.MustGetShipment(t, store, "shp_3")
	if shp.PickingIssue != "" || shp.LabelCreatedAt == nil {
		t.Fatalf("unexpected signal fields %+v", shp)
	}
	if err := store.RecordSignal(ctx, "shp_3", shipment.SignalProblem, clock.Now(), ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("problem without detail should fail validation, got %v", err)
	}
}

func TestDueOrdersWokenFirstAndSkipsTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	db, store := testsupport.MustShipmentStore(t, cfg, clock)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		testsupport.MustCreateShipment(t, store, id, shipment.HoldReleased)
	}
	if err := store.Touch(ctx, "a", clock.Now()); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := store.Touch(ctx, "b", clock.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := store.Touch(ctx, "c", clock.Now()); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := store.RequestWake(ctx, "c"); err != nil {
		t.Fatalf("RequestWake: %v", err)
	}
	if _, err := db.Exec(ctx, `UPDATE shipments SET phase = 'delivered' WHERE id = 'd'`); err != nil {
		t.Fatalf("force terminal: %v", err)
	}

	ids, err := store.Due(ctx, time.Minute, 10)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	want := []string{"c", "b"}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("Due = %v, want %v", ids, want)
	}

	ids, err = store.Due(ctx, time.Minute, 1)
	if err != nil || len(ids) != 1 || ids[0] != "c" {
		t.Fatalf("bounded Due = %v, %v", ids, err)
	}
}

func TestUpdateStateTxWritesTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock()
	db, store := testsupport.MustShipmentStore(t, cfg, clock)
	ctx := context.Background()
	prev := testsupport.MustCreateShipment(t, store, "shp_t", shipment.HoldReleased)
	if err := store.RequestWake(ctx, "shp_t"); err != nil {
		t.Fatalf("RequestWake: %v", err)
	}

	change := shipment.StateChange{
		Previous: prev,
		Phase:    shipment.PhaseAwaitingDecisions,
		Subphase: shipment.SubphaseNeedsHydration,
		Reasons:  []string{"hydration"},
		At:       clock.Advance(time.Second),
	}
	if err := db.WithTx(ctx, func(tx *sql.Tx) error { return store.UpdateStateTx(ctx, tx, change) }); err != nil {
		t.Fatalf("UpdateStateTx: %v", err)
	}

	shp := testsupport.MustGetShipment(t, store, "shp_t")
	if shp.Phase != shipment.PhaseAwaitingDecisions || shp.Subphase != shipment.SubphaseNeedsHydration {
		t.Fatalf("state not written: %s/%s", shp.Phase, shp.Subphase)
	}
	if shp.WakeRequested || shp.LastEvaluatedAt == nil {
		t.Fatal("expected wake cleared and evaluation recorded")
	}

	history, err := store.Transitions(ctx, "shp_t", 0)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(history))
	}
	tr := history[0]
	if tr.FromPhase != shipment.PhaseReadyToFulfill || tr.ToSubphase != shipment.SubphaseNeedsHydration || len(tr.Reasons) != 1 || tr.Reasons[0] != "hydration" {
		t.Fatalf("unexpected transition %+v", tr)
	}
	var snap shipment.Shipment
	if err := json.Unmarshal(tr.Snapshot, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Phase != shipment.PhaseReadyToFulfill {
		t.Fatalf("snapshot should hold previous phase, got %s", snap.Phase)
	}

	// The stored phase moved on, so a second write from the stale read must fail.
	err = db.WithTx(ctx, func(tx *sql.Tx) error { return store.UpdateStateTx(ctx, tx, change) })
	if !errors.Is(err, shipment.ErrStaleState) {
		t.Fatalf("expected stale state, got %v", err)
	}
}

func TestPhaseDistribution(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db, store := testsupport.MustShipmentStore(t, cfg, nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		testsupport.MustCreateShipment(t, store, id, shipment.HoldPending)
	}
	if _, err := db.Exec(ctx, `UPDATE shipments SET phase = 'awaiting_decisions', subphase = 'needs_packaging' WHERE id = 'c'`); err != nil {
		t.Fatalf("force phase: %v", err)
	}

	counts, err := store.PhaseDistribution(ctx)
	if err != nil {
		t.Fatalf("PhaseDistribution: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("expected 2 groups, got %+v", counts)
	}
	if counts[0].Phase != shipment.PhaseAwaitingDecisions || counts[0].Subphase != shipment.SubphaseNeedsPackaging || counts[0].Count != 1 {
		t.Fatalf("unexpected first group %+v", counts[0])
	}
	if counts[1].Phase != shipment.PhaseReadyToFulfill || counts[1].Count != 2 {
		t.Fatalf("unexpected second group %+v", counts[1])
	}

	listed, err := store.List(ctx, shipment.ListFilter{Phases: []shipment.Phase{shipment.PhaseReadyToFulfill}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 listed shipments, got %d", len(listed))
	}
}
