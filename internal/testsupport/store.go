package testsupport

import (
	"context"
	"testing"
	"time"

	"shipflow/internal/config"
	"shipflow/internal/database"
	"shipflow/internal/shipment"
)

// MustOpenDB opens the shipflow database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *database.DB {
	t.Helper()

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// MustShipmentStore opens a shipment store backed by a fresh database.
func MustShipmentStore(t testing.TB, cfg *config.Config, clock *Clock) (*database.DB, *shipment.Store) {
	t.Helper()

	db := MustOpenDB(t, cfg)
	var opts []shipment.Option
	if clock != nil {
		opts = append(opts, shipment.WithClock(clock.Now))
	}
	return db, shipment.NewStore(db, opts...)
}

// MustCreateShipment upserts a shipment with the given hold state.
func MustCreateShipment(t testing.TB, store *shipment.Store, id string, hold shipment.HoldState) *shipment.Shipment {
	t.Helper()

	shp, err := store.Upsert(context.Background(), shipment.Ingest{ID: id, OrderNumber: "ORD-" + id, HoldState: hold})
	if err != nil {
		t.Fatalf("store.Upsert: %v", err)
	}
	return shp
}

// MustSetLineItems writes ingest line items.
func MustSetLineItems(t testing.TB, store *shipment.Store, id string, items ...shipment.LineItem) {
	t.Helper()

	if err := store.SetLineItems(context.Background(), id, items); err != nil {
		t.Fatalf("store.SetLineItems: %v", err)
	}
}

// MustGetShipment reloads a shipment.
func MustGetShipment(t testing.TB, store *shipment.Store, id string) *shipment.Shipment {
	t.Helper()

	shp, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return shp
}

// MustCompleteDecisions fills every awaiting_decisions requirement except the
// session, leaving the shipment at needs_session.
func MustCompleteDecisions(t testing.TB, store *shipment.Store, id string, at time.Time) {
	t.Helper()

	ctx := context.Background()
	items := []shipment.LineItem{{SKU: "MUG-01", Quantity: 1, Category: "drinkware"}}
	if err := store.ApplyHydration(ctx, id, items, at); err != nil {
		t.Fatalf("ApplyHydration: %v", err)
	}
	if err := store.SetFingerprint(ctx, id, "fp-"+id); err != nil {
		t.Fatalf("SetFingerprint: %v", err)
	}
	if err := store.SetPackaging(ctx, id, "PKG-SMALL"); err != nil {
		t.Fatalf("SetPackaging: %v", err)
	}
	if err := store.MarkRateChecked(ctx, id, at); err != nil {
		t.Fatalf("MarkRateChecked: %v", err)
	}
}
