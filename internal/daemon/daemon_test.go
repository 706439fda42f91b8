package daemon

import (
	"context"
	"testing"
	"time"

	"shipflow/internal/config"
	"shipflow/internal/logging"
	"shipflow/internal/shipment"
	"shipflow/internal/testsupport"
)

func TestNewRequiresConfigAndDatabase(t *testing.T) {
	if _, err := New(nil, nil, logging.NewNop()); err == nil {
		t.Fatal("expected error without config and database")
	}
}

func TestNewRejectsUnknownLockBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLockBackend("zookeeper"))
	db := testsupport.MustOpenDB(t, cfg)
	if _, err := New(cfg, db, logging.NewNop()); err == nil {
		t.Fatal("expected unsupported lock backend error")
	}
}

func TestLoadCatalogMissingFileIsEmpty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cat, err := LoadCatalog(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if kits, categories, packaging := cat.Counts(); kits+categories+packaging != 0 {
		t.Fatalf("expected empty catalog, got %d/%d/%d", kits, categories, packaging)
	}
}

func TestLoadCatalogRejectsInvalidFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCatalog("kits: [not, a, map]\n"))
	if _, err := LoadCatalog(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRunDrivesShipmentToSessionRequest(t *testing.T) {
	d := newTestDaemon(t, func(cfg *config.Config) {
		cfg.Engine.TickInterval = 1
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	testsupport.MustCreateShipment(t, d.store, "S-1", shipment.HoldReleased)
	testsupport.MustSetLineItems(t, d.store, "S-1", shipment.LineItem{SKU: "mug-01", Quantity: 1})
	if err := d.Wake(context.Background(), "S-1"); err != nil {
		t.Fatalf("Wake: %v", err)
	}

	deadline := time.Now().Add(15 * time.Second)
	var shp *shipment.Shipment
	for time.Now().Before(deadline) {
		shp = testsupport.MustGetShipment(t, d.store, "S-1")
		if shp.SessionRequestedAt != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if shp.SessionRequestedAt == nil {
		t.Fatalf("shipment never reached session request: phase=%s subphase=%s", shp.Phase, shp.Subphase)
	}
	if shp.PackagingID != "PKG-SMALL" {
		t.Fatalf("packaging = %q, want PKG-SMALL", shp.PackagingID)
	}
	if shp.Fingerprint == "" || shp.RateCheckedAt == nil {
		t.Fatalf("decisions incomplete: %+v", shp)
	}
	if !d.Running() {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Run(ctx); err == nil {
		t.Fatal("expected second Run to fail")
	}
}
