package api_test

import (
	"testing"
	"time"

	"shipflow/internal/api"
	"shipflow/internal/observability"
	"shipflow/internal/queue"
	"shipflow/internal/shipment"
	"shipflow/internal/workflow"
)

func TestFromQueueEntry(t *testing.T) {
	dead := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	dto := api.FromQueueEntry(queue.Entry{
		ID:            7,
		Queue:         queue.NameEvents,
		EntityID:      "S-1",
		Reason:        "packaging",
		State:         queue.StateDead,
		Attempts:      3,
		NextVisibleAt: dead.Add(-time.Minute),
		LastError:     "boom",
		DeadAt:        &dead,
	})
	if dto.ShipmentID != "S-1" || dto.State != "dead" || dto.Attempts != 3 {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if dto.DeadAt != "2026-03-02T09:30:00.000Z" {
		t.Fatalf("deadAt = %q", dto.DeadAt)
	}
	if dto.LeaseExpiresAt != "" || dto.CreatedAt != "" {
		t.Fatalf("expected unset timestamps to be empty, got %+v", dto)
	}
}

func TestNewStatusResponse(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	snap := observability.Snapshot{
		Running:        true,
		QueueLength:    4,
		ProcessedCount: 9,
		ErrorCount:     1,
		RecentTransitions: []observability.TransitionRecord{
			{ShipmentID: "S-2", From: "ready_to_fulfill", To: "awaiting_decisions/needs_hydration", Reasons: []string{"hydration"}, At: at},
		},
	}
	summary := workflow.StatusSummary{
		Running:    true,
		LastTickAt: at,
		LastTick:   workflow.TickResult{Selected: 3, Transitioned: 1},
		Queues:     map[string]queue.Stats{queue.NameEvents: {Pending: 2, Dead: 1}},
	}
	resp := api.NewStatusResponse("inst-1", snap, summary)
	if resp.InstanceID != "inst-1" || !resp.Running || resp.QueueLength != 4 || resp.ProcessedCount != 9 {
		t.Fatalf("unexpected counters %+v", resp)
	}
	if len(resp.RecentTransitions) != 1 || resp.RecentTransitions[0].To != "awaiting_decisions/needs_hydration" {
		t.Fatalf("unexpected transitions %+v", resp.RecentTransitions)
	}
	if resp.Engine.LastTick.Selected != 3 || resp.Engine.LastTickAt == "" {
		t.Fatalf("unexpected engine status %+v", resp.Engine)
	}
	if got := resp.Queues[queue.NameEvents]; got.Pending != 2 || got.Dead != 1 {
		t.Fatalf("unexpected queue counts %+v", got)
	}
}

func TestFromTransitionsLabelsSubphase(t *testing.T) {
	entries := api.FromTransitions([]shipment.Transition{{
		ID:         1,
		FromPhase:  shipment.PhaseReadyToFulfill,
		ToPhase:    shipment.PhaseAwaitingDecisions,
		ToSubphase: shipment.SubphaseNeedsHydration,
		Reasons:    []string{"hydration"},
	}})
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].From != "ready_to_fulfill" || entries[0].To != "awaiting_decisions/needs_hydration" {
		t.Fatalf("unexpected labels %+v", entries[0])
	}
}

func TestFromShipmentCopiesLineItems(t *testing.T) {
	view := api.FromShipment(&shipment.Shipment{
		ID:        "S-3",
		Phase:     shipment.PhaseReadyToSession,
		HoldState: shipment.HoldPending,
		LineItems: []shipment.LineItem{{SKU: "MUG-01", Quantity: 2, Category: "drinkware"}},
	})
	if view.Phase != "ready_to_session" || len(view.LineItems) != 1 || view.LineItems[0].Quantity != 2 {
		t.Fatalf("unexpected view %+v", view)
	}
	if api.FromShipment(nil).ID != "" {
		t.Fatal("nil shipment should convert to zero view")
	}
}
