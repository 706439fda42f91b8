package api

import (
	"time"

	"shipflow/internal/observability"
	"shipflow/internal/queue"
	"shipflow/internal/shipment"
	"shipflow/internal/workflow"
)

// PhaseLabel renders a phase with its subphase as "phase/subphase".
func PhaseLabel(phase, subphase string) string {
	if subphase == "" {
		return phase
	}
	return phase + "/" + subphase
}

// FromQueueEntry converts a queue entry to its API representation.
func FromQueueEntry(entry queue.Entry) QueueEntry {
	return QueueEntry{
		ID:             entry.ID,
		Queue:          entry.Queue,
		ShipmentID:     entry.EntityID,
		Reason:         entry.Reason,
		State:          string(entry.State),
		Attempts:       entry.Attempts,
		NextVisibleAt:  formatTime(entry.NextVisibleAt),
		LeaseOwner:     entry.LeaseOwner,
		LeaseExpiresAt: formatTimePtr(entry.LeaseExpiresAt),
		LastError:      entry.LastError,
		CreatedAt:      formatTime(entry.CreatedAt),
		DeadAt:         formatTimePtr(entry.DeadAt),
		Payload:        entry.Payload,
	}
}

// FromQueueEntries converts a slice of queue entries.
func FromQueueEntries(entries []queue.Entry) []QueueEntry {
	out := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromQueueEntry(entry))
	}
	return out
}

// FromQueueStats converts queue counts.
func FromQueueStats(stats queue.Stats) QueueCounts {
	return QueueCounts{Pending: stats.Pending, Leased: stats.Leased, Dead: stats.Dead}
}

// FromStatusSummary converts the engine summary.
func FromStatusSummary(summary workflow.StatusSummary) EngineStatus {
	return EngineStatus{
		Running:    summary.Running,
		LastError:  summary.LastError,
		LastTickAt: formatTime(summary.LastTickAt),
		LastTick: TickSummary{
			Selected:     summary.LastTick.Selected,
			Evaluated:    summary.LastTick.Evaluated,
			Transitioned: summary.LastTick.Transitioned,
			Skipped:      summary.LastTick.Skipped,
			Discarded:    summary.LastTick.Discarded,
			Failed:       summary.LastTick.Failed,
		},
	}
}

// NewStatusResponse assembles the /api/status payload.
func NewStatusResponse(instanceID string, snap observability.Snapshot, summary workflow.StatusSummary) StatusResponse {
	resp := StatusResponse{
		InstanceID:        instanceID,
		Running:           snap.Running,
		QueueLength:       snap.QueueLength,
		InflightCount:     snap.InflightCount,
		ProcessedCount:    snap.ProcessedCount,
		ErrorCount:        snap.ErrorCount,
		RecentTransitions: make([]TransitionView, 0, len(snap.RecentTransitions)),
		Engine:            FromStatusSummary(summary),
		Queues:            make(map[string]QueueCounts, len(summary.Queues)),
	}
	for _, rec := range snap.RecentTransitions {
		resp.RecentTransitions = append(resp.RecentTransitions, TransitionView{
			ShipmentID: rec.ShipmentID,
			From:       rec.From,
			To:         rec.To,
			Reasons:    rec.Reasons,
			At:         formatTime(rec.At),
		})
	}
	for name, stats := range summary.Queues {
		resp.Queues[name] = FromQueueStats(stats)
	}
	return resp
}

// FromPhaseCounts converts the phase distribution and totals it.
func FromPhaseCounts(counts []shipment.PhaseCount) PhasesResponse {
	resp := PhasesResponse{Phases: make([]PhaseCount, 0, len(counts))}
	for _, c := range counts {
		resp.Phases = append(resp.Phases, PhaseCount{
			Phase:    string(c.Phase),
			Subphase: string(c.Subphase),
			Count:    c.Count,
		})
		resp.Total += c.Count
	}
	return resp
}

// FromShipment converts a shipment record.
func FromShipment(shp *shipment.Shipment) ShipmentView {
	if shp == nil {
		return ShipmentView{}
	}
	view := ShipmentView{
		ID:                 shp.ID,
		OrderNumber:        shp.OrderNumber,
		Phase:              string(shp.Phase),
		Subphase:           string(shp.Subphase),
		HoldState:          string(shp.HoldState),
		SeenOnHold:         shp.SeenOnHold,
		FirstSeenAt:        formatTime(shp.FirstSeenAt),
		LastEvaluatedAt:    formatTimePtr(shp.LastEvaluatedAt),
		LineItems:          make([]LineItem, 0, len(shp.LineItems)),
		HydratedAt:         formatTimePtr(shp.HydratedAt),
		Fingerprint:        shp.Fingerprint,
		PackagingID:        shp.PackagingID,
		RateCheckedAt:      formatTimePtr(shp.RateCheckedAt),
		SessionRequestedAt: formatTimePtr(shp.SessionRequestedAt),
		SessionID:          shp.SessionID,
		SpotNumber:         shp.SpotNumber,
		SessionState:       string(shp.SessionState),
		PickStartedAt:      formatTimePtr(shp.PickStartedAt),
		PickEndedAt:        formatTimePtr(shp.PickEndedAt),
		PickingIssue:       shp.PickingIssue,
		LabelCreatedAt:     formatTimePtr(shp.LabelCreatedAt),
		InTransitAt:        formatTimePtr(shp.InTransitAt),
		DeliveredAt:        formatTimePtr(shp.DeliveredAt),
		CancelledAt:        formatTimePtr(shp.CancelledAt),
		Problem:            shp.Problem,
		WakeRequested:      shp.WakeRequested,
		UpdatedAt:          formatTime(shp.UpdatedAt),
	}
	for _, item := range shp.LineItems {
		view.LineItems = append(view.LineItems, LineItem{
			SKU:      item.SKU,
			Quantity: item.Quantity,
			IsKit:    item.IsKit,
			Category: item.Category,
		})
	}
	return view
}

// FromTransitions converts persisted transitions.
func FromTransitions(transitions []shipment.Transition) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(transitions))
	for _, tr := range transitions {
		out = append(out, HistoryEntry{
			ID:      tr.ID,
			From:    PhaseLabel(string(tr.FromPhase), string(tr.FromSubphase)),
			To:      PhaseLabel(string(tr.ToPhase), string(tr.ToSubphase)),
			Reasons: tr.Reasons,
			At:      formatTime(tr.At),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
