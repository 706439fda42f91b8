package lifecycle

import (
	"time"

	"shipflow/internal/shipment"
)

// DefaultHoldFallback is how long a pending shipment that was never on hold
// waits before it is allowed past the gate.
const DefaultHoldFallback = 10 * time.Minute

// Options tunes evaluation.
type Options struct {
	HoldFallback time.Duration
}

// Result is the derived lifecycle position. Reasons is non-empty only when
// (Phase, Subphase) differs from what the shipment has stored.
type Result struct {
	Phase    shipment.Phase
	Subphase shipment.Subphase
	Reasons  []Reason
	Changed  bool
}

// Evaluate derives the phase and subphase of shp at now. It does not read or
// write anything and is safe to call concurrently.
func Evaluate(shp *shipment.Shipment, now time.Time, opts Options) Result {
	phase, subphase := derive(shp, now, opts)
	res := Result{Phase: phase, Subphase: subphase}
	if phase != shp.Phase || subphase != shp.Subphase {
		res.Changed = true
		res.Reasons = reasonsFor(phase, subphase)
	}
	return res
}

func derive(shp *shipment.Shipment, now time.Time, opts Options) (shipment.Phase, shipment.Subphase) {
	switch {
	case shp.CancelledAt != nil:
		return shipment.PhaseCancelled, shipment.SubphaseNone
	case shp.Problem != "":
		return shipment.PhaseProblem, shipment.SubphaseNone
	case shp.DeliveredAt != nil:
		return shipment.PhaseDelivered, shipment.SubphaseNone
	}

	if !gateOpen(shp, now, opts) {
		return shipment.PhaseReadyToFulfill, shipment.SubphaseNone
	}

	switch {
	case shp.InTransitAt != nil:
		return shipment.PhaseInTransit, shipment.SubphaseNone
	case shp.LabelCreatedAt != nil:
		return shipment.PhaseOnDock, shipment.SubphaseNone
	case shp.PickEndedAt != nil,
		shp.SessionState == shipment.SessionReadyToShip,
		shp.SessionState == shipment.SessionClosed:
		return shipment.PhasePackingReady, shipment.SubphaseNone
	case shp.PickingIssue != "":
		return shipment.PhasePickingIssues, shipment.SubphaseNone
	case shp.PickStartedAt != nil:
		return shipment.PhasePicking, shipment.SubphaseNone
	case shp.SessionState == shipment.SessionActive:
		return shipment.PhaseReadyToPick, shipment.SubphaseNone
	case shp.SessionID != "":
		return shipment.PhaseSessionCreated, shipment.SubphaseNone
	}

	if len(shp.LineItems) == 0 {
		return shipment.PhaseReadyToSession, shipment.SubphaseNone
	}
	return shipment.PhaseAwaitingDecisions, firstUnmet(shp)
}

// gateOpen holds shipments until the order system's automations are done.
// A pending shipment that was never seen on hold is released by age alone.
func gateOpen(shp *shipment.Shipment, now time.Time, opts Options) bool {
	switch shp.HoldState {
	case shipment.HoldReleased:
		return true
	case shipment.HoldOnHold:
		return false
	}
	if shp.SeenOnHold {
		return true
	}
	fallback := opts.HoldFallback
	if fallback <= 0 {
		fallback = DefaultHoldFallback
	}
	return now.Sub(shp.FirstSeenAt) >= fallback
}

func firstUnmet(shp *shipment.Shipment) shipment.Subphase {
	switch {
	case shp.HydratedAt == nil:
		return shipment.SubphaseNeedsHydration
	case !categorized(shp.LineItems):
		return shipment.SubphaseNeedsCategorization
	case shp.Fingerprint == "":
		return shipment.SubphaseNeedsFingerprint
	case shp.PackagingID == "":
		return shipment.SubphaseNeedsPackaging
	case shp.RateCheckedAt == nil:
		return shipment.SubphaseNeedsRateCheck
	default:
		return shipment.SubphaseNeedsSession
	}
}

func categorized(items []shipment.LineItem) bool {
	for _, item := range items {
		if item.Category == "" {
			return false
		}
	}
	return true
}
