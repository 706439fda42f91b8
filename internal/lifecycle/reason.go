package lifecycle

import (
	"fmt"

	"shipflow/internal/shipment"
)

// Reason identifies a side effect the engine schedules on a transition.
type Reason string

const (
	ReasonHydration      Reason = "hydration"
	ReasonCategorization Reason = "categorization"
	ReasonFingerprint    Reason = "fingerprint"
	ReasonPackaging      Reason = "packaging"
	ReasonRateCheck      Reason = "rate_check"
	ReasonSession        Reason = "session"
	ReasonShipmentSync   Reason = "shipment_sync"
	ReasonLabelQueue     Reason = "label_queue"
)

// AllReasons lists every reason the evaluator can emit.
var AllReasons = []Reason{
	ReasonHydration,
	ReasonCategorization,
	ReasonFingerprint,
	ReasonPackaging,
	ReasonRateCheck,
	ReasonSession,
	ReasonShipmentSync,
	ReasonLabelQueue,
}

func (r Reason) String() string { return string(r) }

// ParseReason validates a reason name.
func ParseReason(value string) (Reason, error) {
	for _, r := range AllReasons {
		if string(r) == value {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown reason %q", value)
}

var subphaseReasons = map[shipment.Subphase]Reason{
	shipment.SubphaseNeedsHydration:      ReasonHydration,
	shipment.SubphaseNeedsCategorization: ReasonCategorization,
	shipment.SubphaseNeedsFingerprint:    ReasonFingerprint,
	shipment.SubphaseNeedsPackaging:      ReasonPackaging,
	shipment.SubphaseNeedsRateCheck:      ReasonRateCheck,
	shipment.SubphaseNeedsSession:        ReasonSession,
}

var phaseReasons = map[shipment.Phase]Reason{
	shipment.PhaseSessionCreated: ReasonShipmentSync,
	shipment.PhasePackingReady:   ReasonLabelQueue,
}

// reasonsFor returns what entering (phase, subphase) schedules.
func reasonsFor(phase shipment.Phase, subphase shipment.Subphase) []Reason {
	if phase == shipment.PhaseAwaitingDecisions {
		if r, ok := subphaseReasons[subphase]; ok {
			return []Reason{r}
		}
		return nil
	}
	if r, ok := phaseReasons[phase]; ok {
		return []Reason{r}
	}
	return nil
}

// Strings converts reasons for persistence.
func Strings(reasons []Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
