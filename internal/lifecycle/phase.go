package lifecycle

import (
	"errors"
	"fmt"

	"shipflow/internal/shipment"
)

// ErrUnknownPhase is returned for phase or subphase names outside the lifecycle.
var ErrUnknownPhase = errors.New("unknown phase")

// ranks orders phases along the fulfillment path. picking_issues is off-path
// and shares the rank of picking; the terminal phases share the top rank.
var ranks = map[shipment.Phase]int{
	shipment.PhaseReadyToFulfill:    10,
	shipment.PhaseReadyToSession:    20,
	shipment.PhaseAwaitingDecisions: 30,
	shipment.PhaseSessionCreated:    40,
	shipment.PhaseReadyToPick:       50,
	shipment.PhasePicking:           60,
	shipment.PhasePickingIssues:     60,
	shipment.PhasePackingReady:      70,
	shipment.PhaseOnDock:            80,
	shipment.PhaseInTransit:         90,
	shipment.PhaseDelivered:         100,
	shipment.PhaseCancelled:         100,
	shipment.PhaseProblem:           100,
}

const terminalRank = 100

// Phases lists every phase in rank order.
var Phases = []shipment.Phase{
	shipment.PhaseReadyToFulfill,
	shipment.PhaseReadyToSession,
	shipment.PhaseAwaitingDecisions,
	shipment.PhaseSessionCreated,
	shipment.PhaseReadyToPick,
	shipment.PhasePicking,
	shipment.PhasePickingIssues,
	shipment.PhasePackingReady,
	shipment.PhaseOnDock,
	shipment.PhaseInTransit,
	shipment.PhaseDelivered,
	shipment.PhaseCancelled,
	shipment.PhaseProblem,
}

// Subphases lists the awaiting_decisions chain in evaluation order.
var Subphases = []shipment.Subphase{
	shipment.SubphaseNeedsHydration,
	shipment.SubphaseNeedsCategorization,
	shipment.SubphaseNeedsFingerprint,
	shipment.SubphaseNeedsPackaging,
	shipment.SubphaseNeedsRateCheck,
	shipment.SubphaseNeedsSession,
}

// Rank returns the integer rank of p.
func Rank(p shipment.Phase) (int, error) {
	r, ok := ranks[p]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPhase, p)
	}
	return r, nil
}

// Compare returns -1, 0, or 1 as a ranks below, equal to, or above b.
func Compare(a, b shipment.Phase) (int, error) {
	ra, err := Rank(a)
	if err != nil {
		return 0, err
	}
	rb, err := Rank(b)
	if err != nil {
		return 0, err
	}
	switch {
	case ra < rb:
		return -1, nil
	case ra > rb:
		return 1, nil
	default:
		return 0, nil
	}
}

// IsTerminal reports whether p ends the lifecycle.
func IsTerminal(p shipment.Phase) bool {
	return ranks[p] == terminalRank
}

// ParsePhase validates a phase name.
func ParsePhase(value string) (shipment.Phase, error) {
	p := shipment.Phase(value)
	if _, ok := ranks[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, value)
	}
	return p, nil
}

// ParseSubphase validates a subphase name. The empty string is valid.
func ParseSubphase(value string) (shipment.Subphase, error) {
	if value == "" {
		return shipment.SubphaseNone, nil
	}
	for _, s := range Subphases {
		if string(s) == value {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: subphase %q", ErrUnknownPhase, value)
}
