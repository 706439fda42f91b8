package shipment

import (
	"encoding/json"
	"time"
)

// Phase is the coarse lifecycle position of a shipment.
type Phase string

const (
	PhaseReadyToFulfill    Phase = "ready_to_fulfill"
	PhaseReadyToSession    Phase = "ready_to_session"
	PhaseAwaitingDecisions Phase = "awaiting_decisions"
	PhaseSessionCreated    Phase = "session_created"
	PhaseReadyToPick       Phase = "ready_to_pick"
	PhasePicking           Phase = "picking"
	PhasePickingIssues     Phase = "picking_issues"
	PhasePackingReady      Phase = "packing_ready"
	PhaseOnDock            Phase = "on_dock"
	PhaseInTransit         Phase = "in_transit"
	PhaseDelivered         Phase = "delivered"
	PhaseCancelled         Phase = "cancelled"
	PhaseProblem           Phase = "problem"
)

// TerminalPhases are never re-evaluated once stored.
var TerminalPhases = []Phase{PhaseDelivered, PhaseCancelled, PhaseProblem}

// Subphase names the first unmet decision inside awaiting_decisions.
type Subphase string

const (
	SubphaseNone                Subphase = ""
	SubphaseNeedsHydration      Subphase = "needs_hydration"
	SubphaseNeedsCategorization Subphase = "needs_categorization"
	SubphaseNeedsFingerprint    Subphase = "needs_fingerprint"
	SubphaseNeedsPackaging      Subphase = "needs_packaging"
	SubphaseNeedsRateCheck      Subphase = "needs_rate_check"
	SubphaseNeedsSession        Subphase = "needs_session"
)

// HoldState mirrors the order system's hold flag.
type HoldState string

const (
	HoldOnHold   HoldState = "on_hold"
	HoldPending  HoldState = "pending"
	HoldReleased HoldState = "released"
)

// ParseHoldState validates a hold state string.
func ParseHoldState(value string) (HoldState, bool) {
	switch HoldState(value) {
	case HoldOnHold, HoldPending, HoldReleased:
		return HoldState(value), true
	}
	return "", false
}

// SessionState is the picking-session status reported by the session system.
type SessionState string

const (
	SessionNone        SessionState = ""
	SessionNew         SessionState = "new"
	SessionActive      SessionState = "active"
	SessionInactive    SessionState = "inactive"
	SessionReadyToShip SessionState = "readyToShip"
	SessionClosed      SessionState = "closed"
)

// ParseSessionState validates a session state string.
func ParseSessionState(value string) (SessionState, bool) {
	switch SessionState(value) {
	case SessionNone, SessionNew, SessionActive, SessionInactive, SessionReadyToShip, SessionClosed:
		return SessionState(value), true
	}
	return "", false
}

// LineItem is one order line. Kits are exploded into components by hydration.
type LineItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	IsKit    bool   `json:"isKit,omitempty"`
	Category string `json:"category,omitempty"`
}

// Shipment is the persisted lifecycle record.
type Shipment struct {
	ID                 string       `json:"id"`
	OrderNumber        string       `json:"orderNumber,omitempty"`
	Phase              Phase        `json:"phase"`
	Subphase           Subphase     `json:"subphase,omitempty"`
	HoldState          HoldState    `json:"holdState"`
	SeenOnHold         bool         `json:"seenOnHold"`
	FirstSeenAt        time.Time    `json:"firstSeenAt"`
	LastEvaluatedAt    *time.Time   `json:"lastEvaluatedAt,omitempty"`
	LineItems          []LineItem   `json:"lineItems"`
	HydratedAt         *time.Time   `json:"hydratedAt,omitempty"`
	Fingerprint        string       `json:"fingerprint,omitempty"`
	PackagingID        string       `json:"packagingId,omitempty"`
	RateCheckedAt      *time.Time   `json:"rateCheckedAt,omitempty"`
	SessionRequestedAt *time.Time   `json:"sessionRequestedAt,omitempty"`
	SessionID          string       `json:"sessionId,omitempty"`
	SpotNumber         int          `json:"spotNumber,omitempty"`
	SessionState       SessionState `json:"sessionState,omitempty"`
	PickStartedAt      *time.Time   `json:"pickStartedAt,omitempty"`
	PickEndedAt        *time.Time   `json:"pickEndedAt,omitempty"`
	PickingIssue       string       `json:"pickingIssue,omitempty"`
	LabelCreatedAt     *time.Time   `json:"labelCreatedAt,omitempty"`
	InTransitAt        *time.Time   `json:"inTransitAt,omitempty"`
	DeliveredAt        *time.Time   `json:"deliveredAt,omitempty"`
	CancelledAt        *time.Time   `json:"cancelledAt,omitempty"`
	Problem            string       `json:"problem,omitempty"`
	WakeRequested      bool         `json:"wakeRequested"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// IsTerminal reports whether the stored phase is final.
func (s *Shipment) IsTerminal() bool {
	if s == nil {
		return false
	}
	for _, p := range TerminalPhases {
		if s.Phase == p {
			return true
		}
	}
	return false
}

// Snapshot serializes the shipment for the transition audit trail.
func (s *Shipment) Snapshot() (json.RawMessage, error) {
	return json.Marshal(s)
}

// Transition is one recorded phase change.
type Transition struct {
	ID           int64           `json:"id"`
	ShipmentID   string          `json:"shipmentId"`
	FromPhase    Phase           `json:"fromPhase"`
	FromSubphase Subphase        `json:"fromSubphase,omitempty"`
	ToPhase      Phase           `json:"toPhase"`
	ToSubphase   Subphase        `json:"toSubphase,omitempty"`
	Reasons      []string        `json:"reasons"`
	Snapshot     json.RawMessage `json:"snapshot,omitempty"`
	At           time.Time       `json:"at"`
}

// PhaseCount is one row of the phase distribution.
type PhaseCount struct {
	Phase    Phase    `json:"phase"`
	Subphase Subphase `json:"subphase,omitempty"`
	Count    int      `json:"count"`
}

// Ingest carries the order-system fields used to create or refresh a shipment.
type Ingest struct {
	ID          string
	OrderNumber string
	HoldState   HoldState
}

// SessionUpdate is the session system's report for one shipment.
type SessionUpdate struct {
	SessionID  string
	SpotNumber int
	State      SessionState
}

// Signal names an external carrier, session, or order event.
type Signal string

const (
	SignalPickStarted     Signal = "pick_started"
	SignalPickEnded       Signal = "pick_ended"
	SignalPickingIssue    Signal = "picking_issue"
	SignalPickingResolved Signal = "picking_resolved"
	SignalLabelCreated    Signal = "label_created"
	SignalInTransit       Signal = "in_transit"
	SignalDelivered       Signal = "delivered"
	SignalCancelled       Signal = "cancelled"
	SignalProblem         Signal = "problem"
)

// Signals lists every accepted signal in display order.
var Signals = []Signal{
	SignalPickStarted,
	SignalPickEnded,
	SignalPickingIssue,
	SignalPickingResolved,
	SignalLabelCreated,
	SignalInTransit,
	SignalDelivered,
	SignalCancelled,
	SignalProblem,
}

// ParseSignal validates a signal name.
func ParseSignal(value string) (Signal, bool) {
	for _, s := range Signals {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}
