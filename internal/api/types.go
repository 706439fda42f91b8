package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueCounts summarizes one queue by entry state.
type QueueCounts struct {
	Pending int `json:"pending"`
	Leased  int `json:"leased"`
	Dead    int `json:"dead"`
}

// QueueEntry describes a queue entry in a transport-friendly format.
type QueueEntry struct {
	ID             int64           `json:"id"`
	Queue          string          `json:"queue"`
	ShipmentID     string          `json:"shipmentId"`
	Reason         string          `json:"reason"`
	State          string          `json:"state"`
	Attempts       int             `json:"attempts"`
	NextVisibleAt  string          `json:"nextVisibleAt,omitempty"`
	LeaseOwner     string          `json:"leaseOwner,omitempty"`
	LeaseExpiresAt string          `json:"leaseExpiresAt,omitempty"`
	LastError      string          `json:"lastError,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	DeadAt         string          `json:"deadAt,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// TransitionView is one entry of the recent-transitions ring.
type TransitionView struct {
	ShipmentID string   `json:"shipmentId"`
	From       string   `json:"from"`
	To         string   `json:"to"`
	Reasons    []string `json:"reasons,omitempty"`
	At         string   `json:"at"`
}

// TickSummary mirrors the counts of the engine's last tick.
type TickSummary struct {
	Selected     int `json:"selected"`
	Evaluated    int `json:"evaluated"`
	Transitioned int `json:"transitioned"`
	Skipped      int `json:"skipped"`
	Discarded    int `json:"discarded"`
	Failed       int `json:"failed"`
}

// EngineStatus summarizes lifecycle engine execution state.
type EngineStatus struct {
	Running    bool        `json:"running"`
	LastError  string      `json:"lastError,omitempty"`
	LastTickAt string      `json:"lastTickAt,omitempty"`
	LastTick   TickSummary `json:"lastTick"`
}

// StatusResponse is the /api/status payload.
type StatusResponse struct {
	InstanceID        string                 `json:"instanceId"`
	Running           bool                   `json:"running"`
	QueueLength       int64                  `json:"queueLength"`
	InflightCount     int64                  `json:"inflightCount"`
	ProcessedCount    int64                  `json:"processedCount"`
	ErrorCount        int64                  `json:"errorCount"`
	RecentTransitions []TransitionView       `json:"recentTransitions"`
	Engine            EngineStatus           `json:"engine"`
	Queues            map[string]QueueCounts `json:"queues"`
}

// PhaseCount is one row of the phase distribution.
type PhaseCount struct {
	Phase    string `json:"phase"`
	Subphase string `json:"subphase,omitempty"`
	Count    int    `json:"count"`
}

// PhasesResponse wraps the phase distribution.
type PhasesResponse struct {
	Phases []PhaseCount `json:"phases"`
	Total  int          `json:"total"`
}

// DeadLettersResponse wraps a dead-letter listing.
type DeadLettersResponse struct {
	Queue   string       `json:"queue"`
	Entries []QueueEntry `json:"entries"`
}

// ReplayRequest asks for dead entries of one queue to be replayed.
type ReplayRequest struct {
	Queue string  `json:"queue"`
	IDs   []int64 `json:"ids"`
}

// ReplayResponse reports how many entries went back to pending.
type ReplayResponse struct {
	Queue     string `json:"queue"`
	Requested int    `json:"requested"`
	Replayed  int64  `json:"replayed"`
}

// WakeResponse acknowledges a wake request.
type WakeResponse struct {
	ShipmentID string `json:"shipmentId"`
	Woken      bool   `json:"woken"`
}

// LineItem is one order line of a shipment.
type LineItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	IsKit    bool   `json:"isKit,omitempty"`
	Category string `json:"category,omitempty"`
}

// ShipmentView describes a shipment in a transport-friendly format.
type ShipmentView struct {
	ID                 string     `json:"id"`
	OrderNumber        string     `json:"orderNumber,omitempty"`
	Phase              string     `json:"phase"`
	Subphase           string     `json:"subphase,omitempty"`
	HoldState          string     `json:"holdState"`
	SeenOnHold         bool       `json:"seenOnHold"`
	FirstSeenAt        string     `json:"firstSeenAt,omitempty"`
	LastEvaluatedAt    string     `json:"lastEvaluatedAt,omitempty"`
	LineItems          []LineItem `json:"lineItems"`
	HydratedAt         string     `json:"hydratedAt,omitempty"`
	Fingerprint        string     `json:"fingerprint,omitempty"`
	PackagingID        string     `json:"packagingId,omitempty"`
	RateCheckedAt      string     `json:"rateCheckedAt,omitempty"`
	SessionRequestedAt string     `json:"sessionRequestedAt,omitempty"`
	SessionID          string     `json:"sessionId,omitempty"`
	SpotNumber         int        `json:"spotNumber,omitempty"`
	SessionState       string     `json:"sessionState,omitempty"`
	PickStartedAt      string     `json:"pickStartedAt,omitempty"`
	PickEndedAt        string     `json:"pickEndedAt,omitempty"`
	PickingIssue       string     `json:"pickingIssue,omitempty"`
	LabelCreatedAt     string     `json:"labelCreatedAt,omitempty"`
	InTransitAt        string     `json:"inTransitAt,omitempty"`
	DeliveredAt        string     `json:"deliveredAt,omitempty"`
	CancelledAt        string     `json:"cancelledAt,omitempty"`
	Problem            string     `json:"problem,omitempty"`
	WakeRequested      bool       `json:"wakeRequested"`
	UpdatedAt          string     `json:"updatedAt,omitempty"`
}

// HistoryEntry is one persisted transition of a shipment.
type HistoryEntry struct {
	ID      int64    `json:"id"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	Reasons []string `json:"reasons,omitempty"`
	At      string   `json:"at"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
