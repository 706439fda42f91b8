// Package api defines the wire-format types shared by the HTTP monitoring
// surface and the CLI. It translates engine, queue, and shipment models into
// transport-friendly DTOs so consumers never depend on internal types.
//
// # Key Types
//
// StatusResponse: process counters, recent transitions, engine tick summary,
// and per-queue entry counts.
//
// PhasesResponse: shipment counts grouped by phase and subphase.
//
// QueueEntry: one queue entry, used for dead-letter listings.
//
// ShipmentView / HistoryEntry: a shipment record and its transition trail.
//
// # Services
//
// QueueService and ShipmentService wrap the queues and the shipment store and
// return DTOs. The daemon's HTTP handlers and the CLI both go through them.
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds and
// are omitted when unset.
package api
