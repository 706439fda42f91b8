// Package services defines shared utilities consumed by the side-effect
// handlers and collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp shipment IDs, reasons, queue names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into the retry taxonomy (transient vs permanent).
//   - StatusError, which classifies collaborator HTTP responses so handlers do
//     not repeat status-code switches.
//
// Subpackages hold the HTTP clients for the order-catalog, carrier-rate,
// picking-session, and carrier systems.
package services
