// Package remote wraps collaborator HTTP endpoints.
//
// The order-catalog, carrier-rate, and picking-session systems are treated as
// opaque (shipmentId) -> error calls. Responses are classified through
// services.StatusError so the dispatcher can decide between retry and
// dead-letter without knowing which system answered.
package remote
