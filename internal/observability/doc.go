// Package observability holds the process-local counters served by
// /api/status and the OpenTelemetry instruments and spans emitted by the
// engine and dispatchers.
//
// Stats is always on. The OTel Recorder and Tracer bind to the global
// providers when telemetry.enabled is set and are no-ops otherwise. Setup
// installs SDK providers whose exporters write metrics and spans to the
// structured logger.
package observability
