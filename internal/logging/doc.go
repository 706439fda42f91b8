// Package logging assembles structured slog loggers and formatting helpers used
// across shipflow.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so engine and dispatcher code can
// automatically tag log lines with shipment IDs, reasons, queue names, and
// correlation IDs. The console handler lifts the component, shipment id,
// phase, queue and reason into the line prefix so a tail of the log reads
// per shipment.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape as the rest of the system.
package logging
