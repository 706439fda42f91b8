// Package shipment is the entity store for shipment records.
//
// Ingest and side-effect handlers write shipment attributes through the
// narrow Store methods (SetLineItems, ApplyHydration, RecordSession,
// RecordSignal, ...). Only the lifecycle engine writes phase, subphase, and
// last_evaluated_at, through Touch and UpdateStateTx; the latter also appends
// the shipment_transitions audit row holding a JSON snapshot of the previous
// state.
package shipment
