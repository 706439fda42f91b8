// Package lifecycle derives a shipment's phase and subphase from its stored
// attributes.
//
// Evaluate is pure: terminal signals first, then the hold gate, then carrier
// and session signals, then the awaiting_decisions chain. The reasons it
// returns are the side effects to schedule when the derived pair differs from
// the stored one. Phase ranks define the only allowed direction of travel;
// the engine discards any result that ranks below the stored phase.
package lifecycle
