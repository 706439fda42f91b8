package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shipflow/internal/coord"
	"shipflow/internal/lifecycle"
	"shipflow/internal/logging"
	"shipflow/internal/observability"
	"shipflow/internal/services"
	"shipflow/internal/shipment"
)

// TickResult counts what one tick did with its batch.
type TickResult struct {
	Selected     int `json:"selected"`
	Evaluated    int `json:"evaluated"`
	Transitioned int `json:"transitioned"`
	Skipped      int `json:"skipped"`
	Discarded    int `json:"discarded"`
	Failed       int `json:"failed"`
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeTransitioned
	outcomeDiscarded
	outcomeSkipped
)

// entryPayload travels with every enqueued side effect.
type entryPayload struct {
	Phase    shipment.Phase    `json:"phase"`
	Subphase shipment.Subphase `json:"subphase,omitempty"`
	At       int64             `json:"at"`
}

// Tick evaluates one batch of due shipments. Failures on individual shipments
// are counted and logged; only a failure to select the batch is returned.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	start := e.now()
	var res TickResult

	ids, err := e.store.Due(ctx, e.staleness, e.batchSize)
	if err != nil {
		return res, fmt.Errorf("select due shipments: %w", err)
	}
	res.Selected = len(ids)

	correlationID := uuid.NewString()
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		shipCtx := services.WithRequestID(services.WithShipmentID(ctx, id), correlationID)
		out, err := e.evaluate(shipCtx, id)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			res.Failed++
			logging.ErrorWithContext(logging.WithContext(shipCtx, e.logger), "shipment evaluation failed", "evaluation_failed",
				logging.Error(err),
				logging.ErrorHint("the shipment is retried on the next tick"),
			)
			continue
		}
		switch out {
		case outcomeSkipped:
			res.Skipped++
		case outcomeTransitioned:
			res.Evaluated++
			res.Transitioned++
		case outcomeDiscarded:
			res.Evaluated++
			res.Discarded++
		default:
			res.Evaluated++
		}
	}

	e.recorder.RecordTick(ctx, res.Selected, res.Transitioned, res.Failed, e.now().Sub(start))
	e.setLastTick(start, res)
	if res.Selected > 0 {
		e.logger.Debug("tick complete",
			logging.String(logging.FieldCorrelationID, correlationID),
			logging.Int("selected", res.Selected),
			logging.Int("transitioned", res.Transitioned),
			logging.Int("skipped", res.Skipped),
			logging.Int("discarded", res.Discarded),
			logging.Int("failed", res.Failed),
		)
	}
	return res, ctx.Err()
}

func (e *Engine) evaluate(ctx context.Context, id string) (outcome, error) {
	out := outcomeSkipped
	ran, err := e.coordinator.WithLock(ctx, coord.ShipmentScope(id), e.lockTTL, func(ctx context.Context) error {
		ctx, span := e.tracer.StartEvaluation(ctx, id)
		var err error
		out, err = e.evaluateLocked(ctx, id)
		observability.EndSpan(span, err)
		return err
	})
	if err != nil {
		return outcomeSkipped, err
	}
	if !ran {
		return outcomeSkipped, nil
	}
	return out, nil
}

func (e *Engine) evaluateLocked(ctx context.Context, id string) (outcome, error) {
	logger := logging.WithContext(ctx, e.logger)
	now := e.now()

	shp, err := e.store.Get(ctx, id)
	if err != nil {
		return outcomeSkipped, err
	}
	if shp.IsTerminal() {
		return outcomeUnchanged, e.store.Touch(ctx, id, now)
	}

	result := lifecycle.Evaluate(shp, now, e.evalOpts)
	if !result.Changed {
		return outcomeUnchanged, e.store.Touch(ctx, id, now)
	}

	cmp, err := lifecycle.Compare(result.Phase, shp.Phase)
	if err != nil {
		return outcomeSkipped, err
	}
	if cmp < 0 {
		logging.WarnWithContext(logger, "backward transition discarded", "transition_discarded",
			logging.Phase(string(shp.Phase), string(shp.Subphase)),
			logging.String("derived", string(result.Phase)+"/"+string(result.Subphase)),
			logging.String(logging.FieldImpact, "stored phase kept"),
		)
		e.recorder.RecordTransition(ctx, string(result.Phase), true)
		return outcomeDiscarded, e.store.Touch(ctx, id, now)
	}

	if err := e.commit(ctx, shp, result, now); err != nil {
		if errors.Is(err, shipment.ErrStaleState) {
			logger.Debug("shipment changed concurrently, skipping", logging.Error(err))
			return outcomeSkipped, nil
		}
		return outcomeSkipped, err
	}

	from := string(shp.Phase)
	if shp.Subphase != "" {
		from += "/" + string(shp.Subphase)
	}
	to := string(result.Phase)
	if result.Subphase != "" {
		to += "/" + string(result.Subphase)
	}
	reasons := lifecycle.Strings(result.Reasons)
	e.stats.RecordTransition(observability.TransitionRecord{
		ShipmentID: id,
		From:       from,
		To:         to,
		Reasons:    reasons,
		At:         now,
	})
	e.recorder.RecordTransition(ctx, string(result.Phase), false)
	logger.Info("shipment transitioned",
		logging.EventType("phase_transition"),
		logging.String("from", from),
		logging.Phase(string(result.Phase), string(result.Subphase)),
		logging.Any("reasons", reasons),
	)
	return outcomeTransitioned, nil
}

// commit writes the transition and its side effects in one transaction.
func (e *Engine) commit(ctx context.Context, shp *shipment.Shipment, result lifecycle.Result, now time.Time) error {
	payload, err := json.Marshal(entryPayload{
		Phase:    result.Phase,
		Subphase: result.Subphase,
		At:       now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	return e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.store.UpdateStateTx(ctx, tx, shipment.StateChange{
			Previous: shp,
			Phase:    result.Phase,
			Subphase: result.Subphase,
			Reasons:  lifecycle.Strings(result.Reasons),
			At:       now,
		}); err != nil {
			return err
		}
		for _, reason := range result.Reasons {
			route, err := e.routes.Lookup(reason)
			if err != nil {
				return err
			}
			q, ok := e.queues[route.Queue]
			if !ok {
				return fmt.Errorf("queue %q for reason %q is not configured", route.Queue, reason)
			}
			inserted, err := q.EnqueueIfAbsentTx(ctx, tx, shp.ID, string(reason), payload)
			if err != nil {
				return err
			}
			if !inserted {
				e.logger.Debug("side effect already queued",
					logging.ShipmentID(shp.ID),
					logging.Reason(string(reason)),
					logging.Queue(route.Queue),
				)
			}
		}
		return nil
	})
}

func (e *Engine) setLastTick(at time.Time, res TickResult) {
	e.mu.Lock()
	e.lastTickAt = at
	e.lastResult = res
	e.mu.Unlock()
}

func (e *Engine) setLastError(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}
