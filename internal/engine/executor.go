package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftware/drip/internal/domain"
	"github.com/driftware/drip/internal/metrics"
)

// spawnAttempt runs one order attempt as an independent goroutine. The quote
// consumer does not wait for it; the trigger has already been removed from
// the pending set, so a concurrent quote cannot dispatch the same kind again.
func (e *Engine) spawnAttempt(ctx context.Context, st *symbolState, trig domain.Trigger) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.attemptOrder(ctx, st, trig)
	}()
}

// attemptOrder submits one fixed-notional market buy for the trigger.
// Failures never propagate: below the day's failure cap the trigger is
// re-queued for a later quote, at the cap it is dropped until the next daily
// reset. A close-guard abandon is a deliberate no-op, not a failure.
func (e *Engine) attemptOrder(ctx context.Context, st *symbolState, trig domain.Trigger) {
	if e.guard.Armed() {
		clock, err := e.broker.GetClock(ctx)
		switch {
		case err != nil:
			// transient clock failure: log and fall through to the submission
			e.logger.Warn("market clock check failed",
				zap.String("symbol", st.symbol),
				zap.Error(err))
		case !clock.IsOpen:
			e.logger.Info("market closed, abandoning order",
				zap.String("symbol", st.symbol),
				zap.String("trigger", trig.String()))
			metrics.OrdersAbandoned.WithLabelValues(st.symbol).Inc()
			return
		}
	}

	req := domain.OrderRequest{
		Symbol:        st.symbol,
		Notional:      e.notional,
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeMarket,
		TimeInForce:   domain.TimeInForceDay,
		ClientOrderID: uuid.NewString(),
	}

	if _, err := e.broker.CreateOrder(ctx, req); err != nil {
		e.recordFailure(st, trig, err)
		return
	}

	e.logger.Info("purchase placed",
		zap.String("symbol", st.symbol),
		zap.String("notional", e.notional.String()),
		zap.String("trigger", trig.String()))
	metrics.OrdersSubmitted.WithLabelValues(st.symbol, trig.String()).Inc()

	// subsequent comparisons should see the new fill
	e.refreshPricing(ctx, st)
}

// recordFailure counts an order failure against the day's budget and
// re-queues the trigger while a retry is still allowed.
func (e *Engine) recordFailure(st *symbolState, trig domain.Trigger, cause error) {
	st.mu.Lock()
	if st.failures < e.failureCap {
		st.failures++
	}
	retry := st.failures < e.failureCap
	if retry {
		st.pending = append(st.pending, trig)
	}
	failures := st.failures
	st.mu.Unlock()

	e.logger.Error("order attempt failed",
		zap.String("symbol", st.symbol),
		zap.String("trigger", trig.String()),
		zap.Int("failures", failures),
		zap.Bool("retry", retry),
		zap.Error(cause))
	metrics.OrderFailures.WithLabelValues(st.symbol).Inc()
}
