// Package engine contains the per-symbol daily trading decision logic: which
// purchase triggers remain eligible today, what reference prices they compare
// against, and how failed order attempts are retried and abandoned.
package engine

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/driftware/drip/internal/domain"
	"github.com/driftware/drip/internal/metrics"
)

// brokerAPI is the slice of the brokerage client the engine needs.
type brokerAPI interface {
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error)
	GetClock(ctx context.Context) (domain.Clock, error)
}

// Engine routes quotes to per-symbol trading states and dispatches order
// attempts for triggers that fire. One consumer goroutine per symbol
// serializes quote handling; order attempts run as independent goroutines.
type Engine struct {
	broker     brokerAPI
	prices     *referencePrices
	guard      *CloseGuard
	logger     *zap.Logger
	notional   decimal.Decimal
	failureCap int
	states     map[string]*symbolState

	consumers sync.WaitGroup
	inflight  sync.WaitGroup
}

// New builds an engine for the given symbols, all sharing the same enabled
// trigger set.
func New(broker brokerAPI, guard *CloseGuard, logger *zap.Logger, symbols []string,
	triggers []domain.Trigger, notional decimal.Decimal, failureCap int) *Engine {

	states := make(map[string]*symbolState, len(symbols))
	for _, symbol := range symbols {
		states[symbol] = newSymbolState(symbol, triggers)
	}

	return &Engine{
		broker:     broker,
		prices:     &referencePrices{broker: broker},
		guard:      guard,
		logger:     logger.With(zap.String("component", "engine")),
		notional:   notional,
		failureCap: failureCap,
		states:     states,
	}
}

// Run starts one quote consumer per symbol. The consumers stop when ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	for _, st := range e.states {
		st := st
		e.consumers.Add(1)
		go func() {
			defer e.consumers.Done()
			e.consumeQuotes(ctx, st)
		}()
	}
}

// HandleQuote routes a quote to its symbol's consumer. Quotes for unknown
// symbols are dropped, as are quotes that arrive while the consumer is still
// busy with a full backlog.
func (e *Engine) HandleQuote(q domain.Quote) {
	st, ok := e.states[q.Symbol]
	if !ok {
		return
	}
	metrics.QuotesReceived.WithLabelValues(q.Symbol).Inc()

	select {
	case st.quotes <- q:
	default:
		// consumer is behind; the next quote supersedes this one
	}
}

// Wait blocks until the quote consumers have exited and every in-flight order
// attempt has finished. If Run was started, its context must be cancelled
// first; no consumer may still be dispatching attempts while Wait runs.
func (e *Engine) Wait() {
	e.consumers.Wait()
	e.inflight.Wait()
}

func (e *Engine) consumeQuotes(ctx context.Context, st *symbolState) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-st.quotes:
			e.evaluate(ctx, st, q)
		}
	}
}

// evaluate refreshes reference prices on the first quote of the day, then
// dispatches an order attempt for every pending trigger the quote satisfies.
func (e *Engine) evaluate(ctx context.Context, st *symbolState, q domain.Quote) {
	e.ensurePricing(ctx, st)

	for _, trig := range st.collectFiring(q.AskPrice) {
		e.logger.Info("trigger fired",
			zap.String("symbol", st.symbol),
			zap.String("trigger", trig.String()),
			zap.String("ask", q.AskPrice.String()))
		metrics.TriggersFired.WithLabelValues(st.symbol, trig.String()).Inc()
		e.spawnAttempt(ctx, st, trig)
	}
}

// ResetDay re-arms every symbol for the new trading day and fires the
// day-open purchase where enabled. Called by the schedule coordinator.
func (e *Engine) ResetDay(ctx context.Context) {
	for _, st := range e.states {
		e.resetSymbol(ctx, st)
	}
}

func (e *Engine) resetSymbol(ctx context.Context, st *symbolState) {
	st.reset()

	daily := domain.Trigger{Kind: domain.TriggerDailyPurchase}
	if st.take(daily) {
		e.logger.Info("invoking daily purchase", zap.String("symbol", st.symbol))
		metrics.TriggersFired.WithLabelValues(st.symbol, daily.String()).Inc()
		e.spawnAttempt(ctx, st, daily)
	}
}

// ensurePricing performs the lazy once-per-day reference refresh before the
// first evaluation.
func (e *Engine) ensurePricing(ctx context.Context, st *symbolState) {
	st.mu.Lock()
	ready := st.pricingReady
	st.mu.Unlock()

	if !ready {
		e.refreshPricing(ctx, st)
	}
}

// refreshPricing reloads every reference price the symbol's triggers need.
// A failed lookup keeps the previously cached entry; a lookup that succeeds
// with no data clears it. The state counts as initialized either way so a
// flaky brokerage does not cause a refetch storm.
func (e *Engine) refreshPricing(ctx context.Context, st *symbolState) {
	type resolved struct {
		trig    domain.Trigger
		price   decimal.Decimal
		defined bool
	}
	var updates []resolved

	for _, trig := range st.enabled {
		if !trig.NeedsReference() {
			continue
		}

		var (
			price   decimal.Decimal
			defined bool
			err     error
		)
		switch trig.Kind {
		case domain.TriggerPriceBelowAverage:
			price, defined, err = e.prices.overallAverage(ctx, st.symbol)
		case domain.TriggerPriceBelowLastN:
			price, defined, err = e.prices.lastNAverage(ctx, st.symbol, trig.Window)
		}
		if err != nil {
			e.logger.Warn("reference price refresh failed",
				zap.String("symbol", st.symbol),
				zap.String("trigger", trig.String()),
				zap.Error(err))
			continue
		}
		updates = append(updates, resolved{trig: trig, price: price, defined: defined})
	}

	st.mu.Lock()
	for _, u := range updates {
		if u.defined {
			st.refPrices[u.trig] = u.price
		} else {
			delete(st.refPrices, u.trig)
		}
	}
	st.pricingReady = true
	st.mu.Unlock()
}
