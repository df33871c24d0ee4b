package engine

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/driftware/drip/internal/domain"
)

// quoteBuffer bounds the per-symbol quote backlog. When the consumer lags the
// stream, newer quotes are dropped; a fresher one always follows.
const quoteBuffer = 64

// symbolState holds one symbol's trading state for the current day. All
// fields behind mu are mutated only under it, serializing the daily reset
// against quote-driven evaluation.
type symbolState struct {
	symbol  string
	enabled []domain.Trigger

	mu           sync.Mutex
	pending      []domain.Trigger
	failures     int
	pricingReady bool
	refPrices    map[domain.Trigger]decimal.Decimal

	quotes chan domain.Quote
}

// newSymbolState starts with the full trigger set armed, so a process started
// mid-day trades on the first qualifying quote. The daily purchase still waits
// for the day-open reset.
func newSymbolState(symbol string, enabled []domain.Trigger) *symbolState {
	return &symbolState{
		symbol:    symbol,
		enabled:   enabled,
		pending:   append([]domain.Trigger(nil), enabled...),
		refPrices: make(map[domain.Trigger]decimal.Decimal),
		quotes:    make(chan domain.Quote, quoteBuffer),
	}
}

// reset re-arms every enabled trigger for a new trading day.
func (s *symbolState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append([]domain.Trigger(nil), s.enabled...)
	s.failures = 0
	s.pricingReady = false
}

// take removes trig from the pending set, reporting whether it was present.
// A trigger must be taken before its order attempt begins; that is what keeps
// a given kind at most once in flight.
func (s *symbolState) take(trig domain.Trigger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.pending {
		if t == trig {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// collectFiring evaluates every pending trigger against the ask price and
// removes the ones that fire, returning them for dispatch. Removal happens
// here, before any blocking call, so a later quote cannot fire the same
// trigger while an attempt is in flight.
func (s *symbolState) collectFiring(ask decimal.Decimal) []domain.Trigger {
	if !ask.IsPositive() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var fired, keep []domain.Trigger
	for _, trig := range s.pending {
		if s.firesLocked(trig, ask) {
			fired = append(fired, trig)
		} else {
			keep = append(keep, trig)
		}
	}
	s.pending = keep
	return fired
}

// firesLocked holds the per-kind firing condition. Callers hold mu.
func (s *symbolState) firesLocked(trig domain.Trigger, ask decimal.Decimal) bool {
	if trig.Kind == domain.TriggerDailyPurchase {
		// fires at day-open only, never from a quote
		return false
	}

	ref, ok := s.refPrices[trig]
	if !ok {
		// reference not yet known: not eligible, not an error
		return false
	}
	return ask.LessThan(ref)
}

// snapshotPending returns a copy of the pending set for inspection.
func (s *symbolState) snapshotPending() []domain.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Trigger(nil), s.pending...)
}
