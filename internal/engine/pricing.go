package engine

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/driftware/drip/internal/domain"
)

// referencePrices resolves the comparison prices price-conditioned triggers
// evaluate against. A (price, false, nil) result means the reference is
// legitimately undefined: no open position, or no filled buys yet. Triggers
// comparing against an undefined reference must not fire.
type referencePrices struct {
	broker brokerAPI
}

// overallAverage returns the average entry price of the symbol's open
// position. defined is false when the symbol has no open position.
func (r *referencePrices) overallAverage(ctx context.Context, symbol string) (price decimal.Decimal, defined bool, err error) {
	positions, err := r.broker.GetPositions(ctx)
	if err != nil {
		return decimal.Decimal{}, false, errors.Wrap(err, "failed to get positions")
	}

	for _, p := range positions {
		if p.Symbol == symbol {
			return p.AvgEntryPrice, true, nil
		}
	}
	return decimal.Decimal{}, false, nil
}

// lastNAverage returns the mean fill price of the most recent n filled buy
// orders for the symbol. defined is false when no matching fill exists.
func (r *referencePrices) lastNAverage(ctx context.Context, symbol string, n int) (price decimal.Decimal, defined bool, err error) {
	orders, err := r.broker.GetOrders(ctx, domain.OrderFilter{
		Status:  "closed",
		Side:    domain.SideBuy,
		Symbols: []string{symbol},
		Limit:   n,
	})
	if err != nil {
		return decimal.Decimal{}, false, errors.Wrapf(err, "failed to get last %d orders", n)
	}

	sum := decimal.Zero
	count := 0
	for _, o := range orders {
		if o.Symbol != symbol || o.Status != domain.OrderStatusFilled || !o.FilledAvgPrice.IsPositive() {
			continue
		}
		sum = sum.Add(o.FilledAvgPrice)
		count++
	}
	if count == 0 {
		return decimal.Decimal{}, false, nil
	}
	return sum.Div(decimal.NewFromInt(int64(count))), true, nil
}
