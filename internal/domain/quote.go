package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a single top-of-book update for one symbol, as delivered by the
// market-data stream.
type Quote struct {
	Symbol    string
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	Timestamp time.Time
}
