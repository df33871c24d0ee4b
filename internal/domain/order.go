package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
)

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
)

// OrderStatus is the brokerage-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusNew      OrderStatus = "new"
	OrderStatusCanceled OrderStatus = "canceled"
)

// OrderRequest is a single notional order submission. It is ephemeral and
// never persisted.
type OrderRequest struct {
	Symbol        string
	Notional      decimal.Decimal
	Side          OrderSide
	Type          OrderType
	TimeInForce   TimeInForce
	ClientOrderID string
}

// Order is a brokerage order as reported back by the trading API.
type Order struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	Status         OrderStatus
	Notional       decimal.Decimal
	FilledAvgPrice decimal.Decimal
	FilledAt       time.Time
}

// OrderFilter narrows an order-history query.
type OrderFilter struct {
	// Status is the brokerage listing bucket: "open", "closed" or "all".
	Status string
	Side   OrderSide
	// Symbols limits the listing to the given tickers. Empty means all.
	Symbols []string
	// Limit caps the number of returned orders, newest first. Zero means the
	// brokerage default.
	Limit int
}

// Position is an open holding for one symbol.
type Position struct {
	Symbol        string
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
}

// Clock is the brokerage market clock.
type Clock struct {
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}
