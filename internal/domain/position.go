package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether the order needs no further reconciliation.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Order represents a limit order submitted by the bot.
type Order struct {
	ID        string // internal UUID, assigned by the trade store
	OrderID   int64  // exchange order ID
	Symbol    string
	Side      Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
}

// PositionHistory represents a completed round trip (buy and final sell).
type PositionHistory struct {
	ID          string
	Symbol      string
	Quantity    decimal.Decimal
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	RealizedPnL decimal.Decimal
	ExitReason  string // "safety" or "profit"
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// SymbolFilters holds the exchange trading rules for one symbol.
type SymbolFilters struct {
	Symbol      string
	LotStep     decimal.Decimal // quantity grid step
	MinQuantity decimal.Decimal
	TickSize    decimal.Decimal // price grid step
	MinNotional decimal.Decimal
}
