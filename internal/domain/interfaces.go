package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Exchange defines the interface for interacting with a crypto exchange.
type Exchange interface {
	GetServerTime(ctx context.Context) (int64, error)
	GetSymbolFilters(ctx context.Context, symbol string) (*SymbolFilters, error)
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	GetHistoricalCloses(ctx context.Context, symbol, interval string, limit int) ([]decimal.Decimal, error)

	PlaceLimitOrder(ctx context.Context, symbol string, side Side, quantity, price decimal.Decimal) (*Order, error)
	GetOrderStatus(ctx context.Context, symbol string, orderID int64) (OrderStatus, error)

	// SubscribeDepth delivers depth updates serially to the callback
	// until the context is canceled.
	SubscribeDepth(ctx context.Context, symbol string, callback func(DepthUpdate)) error
}

// TradeRepository defines storage operations for the audit log.
type TradeRepository interface {
	SaveTrade(ctx context.Context, order *Order) error
	ListTrades(ctx context.Context, limit int) ([]*Order, error)

	SavePositionHistory(ctx context.Context, history *PositionHistory) error
	ListPositionHistory(ctx context.Context, limit int) ([]*PositionHistory, error)
}
