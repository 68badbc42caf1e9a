package domain

import "errors"

var (
	// ErrBookSideEmpty is returned when a best bid/ask is requested
	// from an empty book side.
	ErrBookSideEmpty = errors.New("order book side is empty")

	// ErrBelowMinQuantity is returned when a computed order size falls
	// below the exchange minimum. Sizes are never rounded up.
	ErrBelowMinQuantity = errors.New("quantity below exchange minimum")

	// ErrBelowMinNotional is returned when order value falls below the
	// exchange minimum notional.
	ErrBelowMinNotional = errors.New("notional below exchange minimum")

	// ErrInsufficientHistory is returned when the price history is too
	// short to compute the configured moving averages.
	ErrInsufficientHistory = errors.New("insufficient price history")
)
