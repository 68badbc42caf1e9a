package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/vitos/crypto_scalper/internal/domain"
)

// PricingCalculator computes fees, break-even sell prices and exchange
// grid rounding. All arithmetic is decimal; float conversions happen
// only at the edges of the system.
type PricingCalculator struct {
	feeRate         decimal.Decimal
	minProfitMargin decimal.Decimal
	filters         *domain.SymbolFilters
}

func NewPricingCalculator(feeRate, minProfitMargin decimal.Decimal, filters *domain.SymbolFilters) *PricingCalculator {
	return &PricingCalculator{
		feeRate:         feeRate,
		minProfitMargin: minProfitMargin,
		filters:         filters,
	}
}

// Fee returns the trading fee for an order of the given quantity and price.
func (c *PricingCalculator) Fee(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price).Mul(c.feeRate)
}

// MinSellPrice returns the lowest sell price that covers the entry fee,
// the exit fee and the configured profit margin:
//
//	entry + entryFee/qty + exitFee/qty + entry*margin
//
// where the exit fee is taken at the margin-adjusted price. The result
// is always strictly above entry*(1+margin) for a positive fee rate.
func (c *PricingCalculator) MinSellPrice(entry, quantity decimal.Decimal) decimal.Decimal {
	entryFee := c.Fee(quantity, entry)
	exitFee := c.Fee(quantity, entry.Mul(decimal.NewFromInt(1).Add(c.minProfitMargin)))
	return entry.
		Add(entryFee.Div(quantity)).
		Add(exitFee.Div(quantity)).
		Add(entry.Mul(c.minProfitMargin))
}

// QuantityFor sizes an order from the quote notional at the given price,
// floored to the lot step. Sizes below the exchange minimum are rejected,
// never rounded up.
func (c *PricingCalculator) QuantityFor(notional, price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsZero() {
		return decimal.Zero, domain.ErrBookSideEmpty
	}
	qty := FloorToStep(notional.Div(price), c.filters.LotStep)
	if qty.LessThan(c.filters.MinQuantity) {
		return decimal.Zero, domain.ErrBelowMinQuantity
	}
	if !c.filters.MinNotional.IsZero() && qty.Mul(price).LessThan(c.filters.MinNotional) {
		return decimal.Zero, domain.ErrBelowMinNotional
	}
	return qty, nil
}

// BuyPrice snaps a buy price down to the tick grid.
func (c *PricingCalculator) BuyPrice(price decimal.Decimal) decimal.Decimal {
	return FloorToStep(price, c.filters.TickSize)
}

// SellPrice snaps a sell price to the tick grid without dropping below
// the floor: the floor is ceiled, a market price above it is floored.
func (c *PricingCalculator) SellPrice(price, floor decimal.Decimal) decimal.Decimal {
	minimum := CeilToStep(floor, c.filters.TickSize)
	snapped := FloorToStep(price, c.filters.TickSize)
	if snapped.LessThan(minimum) {
		return minimum
	}
	return snapped
}

// FloorToStep rounds value down to a multiple of step.
func FloorToStep(value, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// CeilToStep rounds value up to a multiple of step.
func CeilToStep(value, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return value
	}
	return value.Div(step).Ceil().Mul(step)
}
