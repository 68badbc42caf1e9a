package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BookLevel is a single price level of one book side.
type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// DepthUpdate carries one depth event from the exchange stream.
// Price and quantity arrive as strings and are parsed on Apply.
type DepthUpdate struct {
	Symbol string
	Bids   [][2]string
	Asks   [][2]string
}

// OrderBook holds the current bid/ask ladders for a single symbol.
// It is not safe for concurrent use; the strategy pipeline owns it.
type OrderBook struct {
	Symbol string
	Bids   []BookLevel // sorted by price descending
	Asks   []BookLevel // sorted by price ascending
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{Symbol: symbol}
}

// Apply replaces both book sides with the update's contents. Rows that
// fail to parse are skipped. An empty side in the update empties the
// stored side, so price-dependent operations block until the feed
// shows levels again. Applying the same update twice yields the same
// state.
func (b *OrderBook) Apply(update DepthUpdate) {
	b.Bids = parseSide(update.Bids)
	sort.Slice(b.Bids, func(i, j int) bool {
		return b.Bids[i].Price.GreaterThan(b.Bids[j].Price)
	})
	b.Asks = parseSide(update.Asks)
	sort.Slice(b.Asks, func(i, j int) bool {
		return b.Asks[i].Price.LessThan(b.Asks[j].Price)
	})
}

func parseSide(rows [][2]string) []BookLevel {
	levels := make([]BookLevel, 0, len(rows))
	for _, row := range rows {
		price, err := decimal.NewFromString(row[0])
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(row[1])
		if err != nil {
			continue
		}
		if qty.IsZero() {
			continue
		}
		levels = append(levels, BookLevel{Price: price, Quantity: qty})
	}
	return levels
}

// BestBid returns the highest bid. ok is false when the side is empty;
// callers must skip the cycle rather than treat the price as zero.
func (b *OrderBook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask. ok is false when the side is empty.
func (b *OrderBook) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}
