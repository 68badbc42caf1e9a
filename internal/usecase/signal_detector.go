package usecase

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vitos/crypto_scalper/internal/domain"
)

// SignalDetector keeps a rolling close-price history and reports
// short/long moving average crossovers. The history is seeded from
// historical candles at startup and can be re-seeded while running.
type SignalDetector struct {
	mu         sync.Mutex
	shortWin   int
	longWin    int
	maxHistory int
	closes     []decimal.Decimal
}

func NewSignalDetector(shortWindow, longWindow int) *SignalDetector {
	if shortWindow < 1 {
		shortWindow = 3
	}
	if longWindow <= shortWindow {
		longWindow = shortWindow * 2
	}
	return &SignalDetector{
		shortWin:   shortWindow,
		longWin:    longWindow,
		maxHistory: longWindow * 10,
	}
}

// Seed replaces the history with the given closes, oldest first.
func (d *SignalDetector) Seed(closes []decimal.Decimal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes = append(d.closes[:0], closes...)
	d.trim()
}

// Append adds one close to the history.
func (d *SignalDetector) Append(price decimal.Decimal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes = append(d.closes, price)
	d.trim()
}

func (d *SignalDetector) trim() {
	if len(d.closes) > d.maxHistory {
		d.closes = d.closes[len(d.closes)-d.maxHistory:]
	}
}

// MovingAverages returns the latest short and long simple moving averages.
func (d *SignalDetector) MovingAverages() (short, long decimal.Decimal, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.closes) < d.longWin {
		return decimal.Zero, decimal.Zero, domain.ErrInsufficientHistory
	}
	return sma(d.closes, d.shortWin), sma(d.closes, d.longWin), nil
}

// CrossedUp reports whether the short MA is above the long MA on the
// latest history point. One-buy-per-signal gating is the caller's job
// via the crossover-consumed flag and cooldown, not this comparison.
// With insufficient history it reports false.
func (d *SignalDetector) CrossedUp() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.closes) < d.longWin {
		return false
	}
	return sma(d.closes, d.shortWin).GreaterThan(sma(d.closes, d.longWin))
}

// sma averages the last window elements. Callers check the length.
func sma(closes []decimal.Decimal, window int) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range closes[len(closes)-window:] {
		sum = sum.Add(c)
	}
	return sum.Div(decimal.NewFromInt(int64(window)))
}
