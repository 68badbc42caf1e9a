package usecase

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionPhase is the lifecycle phase of the single tracked position.
type PositionPhase string

const (
	PhaseFlat    PositionPhase = "FLAT"
	PhaseBuying  PositionPhase = "BUYING"
	PhaseOpen    PositionPhase = "OPEN"
	PhaseSelling PositionPhase = "SELLING"
)

// PositionTracker holds the bot's view of its one position and the
// order in flight. It has a single owner (the strategy pipeline) and
// does no locking of its own.
type PositionTracker struct {
	phase             PositionPhase
	entryPrice        decimal.Decimal
	quantity          decimal.Decimal
	activeOrderID     int64
	openedAt          time.Time
	lastExit          time.Time
	cooldown          time.Duration
	crossoverConsumed bool
}

func NewPositionTracker(cooldown time.Duration) *PositionTracker {
	return &PositionTracker{phase: PhaseFlat, cooldown: cooldown}
}

func (t *PositionTracker) Phase() PositionPhase { return t.phase }

func (t *PositionTracker) EntryPrice() decimal.Decimal { return t.entryPrice }

func (t *PositionTracker) Quantity() decimal.Decimal { return t.quantity }

func (t *PositionTracker) ActiveOrderID() int64 { return t.activeOrderID }

func (t *PositionTracker) OpenedAt() time.Time { return t.openedAt }

func (t *PositionTracker) HasActiveOrder() bool { return t.activeOrderID != 0 }

func (t *PositionTracker) CrossoverConsumed() bool { return t.crossoverConsumed }

// InCooldown reports whether buys are still suppressed after the last exit.
func (t *PositionTracker) InCooldown(now time.Time) bool {
	if t.lastExit.IsZero() {
		return false
	}
	return now.Before(t.lastExit.Add(t.cooldown))
}

// ConsumeCrossover marks the current crossover event as used. It stays
// consumed until the resulting position is fully exited, so one
// crossover produces at most one buy.
func (t *PositionTracker) ConsumeCrossover() { t.crossoverConsumed = true }

// BuySubmitted moves Flat -> Buying for a submitted buy order.
func (t *PositionTracker) BuySubmitted(orderID int64, entry, quantity decimal.Decimal, now time.Time) {
	t.phase = PhaseBuying
	t.activeOrderID = orderID
	t.entryPrice = entry
	t.quantity = quantity
	t.openedAt = now
}

// BuyFilled moves Buying -> Open and clears the active order.
func (t *PositionTracker) BuyFilled() {
	t.phase = PhaseOpen
	t.activeOrderID = 0
}

// BuyFailed moves Buying -> Flat after a terminal unfilled buy. The
// crossover stays consumed and no cooldown is stamped: nothing was
// bought, but the same crossover must not trigger again.
func (t *PositionTracker) BuyFailed() {
	t.phase = PhaseFlat
	t.activeOrderID = 0
	t.entryPrice = decimal.Zero
	t.quantity = decimal.Zero
}

// SellSubmitted moves Open -> Selling for a submitted sell order.
func (t *PositionTracker) SellSubmitted(orderID int64) {
	t.phase = PhaseSelling
	t.activeOrderID = orderID
}

// SellFilled moves Selling -> Flat, stamps the cooldown clock and
// releases the crossover gate.
func (t *PositionTracker) SellFilled(now time.Time) {
	t.phase = PhaseFlat
	t.activeOrderID = 0
	t.entryPrice = decimal.Zero
	t.quantity = decimal.Zero
	t.lastExit = now
	t.crossoverConsumed = false
}

// SellFailed moves Selling -> Open after a terminal unfilled sell; the
// position is still held and the next cycle retries.
func (t *PositionTracker) SellFailed() {
	t.phase = PhaseOpen
	t.activeOrderID = 0
}
