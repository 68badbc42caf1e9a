package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vitos/crypto_scalper/internal/domain"
)

// StrategyConfig holds the trading parameters of the scalping strategy.
type StrategyConfig struct {
	Symbol          string
	BaseAsset       string
	QuoteAsset      string
	OrderNotional   decimal.Decimal // quote currency per buy
	FeeRate         decimal.Decimal
	MinProfitMargin decimal.Decimal
	SafetyThreshold decimal.Decimal // negative, e.g. -0.01
	Cooldown        time.Duration
	MAShort         int
	MALong          int
	KlineInterval   string
	HistoryLimit    int
}

type exitIntent struct {
	price  decimal.Decimal
	reason string
}

// StrategyService runs the scalping decision pipeline. Every depth
// update is processed under one mutex: reconcile the outstanding
// order, try a safety sell, try a profit sell, evaluate a buy. All
// exchange writes happen from this single pipeline.
type StrategyService struct {
	cfg      StrategyConfig
	exchange domain.Exchange
	trades   domain.TradeRepository
	detector *SignalDetector
	pricing  *PricingCalculator
	tracker  *PositionTracker
	book     *domain.OrderBook
	logger   *zap.Logger

	mu          sync.Mutex
	pendingExit exitIntent

	// timeNow is swappable in tests.
	timeNow func() time.Time
}

func NewStrategyService(
	cfg StrategyConfig,
	exchange domain.Exchange,
	trades domain.TradeRepository,
	detector *SignalDetector,
	pricing *PricingCalculator,
	logger *zap.Logger,
) *StrategyService {
	return &StrategyService{
		cfg:      cfg,
		exchange: exchange,
		trades:   trades,
		detector: detector,
		pricing:  pricing,
		tracker:  NewPositionTracker(cfg.Cooldown),
		book:     domain.NewOrderBook(cfg.Symbol),
		logger:   logger,
		timeNow:  time.Now,
	}
}

// SeedHistory loads historical closes into the signal detector. Called
// once at startup and periodically to keep the averages honest.
func (s *StrategyService) SeedHistory(ctx context.Context) error {
	limit := s.cfg.HistoryLimit
	if limit < s.cfg.MALong+1 {
		limit = s.cfg.MALong + 1
	}
	closes, err := s.exchange.GetHistoricalCloses(ctx, s.cfg.Symbol, s.cfg.KlineInterval, limit)
	if err != nil {
		return fmt.Errorf("load closes: %w", err)
	}
	s.detector.Seed(closes)
	s.logger.Info("Price history seeded",
		zap.String("symbol", s.cfg.Symbol),
		zap.String("interval", s.cfg.KlineInterval),
		zap.Int("closes", len(closes)))
	return nil
}

// ProcessDepthUpdate runs one full pipeline cycle for a depth update.
// A transient exchange error abandons the rest of the cycle; state
// carries over to the next update.
func (s *StrategyService) ProcessDepthUpdate(ctx context.Context, update domain.DepthUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.book.Apply(update)

	if err := s.reconcileOrder(ctx); err != nil {
		s.logger.Warn("Order reconciliation failed, skipping cycle",
			zap.String("symbol", s.cfg.Symbol), zap.Error(err))
		return
	}

	sellSubmitted := false
	if s.tracker.Phase() == PhaseOpen && !s.tracker.HasActiveOrder() {
		sellSubmitted = s.trySafetySell(ctx)
	}
	if !sellSubmitted && s.tracker.Phase() == PhaseOpen && !s.tracker.HasActiveOrder() {
		s.tryProfitSell(ctx)
	}
	if s.tracker.Phase() == PhaseFlat {
		s.evaluateBuy(ctx)
	}
}

// reconcileOrder polls the outstanding order once and applies the
// resulting transition. While a buy order is still open, a base asset
// balance covering the order quantity also confirms the fill.
func (s *StrategyService) reconcileOrder(ctx context.Context) error {
	if !s.tracker.HasActiveOrder() {
		return nil
	}
	orderID := s.tracker.ActiveOrderID()
	status, err := s.exchange.GetOrderStatus(ctx, s.cfg.Symbol, orderID)
	if err != nil {
		return fmt.Errorf("order %d status: %w", orderID, err)
	}

	switch {
	case status == domain.OrderStatusFilled:
		s.applyFill(orderID)
	case status.IsTerminal():
		if s.tracker.Phase() == PhaseBuying {
			s.logger.Info("Buy order closed without fill",
				zap.Int64("orderID", orderID), zap.String("status", string(status)))
			s.tracker.BuyFailed()
		} else {
			s.logger.Info("Sell order closed without fill, position still held",
				zap.Int64("orderID", orderID), zap.String("status", string(status)))
			s.tracker.SellFailed()
		}
	default:
		if s.tracker.Phase() == PhaseBuying {
			s.confirmBuyViaBalance(ctx, orderID)
		}
	}
	return nil
}

func (s *StrategyService) applyFill(orderID int64) {
	switch s.tracker.Phase() {
	case PhaseBuying:
		s.tracker.BuyFilled()
		s.logger.Info("Buy order filled, position open",
			zap.Int64("orderID", orderID),
			zap.String("entry", s.tracker.EntryPrice().String()),
			zap.String("quantity", s.tracker.Quantity().String()))
	case PhaseSelling:
		s.recordRoundTrip(orderID)
	}
}

func (s *StrategyService) confirmBuyViaBalance(ctx context.Context, orderID int64) {
	balance, err := s.exchange.GetBalance(ctx, s.cfg.BaseAsset)
	if err != nil {
		s.logger.Debug("Balance check failed", zap.Error(err))
		return
	}
	if balance.GreaterThanOrEqual(s.tracker.Quantity()) {
		s.logger.Info("Buy fill observed via balance",
			zap.Int64("orderID", orderID), zap.String("balance", balance.String()))
		s.tracker.BuyFilled()
	}
}

func (s *StrategyService) recordRoundTrip(orderID int64) {
	now := s.timeNow()
	entry := s.tracker.EntryPrice()
	qty := s.tracker.Quantity()
	exit := s.pendingExit.price
	pnl := exit.Sub(entry).Mul(qty).
		Sub(s.pricing.Fee(qty, entry)).
		Sub(s.pricing.Fee(qty, exit))

	s.logger.Info("Sell order filled, position closed",
		zap.Int64("orderID", orderID),
		zap.String("exit", exit.String()),
		zap.String("pnl", pnl.String()),
		zap.String("reason", s.pendingExit.reason))

	if s.trades != nil {
		history := &domain.PositionHistory{
			Symbol:      s.cfg.Symbol,
			Quantity:    qty,
			EntryPrice:  entry,
			ExitPrice:   exit,
			RealizedPnL: pnl,
			ExitReason:  s.pendingExit.reason,
			OpenedAt:    s.tracker.OpenedAt(),
			ClosedAt:    now,
		}
		if err := s.trades.SavePositionHistory(context.Background(), history); err != nil {
			s.logger.Warn("Failed to save position history", zap.Error(err))
		}
	}
	s.tracker.SellFilled(now)
	s.pendingExit = exitIntent{}
}

// trySafetySell exits a losing position at break-even once the best bid
// drops to the safety threshold. The order is priced at the minimum
// sell price, never below it. Returns true when a sell was submitted.
func (s *StrategyService) trySafetySell(ctx context.Context) bool {
	bid, ok := s.book.BestBid()
	if !ok {
		return false
	}
	entry := s.tracker.EntryPrice()
	change := bid.Price.Sub(entry).Div(entry)
	if change.GreaterThan(s.cfg.SafetyThreshold) {
		return false
	}

	qty := s.tracker.Quantity()
	floor := s.pricing.MinSellPrice(entry, qty)
	price := s.pricing.SellPrice(floor, floor)
	order, err := s.exchange.PlaceLimitOrder(ctx, s.cfg.Symbol, domain.SideSell, qty, price)
	if err != nil {
		s.logger.Error("Safety sell failed", zap.Error(err))
		return false
	}
	s.tracker.SellSubmitted(order.OrderID)
	s.pendingExit = exitIntent{price: price, reason: "safety"}
	s.saveTrade(order)
	s.logger.Info("Safety sell submitted",
		zap.Int64("orderID", order.OrderID),
		zap.String("price", price.String()),
		zap.String("bestBid", bid.Price.String()),
		zap.String("change", change.String()))
	return true
}

// tryProfitSell exits at the best bid once it clears the minimum sell
// price. The snapped price never drops below that floor.
func (s *StrategyService) tryProfitSell(ctx context.Context) {
	bid, ok := s.book.BestBid()
	if !ok {
		return
	}
	entry := s.tracker.EntryPrice()
	qty := s.tracker.Quantity()
	floor := s.pricing.MinSellPrice(entry, qty)
	if bid.Price.LessThan(floor) {
		return
	}

	price := s.pricing.SellPrice(bid.Price, floor)
	order, err := s.exchange.PlaceLimitOrder(ctx, s.cfg.Symbol, domain.SideSell, qty, price)
	if err != nil {
		s.logger.Error("Profit sell failed", zap.Error(err))
		return
	}
	s.tracker.SellSubmitted(order.OrderID)
	s.pendingExit = exitIntent{price: price, reason: "profit"}
	s.saveTrade(order)
	s.logger.Info("Profit sell submitted",
		zap.Int64("orderID", order.OrderID),
		zap.String("price", price.String()),
		zap.String("minSellPrice", floor.String()))
}

// evaluateBuy opens a position on a fresh MA crossover. One crossover
// event produces at most one buy; cooldown and an already consumed
// crossover both suppress entries.
func (s *StrategyService) evaluateBuy(ctx context.Context) {
	now := s.timeNow()
	if s.tracker.InCooldown(now) {
		return
	}
	if s.tracker.CrossoverConsumed() {
		return
	}
	if !s.detector.CrossedUp() {
		return
	}

	bid, okBid := s.book.BestBid()
	_, okAsk := s.book.BestAsk()
	if !okBid || !okAsk {
		s.logger.Debug("Book side unavailable, skipping buy", zap.String("symbol", s.cfg.Symbol))
		return
	}

	qty, err := s.pricing.QuantityFor(s.cfg.OrderNotional, bid.Price)
	if err != nil {
		s.logger.Info("Buy rejected by size rules",
			zap.String("bestBid", bid.Price.String()), zap.Error(err))
		return
	}

	minSell := s.pricing.MinSellPrice(bid.Price, qty)
	margin := minSell.Sub(bid.Price).Div(bid.Price)
	if margin.LessThan(s.cfg.MinProfitMargin) {
		s.logger.Debug("Margin below threshold, skipping buy",
			zap.String("margin", margin.String()))
		return
	}

	price := s.pricing.BuyPrice(bid.Price)
	order, err := s.exchange.PlaceLimitOrder(ctx, s.cfg.Symbol, domain.SideBuy, qty, price)
	if err != nil {
		s.logger.Error("Buy order failed", zap.Error(err))
		return
	}
	s.tracker.BuySubmitted(order.OrderID, price, qty, now)
	s.tracker.ConsumeCrossover()
	s.saveTrade(order)
	s.logger.Info("Buy order submitted",
		zap.Int64("orderID", order.OrderID),
		zap.String("price", price.String()),
		zap.String("quantity", qty.String()),
		zap.String("minSellPrice", minSell.String()))
}

// saveTrade writes to the audit store. Storage problems are logged and
// never stall trading.
func (s *StrategyService) saveTrade(order *domain.Order) {
	if s.trades == nil {
		return
	}
	if err := s.trades.SaveTrade(context.Background(), order); err != nil {
		s.logger.Warn("Failed to save trade", zap.Error(err))
	}
}

// StrategyStatus is a point-in-time snapshot for the web API.
type StrategyStatus struct {
	Symbol            string    `json:"symbol"`
	Phase             string    `json:"phase"`
	EntryPrice        string    `json:"entry_price,omitempty"`
	Quantity          string    `json:"quantity,omitempty"`
	ActiveOrderID     int64     `json:"active_order_id,omitempty"`
	BestBid           string    `json:"best_bid,omitempty"`
	BestAsk           string    `json:"best_ask,omitempty"`
	ShortMA           string    `json:"short_ma,omitempty"`
	LongMA            string    `json:"long_ma,omitempty"`
	CrossoverConsumed bool      `json:"crossover_consumed"`
	InCooldown        bool      `json:"in_cooldown"`
	Time              time.Time `json:"time"`
}

// Status returns a consistent snapshot of the strategy state.
func (s *StrategyService) Status() StrategyStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeNow()
	st := StrategyStatus{
		Symbol:            s.cfg.Symbol,
		Phase:             string(s.tracker.Phase()),
		ActiveOrderID:     s.tracker.ActiveOrderID(),
		CrossoverConsumed: s.tracker.CrossoverConsumed(),
		InCooldown:        s.tracker.InCooldown(now),
		Time:              now,
	}
	if s.tracker.Phase() != PhaseFlat {
		st.EntryPrice = s.tracker.EntryPrice().String()
		st.Quantity = s.tracker.Quantity().String()
	}
	if bid, ok := s.book.BestBid(); ok {
		st.BestBid = bid.Price.String()
	}
	if ask, ok := s.book.BestAsk(); ok {
		st.BestAsk = ask.Price.String()
	}
	if short, long, err := s.detector.MovingAverages(); err == nil {
		st.ShortMA = short.String()
		st.LongMA = long.String()
	}
	return st
}
