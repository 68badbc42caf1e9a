package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vitos/crypto_scalper/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MockScalpExchange drives the strategy pipeline in tests.
type MockScalpExchange struct {
	Closes       []decimal.Decimal
	Balance      decimal.Decimal
	BalanceErr   error
	OrderStatus  domain.OrderStatus
	StatusErr    error
	PlacedOrders []*domain.Order
	PlaceErr     error
	nextOrderID  int64
}

func (m *MockScalpExchange) GetServerTime(ctx context.Context) (int64, error) {
	return time.Now().UnixMilli(), nil
}

func (m *MockScalpExchange) GetSymbolFilters(ctx context.Context, symbol string) (*domain.SymbolFilters, error) {
	return nil, nil
}

func (m *MockScalpExchange) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return m.Balance, m.BalanceErr
}

func (m *MockScalpExchange) GetHistoricalCloses(ctx context.Context, symbol, interval string, limit int) ([]decimal.Decimal, error) {
	return m.Closes, nil
}

func (m *MockScalpExchange) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (*domain.Order, error) {
	if m.PlaceErr != nil {
		return nil, m.PlaceErr
	}
	m.nextOrderID++
	order := &domain.Order{
		OrderID:  m.nextOrderID,
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Status:   domain.OrderStatusNew,
	}
	m.PlacedOrders = append(m.PlacedOrders, order)
	return order, nil
}

func (m *MockScalpExchange) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (domain.OrderStatus, error) {
	if m.StatusErr != nil {
		return "", m.StatusErr
	}
	return m.OrderStatus, nil
}

func (m *MockScalpExchange) SubscribeDepth(ctx context.Context, symbol string, callback func(domain.DepthUpdate)) error {
	return nil
}

type MockTradeStore struct {
	Trades    []*domain.Order
	Histories []*domain.PositionHistory
}

func (m *MockTradeStore) SaveTrade(ctx context.Context, order *domain.Order) error {
	m.Trades = append(m.Trades, order)
	return nil
}

func (m *MockTradeStore) ListTrades(ctx context.Context, limit int) ([]*domain.Order, error) {
	return m.Trades, nil
}

func (m *MockTradeStore) SavePositionHistory(ctx context.Context, history *domain.PositionHistory) error {
	m.Histories = append(m.Histories, history)
	return nil
}

func (m *MockTradeStore) ListPositionHistory(ctx context.Context, limit int) ([]*domain.PositionHistory, error) {
	return m.Histories, nil
}

func testStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Symbol:          "TSTUSDT",
		BaseAsset:       "TST",
		QuoteAsset:      "USDT",
		OrderNotional:   d("1000"),
		FeeRate:         d("0.001"),
		MinProfitMargin: d("0.005"),
		SafetyThreshold: d("-0.01"),
		Cooldown:        60 * time.Second,
		MAShort:         3,
		MALong:          6,
		KlineInterval:   "1m",
		HistoryLimit:    30,
	}
}

func newTestStrategy(t *testing.T, exchange *MockScalpExchange, store *MockTradeStore) *StrategyService {
	t.Helper()
	cfg := testStrategyConfig()
	filters := &domain.SymbolFilters{
		Symbol:      cfg.Symbol,
		LotStep:     d("1"),
		MinQuantity: d("1"),
		TickSize:    d("0.01"),
	}
	detector := NewSignalDetector(cfg.MAShort, cfg.MALong)
	pricing := NewPricingCalculator(cfg.FeeRate, cfg.MinProfitMargin, filters)
	svc := NewStrategyService(cfg, exchange, store, detector, pricing, zap.NewNop())
	if err := svc.SeedHistory(context.Background()); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	return svc
}

// crossoverCloses produce a fresh short-over-long crossover on the
// latest point.
func crossoverCloses() []decimal.Decimal {
	return []decimal.Decimal{
		d("100"), d("100"), d("100"), d("100"), d("100"), d("100"), d("160"),
	}
}

// dominantCloses keep the short MA above the long MA on the previous
// point as well, with no fresh crossing on the latest one.
func dominantCloses() []decimal.Decimal {
	return []decimal.Decimal{
		d("100"), d("100"), d("100"), d("100"), d("140"), d("160"), d("180"),
	}
}

func flatCloses() []decimal.Decimal {
	return []decimal.Decimal{
		d("100"), d("100"), d("100"), d("100"), d("100"), d("100"), d("100"),
	}
}

func depthAt(bid, ask string) domain.DepthUpdate {
	return domain.DepthUpdate{
		Symbol: "TSTUSDT",
		Bids:   [][2]string{{bid, "1000"}},
		Asks:   [][2]string{{ask, "1000"}},
	}
}

func TestStrategy_BuysOnceOnCrossover(t *testing.T) {
	exchange := &MockScalpExchange{Closes: crossoverCloses(), OrderStatus: domain.OrderStatusNew}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})
	ctx := context.Background()

	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))

	if len(exchange.PlacedOrders) != 1 {
		t.Fatalf("placed %d orders, want 1", len(exchange.PlacedOrders))
	}
	buy := exchange.PlacedOrders[0]
	if buy.Side != domain.SideBuy {
		t.Fatalf("side = %s, want BUY", buy.Side)
	}
	if !buy.Price.Equal(d("99.99")) {
		t.Errorf("price = %s, want 99.99", buy.Price)
	}
	// 1000 USDT at 99.99 floors to 10 whole units
	if !buy.Quantity.Equal(d("10")) {
		t.Errorf("quantity = %s, want 10", buy.Quantity)
	}
	if svc.tracker.Phase() != PhaseBuying {
		t.Errorf("phase = %s, want BUYING", svc.tracker.Phase())
	}

	// the same crossover must not buy again
	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if len(exchange.PlacedOrders) != 1 {
		t.Fatalf("placed %d orders after second update, want 1", len(exchange.PlacedOrders))
	}
}

func TestStrategy_BuysOnSustainedDominance(t *testing.T) {
	exchange := &MockScalpExchange{Closes: dominantCloses(), OrderStatus: domain.OrderStatusNew}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})

	// flat, no cooldown, crossover not consumed: an already dominant
	// short MA still opens a position
	svc.ProcessDepthUpdate(context.Background(), depthAt("99.99", "100.02"))

	if len(exchange.PlacedOrders) != 1 {
		t.Fatalf("placed %d orders, want 1", len(exchange.PlacedOrders))
	}
	if exchange.PlacedOrders[0].Side != domain.SideBuy {
		t.Fatalf("side = %s, want BUY", exchange.PlacedOrders[0].Side)
	}
}

func TestStrategy_NoBuyWithoutCrossover(t *testing.T) {
	exchange := &MockScalpExchange{Closes: flatCloses()}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})

	svc.ProcessDepthUpdate(context.Background(), depthAt("99.99", "100.02"))

	if len(exchange.PlacedOrders) != 0 {
		t.Fatalf("placed %d orders, want 0", len(exchange.PlacedOrders))
	}
}

func TestStrategy_NoBuyWithEmptyBookSide(t *testing.T) {
	exchange := &MockScalpExchange{Closes: crossoverCloses()}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})

	svc.ProcessDepthUpdate(context.Background(), domain.DepthUpdate{
		Symbol: "TSTUSDT",
		Bids:   [][2]string{{"99.99", "1000"}},
	})

	if len(exchange.PlacedOrders) != 0 {
		t.Fatalf("placed %d orders, want 0", len(exchange.PlacedOrders))
	}
}

func TestStrategy_BuyRejectedBelowMinimumSize(t *testing.T) {
	exchange := &MockScalpExchange{Closes: crossoverCloses()}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})
	svc.cfg.OrderNotional = d("0.5") // floors to zero units

	svc.ProcessDepthUpdate(context.Background(), depthAt("99.99", "100.02"))

	if len(exchange.PlacedOrders) != 0 {
		t.Fatalf("placed %d orders, want 0", len(exchange.PlacedOrders))
	}
	if svc.tracker.Phase() != PhaseFlat {
		t.Errorf("phase = %s, want FLAT", svc.tracker.Phase())
	}
}

// openPosition drives the strategy through a confirmed buy at 99.99.
func openPosition(t *testing.T, svc *StrategyService, exchange *MockScalpExchange) {
	t.Helper()
	ctx := context.Background()
	exchange.OrderStatus = domain.OrderStatusNew
	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if len(exchange.PlacedOrders) != 1 {
		t.Fatalf("setup: placed %d orders, want 1", len(exchange.PlacedOrders))
	}
	exchange.OrderStatus = domain.OrderStatusFilled
	// reconcile confirms the fill; bid below the sell floor, no sell yet
	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if svc.tracker.Phase() != PhaseOpen {
		t.Fatalf("setup: phase = %s, want OPEN", svc.tracker.Phase())
	}
	exchange.OrderStatus = domain.OrderStatusNew
}

func TestStrategy_ProfitSellAboveMinSellPrice(t *testing.T) {
	exchange := &MockScalpExchange{Closes: crossoverCloses()}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})
	openPosition(t, svc, exchange)
	ctx := context.Background()

	// entry 99.99, qty 10: minSellPrice = 100.69042995
	svc.ProcessDepthUpdate(ctx, depthAt("100.50", "100.60"))
	if len(exchange.PlacedOrders) != 1 {
		t.Fatalf("sold below the minimum sell price")
	}

	svc.ProcessDepthUpdate(ctx, depthAt("100.75", "100.80"))
	if len(exchange.PlacedOrders) != 2 {
		t.Fatalf("placed %d orders, want 2", len(exchange.PlacedOrders))
	}
	sell := exchange.PlacedOrders[1]
	if sell.Side != domain.SideSell {
		t.Fatalf("side = %s, want SELL", sell.Side)
	}
	if !sell.Price.Equal(d("100.75")) {
		t.Errorf("price = %s, want 100.75", sell.Price)
	}
	if svc.tracker.Phase() != PhaseSelling {
		t.Errorf("phase = %s, want SELLING", svc.tracker.Phase())
	}
}

func TestStrategy_SafetySellAtBreakEvenFloor(t *testing.T) {
	exchange := &MockScalpExchange{Closes: crossoverCloses()}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})
	openPosition(t, svc, exchange)

	// bid 1.2% below entry crosses the -1% safety threshold
	svc.ProcessDepthUpdate(context.Background(), depthAt("98.79", "98.85"))

	if len(exchange.PlacedOrders) != 2 {
		t.Fatalf("placed %d orders, want 2", len(exchange.PlacedOrders))
	}
	sell := exchange.PlacedOrders[1]
	if sell.Side != domain.SideSell {
		t.Fatalf("side = %s, want SELL", sell.Side)
	}
	// minSellPrice 100.69042995 ceiled to the tick, never below it
	if !sell.Price.Equal(d("100.70")) {
		t.Errorf("price = %s, want 100.70", sell.Price)
	}
}

func TestStrategy_OneSellPerCycle(t *testing.T) {
	exchange := &MockScalpExchange{Closes: crossoverCloses()}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})
	openPosition(t, svc, exchange)

	// the safety sell leaves the tracker SELLING; nothing else may
	// submit in the same or following cycles while it is outstanding
	svc.ProcessDepthUpdate(context.Background(), depthAt("98.79", "98.85"))
	svc.ProcessDepthUpdate(context.Background(), depthAt("101.00", "101.10"))

	if len(exchange.PlacedOrders) != 2 {
		t.Fatalf("placed %d orders, want 2", len(exchange.PlacedOrders))
	}
}

func TestStrategy_CooldownAfterExit(t *testing.T) {
	exchange := &MockScalpExchange{Closes: crossoverCloses()}
	store := &MockTradeStore{}
	svc := newTestStrategy(t, exchange, store)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc.timeNow = func() time.Time { return now }

	openPosition(t, svc, exchange)
	ctx := context.Background()

	// profit sell and its fill close the round trip
	svc.ProcessDepthUpdate(ctx, depthAt("100.75", "100.80"))
	exchange.OrderStatus = domain.OrderStatusFilled
	svc.ProcessDepthUpdate(ctx, depthAt("100.75", "100.80"))
	exchange.OrderStatus = domain.OrderStatusNew

	if svc.tracker.Phase() != PhaseFlat {
		t.Fatalf("phase = %s, want FLAT", svc.tracker.Phase())
	}
	if len(store.Histories) != 1 {
		t.Fatalf("recorded %d round trips, want 1", len(store.Histories))
	}
	if store.Histories[0].ExitReason != "profit" {
		t.Errorf("exit reason = %s, want profit", store.Histories[0].ExitReason)
	}

	// the detector still reports the crossover, but cooldown holds
	now = base.Add(30 * time.Second)
	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if len(exchange.PlacedOrders) != 2 {
		t.Fatalf("bought during cooldown")
	}

	now = base.Add(2 * time.Minute)
	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if len(exchange.PlacedOrders) != 3 {
		t.Fatalf("placed %d orders after cooldown, want 3", len(exchange.PlacedOrders))
	}
}

func TestStrategy_TransientStatusErrorSkipsCycle(t *testing.T) {
	exchange := &MockScalpExchange{Closes: crossoverCloses(), OrderStatus: domain.OrderStatusNew}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})
	ctx := context.Background()

	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if len(exchange.PlacedOrders) != 1 {
		t.Fatalf("setup: placed %d orders, want 1", len(exchange.PlacedOrders))
	}

	exchange.StatusErr = context.DeadlineExceeded
	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if svc.tracker.Phase() != PhaseBuying {
		t.Errorf("phase = %s, want BUYING preserved across the failed cycle", svc.tracker.Phase())
	}

	exchange.StatusErr = nil
	exchange.OrderStatus = domain.OrderStatusFilled
	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if svc.tracker.Phase() != PhaseOpen {
		t.Errorf("phase = %s, want OPEN after recovery", svc.tracker.Phase())
	}
}

func TestStrategy_BalanceConfirmsBuyFill(t *testing.T) {
	exchange := &MockScalpExchange{Closes: crossoverCloses(), OrderStatus: domain.OrderStatusNew}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})
	ctx := context.Background()

	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if svc.tracker.Phase() != PhaseBuying {
		t.Fatalf("setup: phase = %s, want BUYING", svc.tracker.Phase())
	}

	// the order still reads NEW but the base asset arrived
	exchange.Balance = d("10")
	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if svc.tracker.Phase() != PhaseOpen {
		t.Errorf("phase = %s, want OPEN via balance confirmation", svc.tracker.Phase())
	}
}

func TestStrategy_CanceledBuyReturnsToFlatWithoutRearm(t *testing.T) {
	exchange := &MockScalpExchange{Closes: crossoverCloses(), OrderStatus: domain.OrderStatusNew}
	svc := newTestStrategy(t, exchange, &MockTradeStore{})
	ctx := context.Background()

	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	exchange.OrderStatus = domain.OrderStatusCanceled
	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))

	if svc.tracker.Phase() != PhaseFlat {
		t.Fatalf("phase = %s, want FLAT", svc.tracker.Phase())
	}
	// the crossover stays consumed: the canceled buy already used it
	exchange.OrderStatus = domain.OrderStatusNew
	svc.ProcessDepthUpdate(ctx, depthAt("99.99", "100.02"))
	if len(exchange.PlacedOrders) != 1 {
		t.Fatalf("placed %d orders, want 1", len(exchange.PlacedOrders))
	}
}
