package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vitos/crypto_scalper/internal/domain"
	"github.com/vitos/crypto_scalper/internal/infrastructure/exchange"
	"github.com/vitos/crypto_scalper/internal/infrastructure/logger"
	"github.com/vitos/crypto_scalper/internal/infrastructure/storage"
	"github.com/vitos/crypto_scalper/internal/usecase"
	"github.com/vitos/crypto_scalper/internal/web"
)

type Config struct {
	Exchange struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"exchange"`
	Strategy struct {
		Symbol          string `yaml:"symbol"`
		BaseAsset       string `yaml:"base_asset"`
		QuoteAsset      string `yaml:"quote_asset"`
		OrderNotional   string `yaml:"order_notional"`
		FeeRate         string `yaml:"fee_rate"`
		MinProfitMargin string `yaml:"min_profit_margin"`
		SafetyThreshold string `yaml:"safety_threshold"`
		CooldownSec     int    `yaml:"cooldown_sec"`
		MAShort         int    `yaml:"ma_short"`
		MALong          int    `yaml:"ma_long"`
		KlineInterval   string `yaml:"kline_interval"`
		HistoryLimit    int    `yaml:"history_limit"`
		ReseedSec       int    `yaml:"reseed_sec"`
	} `yaml:"strategy"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func strategyConfig(cfg *Config) (usecase.StrategyConfig, error) {
	s := cfg.Strategy
	out := usecase.StrategyConfig{
		Symbol:        s.Symbol,
		BaseAsset:     s.BaseAsset,
		QuoteAsset:    s.QuoteAsset,
		Cooldown:      time.Duration(s.CooldownSec) * time.Second,
		MAShort:       s.MAShort,
		MALong:        s.MALong,
		KlineInterval: s.KlineInterval,
		HistoryLimit:  s.HistoryLimit,
	}
	var err error
	if out.OrderNotional, err = decimal.NewFromString(s.OrderNotional); err != nil {
		return out, fmt.Errorf("order_notional: %w", err)
	}
	if out.FeeRate, err = decimal.NewFromString(s.FeeRate); err != nil {
		return out, fmt.Errorf("fee_rate: %w", err)
	}
	if out.MinProfitMargin, err = decimal.NewFromString(s.MinProfitMargin); err != nil {
		return out, fmt.Errorf("min_profit_margin: %w", err)
	}
	if out.SafetyThreshold, err = decimal.NewFromString(s.SafetyThreshold); err != nil {
		return out, fmt.Errorf("safety_threshold: %w", err)
	}
	if out.KlineInterval == "" {
		out.KlineInterval = "1m"
	}
	if out.MAShort == 0 {
		out.MAShort = 3
	}
	if out.MALong == 0 {
		out.MALong = 6
	}
	if out.Cooldown == 0 {
		out.Cooldown = 5 * time.Minute
	}
	return out, nil
}

func main() {
	// 1. Load Config + Credentials
	_ = godotenv.Load()

	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		fmt.Println("BINANCE_API_KEY and BINANCE_API_SECRET must be set")
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.Level, cfg.Logging.File)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	strategyCfg, err := strategyConfig(cfg)
	if err != nil {
		log.Fatal("Invalid strategy config", zap.Error(err))
	}

	// 3. Init Storage
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "scalper.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange
	adapter := exchange.NewBinanceAdapter(apiKey, apiSecret, log)
	if cfg.Exchange.RESTEndpoint != "" && cfg.Exchange.WSEndpoint != "" {
		adapter.SetEndpoints(cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.SyncServerTime(ctx); err != nil {
		log.Fatal("Failed to sync server time", zap.Error(err))
	}
	filters, err := adapter.GetSymbolFilters(ctx, strategyCfg.Symbol)
	if err != nil {
		log.Fatal("Failed to load symbol filters", zap.Error(err))
	}
	log.Info("Symbol filters loaded",
		zap.String("symbol", filters.Symbol),
		zap.String("lotStep", filters.LotStep.String()),
		zap.String("tickSize", filters.TickSize.String()),
		zap.String("minQty", filters.MinQuantity.String()))

	// 5. Init Strategy
	detector := usecase.NewSignalDetector(strategyCfg.MAShort, strategyCfg.MALong)
	pricing := usecase.NewPricingCalculator(strategyCfg.FeeRate, strategyCfg.MinProfitMargin, filters)
	strategy := usecase.NewStrategyService(strategyCfg, adapter, store, detector, pricing, log)

	if err := strategy.SeedHistory(ctx); err != nil {
		log.Fatal("Failed to seed price history", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 6. Depth Stream
	go func() {
		err := adapter.SubscribeDepth(ctx, strategyCfg.Symbol, func(update domain.DepthUpdate) {
			strategy.ProcessDepthUpdate(ctx, update)
		})
		if err != nil && ctx.Err() == nil {
			log.Error("Depth stream stopped", zap.Error(err))
		}
	}()

	// 7. History Reseed Loop
	reseed := time.Duration(cfg.Strategy.ReseedSec) * time.Second
	if reseed == 0 {
		reseed = time.Minute
	}
	go func() {
		ticker := time.NewTicker(reseed)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := strategy.SeedHistory(ctx); err != nil {
					log.Warn("Failed to reseed price history", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// 8. Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := web.NewServer(port, store, strategy, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	<-stop

	log.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
