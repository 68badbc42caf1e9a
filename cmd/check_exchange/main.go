package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vitos/crypto_scalper/internal/infrastructure/exchange"
)

// Connectivity check: validates credentials, clock offset, symbol
// filters and top of book before running the bot for real.
func main() {
	symbol := flag.String("symbol", "BONKUSDT", "symbol to check")
	asset := flag.String("asset", "USDT", "asset to show the balance of")
	flag.Parse()

	_ = godotenv.Load()
	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		fmt.Println("BINANCE_API_KEY and BINANCE_API_SECRET must be set")
		os.Exit(1)
	}

	adapter := exchange.NewBinanceAdapter(apiKey, apiSecret, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Testing Binance interaction for %s...\n", *symbol)

	serverTime, err := adapter.GetServerTime(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get server time: %v\n", err)
		os.Exit(1)
	}
	offset := serverTime - time.Now().UnixMilli()
	fmt.Printf("✅ Server time: %d (offset %dms)\n", serverTime, offset)

	filters, err := adapter.GetSymbolFilters(ctx, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get symbol filters: %v\n", err)
	} else {
		fmt.Printf("✅ Filters: lotStep=%s minQty=%s tickSize=%s minNotional=%s\n",
			filters.LotStep, filters.MinQuantity, filters.TickSize, filters.MinNotional)
	}

	if err := adapter.SyncServerTime(ctx); err != nil {
		fmt.Printf("❌ Failed to sync server time: %v\n", err)
	}
	balance, err := adapter.GetBalance(ctx, *asset)
	if err != nil {
		fmt.Printf("❌ Failed to get balance: %v\n", err)
	} else {
		fmt.Printf("✅ Balance (%s): %s\n", *asset, balance)
	}

	closes, err := adapter.GetHistoricalCloses(ctx, *symbol, "1m", 5)
	if err != nil {
		fmt.Printf("❌ Failed to get klines: %v\n", err)
	} else {
		fmt.Printf("✅ Last closes: %v\n", closes)
	}
}
