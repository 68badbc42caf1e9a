package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/crypto_scalper/internal/domain"
	"github.com/vitos/crypto_scalper/internal/infrastructure/exchange"
)

// Streams the live order book to stdout. Public endpoints only, no
// credentials needed.
func main() {
	symbol := flag.String("symbol", "BONKUSDT", "symbol to stream")
	flag.Parse()

	adapter := exchange.NewBinanceAdapter("", "", zap.NewNop())
	book := domain.NewOrderBook(*symbol)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	fmt.Printf("Streaming depth for %s (Ctrl+C to stop)...\n", *symbol)

	var lastPrint time.Time
	err := adapter.SubscribeDepth(ctx, *symbol, func(update domain.DepthUpdate) {
		book.Apply(update)
		if time.Since(lastPrint) < time.Second {
			return
		}
		lastPrint = time.Now()

		bid, okBid := book.BestBid()
		ask, okAsk := book.BestAsk()
		if !okBid || !okAsk {
			fmt.Println("book side unavailable")
			return
		}
		spread := ask.Price.Sub(bid.Price)
		fmt.Printf("bid %s (%s)  ask %s (%s)  spread %s  depth %d/%d\n",
			bid.Price, bid.Quantity, ask.Price, ask.Quantity,
			spread, len(book.Bids), len(book.Asks))
	})
	if err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}
