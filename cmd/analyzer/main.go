package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/crypto_scalper/internal/infrastructure/storage"
	"github.com/vitos/crypto_scalper/internal/usecase"
)

// Offline PnL report over the audit database.
func main() {
	dbPath := flag.String("db", "scalper.db", "path to the audit database")
	limit := flag.Int("limit", 1000, "number of round trips to analyze")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	report, err := usecase.NewReportService(store).Summarize(context.Background(), *limit)
	if err != nil {
		fmt.Printf("Error building report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Round trips analyzed: %d\n", report.RoundTrips)
	if report.RoundTrips == 0 {
		return
	}

	fmt.Printf("%-16s | %-8s | %-8s\n", "", "count", "")
	fmt.Println("---------------------------------------")
	fmt.Printf("%-16s | %-8d |\n", "Wins", report.Wins)
	fmt.Printf("%-16s | %-8d |\n", "Losses", report.Losses)
	fmt.Printf("%-16s | %-8d |\n", "Profit exits", report.ProfitExits)
	fmt.Printf("%-16s | %-8d |\n", "Safety exits", report.SafetyExits)
	fmt.Println("---------------------------------------")
	fmt.Printf("Total PnL:   %s\n", report.TotalPnL)
	fmt.Printf("Average PnL: %s\n", report.AveragePnL)
	fmt.Printf("Best trade:  %s\n", report.BestTrade)
	fmt.Printf("Worst trade: %s\n", report.WorstTrade)

	trades, err := store.ListTrades(context.Background(), 10)
	if err != nil {
		fmt.Printf("Error listing trades: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nLast %d orders:\n", len(trades))
	for _, tr := range trades {
		fmt.Printf("%s  %-20s %-4s qty=%-12s price=%-12s %s\n",
			tr.CreatedAt.Format("2006-01-02 15:04:05"),
			tr.Symbol, tr.Side, tr.Quantity, tr.Price, tr.Status)
	}
}
