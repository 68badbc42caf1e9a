package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vitos/crypto_scalper/internal/domain"
)

// TradeReport aggregates completed round trips from the audit store.
type TradeReport struct {
	RoundTrips  int
	Wins        int
	Losses      int
	ProfitExits int
	SafetyExits int
	TotalPnL    decimal.Decimal
	AveragePnL  decimal.Decimal
	BestTrade   decimal.Decimal
	WorstTrade  decimal.Decimal
}

// ReportService builds summaries for operator tooling and has no role
// in trading decisions.
type ReportService struct {
	trades domain.TradeRepository
}

func NewReportService(trades domain.TradeRepository) *ReportService {
	return &ReportService{trades: trades}
}

func (s *ReportService) Summarize(ctx context.Context, limit int) (*TradeReport, error) {
	histories, err := s.trades.ListPositionHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load position history: %w", err)
	}

	report := &TradeReport{}
	for i, h := range histories {
		report.RoundTrips++
		report.TotalPnL = report.TotalPnL.Add(h.RealizedPnL)

		if h.RealizedPnL.IsNegative() {
			report.Losses++
		} else {
			report.Wins++
		}
		switch h.ExitReason {
		case "safety":
			report.SafetyExits++
		case "profit":
			report.ProfitExits++
		}
		if i == 0 || h.RealizedPnL.GreaterThan(report.BestTrade) {
			report.BestTrade = h.RealizedPnL
		}
		if i == 0 || h.RealizedPnL.LessThan(report.WorstTrade) {
			report.WorstTrade = h.RealizedPnL
		}
	}
	if report.RoundTrips > 0 {
		report.AveragePnL = report.TotalPnL.Div(decimal.NewFromInt(int64(report.RoundTrips)))
	}
	return report, nil
}
