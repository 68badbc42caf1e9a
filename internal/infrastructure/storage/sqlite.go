package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/vitos/crypto_scalper/internal/domain"
)

// SQLiteStore is the audit log for submitted orders and completed
// round trips. The strategy never reads it back for decisions; the web
// API and operator tooling do.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			order_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity TEXT NOT NULL,
			price TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);`,
		`CREATE TABLE IF NOT EXISTS position_history (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			quantity TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			exit_price TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			exit_reason TEXT NOT NULL,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_position_history_symbol ON position_history(symbol);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveTrade(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (id, order_id, symbol, side, quantity, price, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.OrderID, order.Symbol, string(order.Side),
		order.Quantity.String(), order.Price.String(), string(order.Status), order.CreatedAt)
	if err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, symbol, side, quantity, price, status, created_at
		 FROM trades ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side, qty, price, status string
		if err := rows.Scan(&o.ID, &o.OrderID, &o.Symbol, &side, &qty, &price, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		o.Side = domain.Side(side)
		o.Status = domain.OrderStatus(status)
		if o.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", qty, err)
		}
		if o.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price %q: %w", price, err)
		}
		trades = append(trades, &o)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) SavePositionHistory(ctx context.Context, history *domain.PositionHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO position_history
		 (id, symbol, quantity, entry_price, exit_price, realized_pnl, exit_reason, opened_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		history.ID, history.Symbol, history.Quantity.String(),
		history.EntryPrice.String(), history.ExitPrice.String(),
		history.RealizedPnL.String(), history.ExitReason,
		history.OpenedAt, history.ClosedAt)
	if err != nil {
		return fmt.Errorf("save position history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListPositionHistory(ctx context.Context, limit int) ([]*domain.PositionHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, quantity, entry_price, exit_price, realized_pnl, exit_reason, opened_at, closed_at
		 FROM position_history ORDER BY closed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list position history: %w", err)
	}
	defer rows.Close()

	var histories []*domain.PositionHistory
	for rows.Next() {
		var h domain.PositionHistory
		var qty, entry, exit, pnl string
		if err := rows.Scan(&h.ID, &h.Symbol, &qty, &entry, &exit, &pnl, &h.ExitReason, &h.OpenedAt, &h.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan position history: %w", err)
		}
		if h.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", qty, err)
		}
		if h.EntryPrice, err = decimal.NewFromString(entry); err != nil {
			return nil, fmt.Errorf("parse entry price %q: %w", entry, err)
		}
		if h.ExitPrice, err = decimal.NewFromString(exit); err != nil {
			return nil, fmt.Errorf("parse exit price %q: %w", exit, err)
		}
		if h.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("parse pnl %q: %w", pnl, err)
		}
		histories = append(histories, &h)
	}
	return histories, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
