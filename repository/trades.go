package repository

import (
	"context"
	"errors"
	"fmt"

	"ai-trader/models"
	"ai-trader/observability"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const tradeColumns = `id, symbol, side, price, quantity, notional, fee, status, pnl, reasoning, executed_at`

// CreateTrade journals an executed trade
func (r *Repository) CreateTrade(ctx context.Context, trade *models.Trade) error {
	timer := observability.GetMetrics().NewTimer()

	var pnl decimal.NullDecimal
	if trade.PnL != nil {
		pnl = decimal.NewNullDecimal(*trade.PnL)
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, trade.ID, trade.Symbol, trade.Side, trade.Price, trade.Quantity, trade.Notional, trade.Fee,
		trade.Status, pnl, nullable(trade.Reasoning), trade.Timestamp)
	observe("insert", "trades", err, timer)

	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// GetTrades returns the newest trades first
func (r *Repository) GetTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = DefaultRunsLimit
	}
	timer := observability.GetMetrics().NewTimer()

	rows, err := r.db.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		ORDER BY executed_at DESC
		LIMIT $1
	`, limit)
	observe("select", "trades", err, timer)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}
	return trades, nil
}

// GetTrade returns a single trade by ID, or nil when it does not exist
func (r *Repository) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	timer := observability.GetMetrics().NewTimer()
	t, err := scanTrade(r.db.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id))
	observe("select", "trades", ignoreNoRows(err), timer)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trade: %w", err)
	}
	return t, nil
}

func scanTrade(row pgx.Row) (*models.Trade, error) {
	var t models.Trade
	var pnl decimal.NullDecimal
	var reasoning *string

	err := row.Scan(&t.ID, &t.Symbol, &t.Side, &t.Price, &t.Quantity, &t.Notional, &t.Fee,
		&t.Status, &pnl, &reasoning, &t.Timestamp)
	if err != nil {
		return nil, err
	}
	if pnl.Valid {
		t.PnL = &pnl.Decimal
	}
	if reasoning != nil {
		t.Reasoning = *reasoning
	}
	return &t, nil
}
