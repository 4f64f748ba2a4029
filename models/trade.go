package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Trade struct {
	ID        string           `json:"id"`
	Symbol    string           `json:"symbol"`
	Side      TradeSide        `json:"side"`
	Price     decimal.Decimal  `json:"price"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Notional  decimal.Decimal  `json:"notional"`
	Fee       decimal.Decimal  `json:"fee"`
	Timestamp time.Time        `json:"timestamp"`
	Status    TradeStatus      `json:"status"`
	PnL       *decimal.Decimal `json:"pnl,omitempty"`
	Reasoning string           `json:"reasoning,omitempty"`
}

type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// ParseTradeSide validates a side string
func ParseTradeSide(s string) (TradeSide, error) {
	switch TradeSide(s) {
	case TradeSideBuy, TradeSideSell:
		return TradeSide(s), nil
	default:
		return "", fmt.Errorf("%w: invalid side %q", ErrData, s)
	}
}

type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusFailed    TradeStatus = "failed"
)

func NewTrade(symbol string, side TradeSide, quantity, price decimal.Decimal) *Trade {
	return &Trade{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Notional:  quantity.Mul(price),
		Fee:       decimal.Zero,
		Timestamp: time.Now(),
		Status:    TradeStatusPending,
	}
}

// Complete marks a pending trade as filled at price. Completed and failed trades are left untouched.
func (t *Trade) Complete(price, fee decimal.Decimal) bool {
	if t.Status != TradeStatusPending {
		return false
	}
	t.Price = price
	t.Notional = t.Quantity.Mul(price)
	t.Fee = fee
	t.Status = TradeStatusCompleted
	return true
}

// Fail marks a pending trade as failed
func (t *Trade) Fail() bool {
	if t.Status != TradeStatusPending {
		return false
	}
	t.Status = TradeStatusFailed
	return true
}

// OrderRequest holds the final parameters sent to the exchange
type OrderRequest struct {
	Symbol    string           `json:"symbol"`
	Side      TradeSide        `json:"side"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"` // nil means market order
	Reasoning string           `json:"reasoning,omitempty"`
}

// IsMarket reports whether the order carries no limit price
func (o *OrderRequest) IsMarket() bool {
	return o.Price == nil
}

// Validate checks the submission parameters
func (o *OrderRequest) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("%w: order has no symbol", ErrData)
	}
	if _, err := ParseTradeSide(string(o.Side)); err != nil {
		return err
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: order quantity must be positive, got %s", ErrData, o.Quantity)
	}
	if o.Price != nil && !o.Price.IsPositive() {
		return fmt.Errorf("%w: limit price must be positive, got %s", ErrData, o.Price)
	}
	return nil
}
