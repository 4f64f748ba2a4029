package models

import "github.com/shopspring/decimal"

// Portfolio is an account-level snapshot derived from balances
type Portfolio struct {
	TotalValue      decimal.Decimal `json:"totalValue"`
	CashBalance     decimal.Decimal `json:"cashBalance"`
	CashSymbol      string          `json:"cashSymbol,omitempty"`
	Positions       []Position      `json:"positions"`
	TotalPnL        decimal.Decimal `json:"totalPnl"`
	TotalPnLPercent decimal.Decimal `json:"totalPnlPercent"`
}

// NewPortfolio aggregates positions and cash into a Portfolio
func NewPortfolio(cash decimal.Decimal, cashSymbol string, positions []Position) *Portfolio {
	if positions == nil {
		positions = []Position{}
	}
	p := &Portfolio{
		CashBalance: cash,
		CashSymbol:  cashSymbol,
		Positions:   positions,
	}
	p.TotalValue = cash.Add(p.Exposure())
	for _, pos := range positions {
		p.TotalPnL = p.TotalPnL.Add(pos.PnL)
	}
	if p.TotalValue.IsPositive() {
		p.TotalPnLPercent = p.TotalPnL.Div(p.TotalValue).Mul(hundred)
	}
	return p
}

// Exposure returns the sum of position notionals
func (p *Portfolio) Exposure() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.Notional)
	}
	return total
}

// Position returns the held position for symbol, or nil
func (p *Portfolio) Position(symbol string) *Position {
	for i := range p.Positions {
		if p.Positions[i].Symbol == symbol {
			return &p.Positions[i]
		}
	}
	return nil
}
