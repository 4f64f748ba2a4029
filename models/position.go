package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Balance is a raw per-asset balance record as reported by the exchange.
// Pointer fields may be missing in the upstream payload.
type Balance struct {
	Symbol             string           `json:"symbol"`
	Amount             *decimal.Decimal `json:"amount,omitempty"`
	AvailableBalance   *decimal.Decimal `json:"available_balance,omitempty"`
	NotionalRate       *decimal.Decimal `json:"notional_rate,omitempty"`        // current unit price
	NotionalValue      *decimal.Decimal `json:"notional_value,omitempty"`       // current total value
	StartOfDayNotional *decimal.Decimal `json:"start_of_day_notional,omitempty"` // entry value proxy
}

// Position is a normalized holding of one instrument
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Notional     decimal.Decimal `json:"notional"`
	PnL          decimal.Decimal `json:"pnl"`
	PnLPercent   decimal.Decimal `json:"pnlPercent"`
	LastUpdated  time.Time       `json:"lastUpdated"`
}

// CostBasis returns quantity × average price
func (p *Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AveragePrice)
}

// CalculatePnL returns notional − cost basis
func (p *Position) CalculatePnL() decimal.Decimal {
	return p.Notional.Sub(p.CostBasis())
}

// CalculatePnLPercent returns PnL as a percentage of cost basis, 0 when the cost basis is not positive
func (p *Position) CalculatePnLPercent() decimal.Decimal {
	basis := p.CostBasis()
	if !basis.IsPositive() {
		return decimal.Zero
	}
	return p.PnL.Div(basis).Mul(hundred)
}
