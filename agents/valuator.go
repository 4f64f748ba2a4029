package agents

import (
	"fmt"
	"strings"
	"time"

	"ai-trader/models"

	"github.com/shopspring/decimal"
)

// DefaultCashSymbols are treated as cash when no list is configured
var DefaultCashSymbols = []string{"USD", "USDT"}

// Valuator turns raw exchange balance records into a Portfolio
type Valuator struct {
	now func() time.Time
}

// NewValuator creates a new Valuator
func NewValuator() *Valuator {
	return &Valuator{now: time.Now}
}

// Valuate builds a portfolio from balances. Cash comes from the first record whose
// symbol is a cash symbol; every other record with a positive amount is a position.
//
// When a record has no usable entry notional the average price falls back to the
// current price, so that position reports a PnL of exactly zero.
func (v *Valuator) Valuate(balances []models.Balance, cashSymbols []string) (*models.Portfolio, error) {
	if len(cashSymbols) == 0 {
		cashSymbols = DefaultCashSymbols
	}
	isCash := make(map[string]bool, len(cashSymbols))
	for _, s := range cashSymbols {
		isCash[strings.ToUpper(s)] = true
	}

	var (
		cash       = decimal.Zero
		cashSymbol string
		cashFound  bool
		positions  = make([]models.Position, 0, len(balances))
		seen       = make(map[string]bool, len(balances))
		now        = v.now()
	)

	for _, b := range balances {
		if isCash[strings.ToUpper(b.Symbol)] {
			if cashFound {
				continue
			}
			amount := b.Amount
			if amount == nil {
				amount = b.AvailableBalance
			}
			if amount == nil {
				return nil, fmt.Errorf("%w: cash record %s has no amount", models.ErrData, b.Symbol)
			}
			cash, cashSymbol, cashFound = *amount, b.Symbol, true
			continue
		}

		if b.Amount == nil {
			return nil, fmt.Errorf("%w: balance %s has no amount", models.ErrData, b.Symbol)
		}
		if !b.Amount.IsPositive() {
			continue
		}
		if b.NotionalRate == nil || b.NotionalValue == nil {
			return nil, fmt.Errorf("%w: balance %s is missing notional rate or value", models.ErrData, b.Symbol)
		}
		if seen[b.Symbol] {
			return nil, fmt.Errorf("%w: duplicate position for %s", models.ErrData, b.Symbol)
		}
		seen[b.Symbol] = true

		positions = append(positions, toPosition(b, now))
	}

	return models.NewPortfolio(cash, cashSymbol, positions), nil
}

func toPosition(b models.Balance, now time.Time) models.Position {
	pos := models.Position{
		Symbol:       b.Symbol,
		Quantity:     *b.Amount,
		CurrentPrice: *b.NotionalRate,
		Notional:     *b.NotionalValue,
		LastUpdated:  now,
	}

	if b.StartOfDayNotional != nil && b.StartOfDayNotional.IsPositive() {
		pos.AveragePrice = b.StartOfDayNotional.Div(pos.Quantity)
		pos.PnL = pos.CalculatePnL()
		pos.PnLPercent = pos.CalculatePnLPercent()
		return pos
	}

	// no entry data: assume bought at the current price
	pos.AveragePrice = pos.CurrentPrice
	pos.PnL = decimal.Zero
	pos.PnLPercent = decimal.Zero
	return pos
}
