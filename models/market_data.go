package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MarketQuote is a point-in-time market snapshot for one instrument
type MarketQuote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change24h"` // percent
	Volume24h decimal.Decimal `json:"volume24h"`
	High24h   decimal.Decimal `json:"high24h"`
	Low24h    decimal.Decimal `json:"low24h"`
	Timestamp time.Time       `json:"timestamp"`
}

// Validate checks the quote's structural invariants
func (q *MarketQuote) Validate() error {
	if q.Symbol == "" {
		return fmt.Errorf("%w: quote has no symbol", ErrData)
	}
	if q.Price.IsNegative() {
		return fmt.Errorf("%w: negative price %s for %s", ErrData, q.Price, q.Symbol)
	}
	if q.High24h.LessThan(q.Low24h) {
		return fmt.Errorf("%w: high24h %s below low24h %s for %s", ErrData, q.High24h, q.Low24h, q.Symbol)
	}
	return nil
}

// FindQuote returns the quote for symbol, or nil when it is not in the list
func FindQuote(quotes []MarketQuote, symbol string) *MarketQuote {
	for i := range quotes {
		if quotes[i].Symbol == symbol {
			return &quotes[i]
		}
	}
	return nil
}
