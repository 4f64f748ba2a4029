package agents

import (
	"errors"
	"testing"

	"ai-trader/models"

	"github.com/shopspring/decimal"
)

func TestValuate_Aggregates(t *testing.T) {
	balances := []models.Balance{
		cashBalance("USD", 5000),
		positionBalance("BTC/USD", 0.1, 60000, 6000, 5000),
		positionBalance("ETH/USD", 2, 3000, 6000, 7000),
	}

	p, err := NewValuator().Valuate(balances, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !p.CashBalance.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("CashBalance = %s, want 5000", p.CashBalance)
	}
	if !p.TotalValue.Equal(decimal.NewFromInt(17000)) {
		t.Errorf("TotalValue = %s, want 17000", p.TotalValue)
	}
	if len(p.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(p.Positions))
	}

	btc := p.Position("BTC/USD")
	if !btc.PnL.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("BTC PnL = %s, want 1000", btc.PnL)
	}
	if !btc.PnLPercent.Equal(decimal.NewFromInt(20)) {
		t.Errorf("BTC PnLPercent = %s, want 20", btc.PnLPercent)
	}
	eth := p.Position("ETH/USD")
	if !eth.PnL.Equal(decimal.NewFromInt(-1000)) {
		t.Errorf("ETH PnL = %s, want -1000", eth.PnL)
	}

	// totals are sums over positions
	sum := decimal.Zero
	for _, pos := range p.Positions {
		sum = sum.Add(pos.PnL)
	}
	if !p.TotalPnL.Equal(sum) {
		t.Errorf("TotalPnL = %s, want %s", p.TotalPnL, sum)
	}
	if !p.TotalValue.Equal(p.CashBalance.Add(p.Exposure())) {
		t.Error("TotalValue should equal cash plus exposure")
	}
}

func TestValuate_FallbackAveragePrice(t *testing.T) {
	balances := []models.Balance{
		cashBalance("USD", 1000),
		positionBalance("SOL/USD", 10, 150, 1500, 0),
	}

	p, err := NewValuator().Valuate(balances, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sol := p.Position("SOL/USD")
	if !sol.PnL.IsZero() || !sol.PnLPercent.IsZero() {
		t.Errorf("expected zero PnL on fallback, got %s / %s", sol.PnL, sol.PnLPercent)
	}
	if !sol.AveragePrice.Equal(sol.CurrentPrice) {
		t.Errorf("expected average price %s, got %s", sol.CurrentPrice, sol.AveragePrice)
	}
}

func TestValuate_CashRules(t *testing.T) {
	avail := decimal.NewFromInt(250)

	tests := []struct {
		name       string
		balances   []models.Balance
		wantCash   int64
		wantSymbol string
	}{
		{
			name:     "no cash record means fully invested",
			balances: []models.Balance{positionBalance("BTC/USD", 1, 100, 100, 100)},
			wantCash: 0,
		},
		{
			name:       "first cash record wins",
			balances:   []models.Balance{cashBalance("USDT", 300), cashBalance("USD", 900)},
			wantCash:   300,
			wantSymbol: "USDT",
		},
		{
			name:       "falls back to available balance",
			balances:   []models.Balance{{Symbol: "USD", AvailableBalance: &avail}},
			wantCash:   250,
			wantSymbol: "USD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewValuator().Valuate(tt.balances, []string{"USD", "USDT"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !p.CashBalance.Equal(decimal.NewFromInt(tt.wantCash)) {
				t.Errorf("CashBalance = %s, want %d", p.CashBalance, tt.wantCash)
			}
			if p.CashSymbol != tt.wantSymbol {
				t.Errorf("CashSymbol = %q, want %q", p.CashSymbol, tt.wantSymbol)
			}
		})
	}
}

func TestValuate_SkipsEmptyHoldings(t *testing.T) {
	balances := []models.Balance{
		cashBalance("USD", 100),
		positionBalance("ETH/USD", 0, 3000, 0, 0),
	}
	p, err := NewValuator().Valuate(balances, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Positions) != 0 {
		t.Errorf("expected zero-amount record to be skipped, got %d positions", len(p.Positions))
	}
}

func TestValuate_DataErrors(t *testing.T) {
	tests := []struct {
		name     string
		balances []models.Balance
	}{
		{"missing amount", []models.Balance{{Symbol: "BTC/USD", NotionalRate: dec(1), NotionalValue: dec(1)}}},
		{"missing notional value", []models.Balance{{Symbol: "BTC/USD", Amount: dec(1), NotionalRate: dec(1)}}},
		{"missing notional rate", []models.Balance{{Symbol: "BTC/USD", Amount: dec(1), NotionalValue: dec(1)}}},
		{"cash without amounts", []models.Balance{{Symbol: "USD"}}},
		{"duplicate symbol", []models.Balance{
			positionBalance("BTC/USD", 1, 100, 100, 0),
			positionBalance("BTC/USD", 2, 100, 200, 0),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewValuator().Valuate(tt.balances, nil)
			if !errors.Is(err, models.ErrData) {
				t.Errorf("expected ErrData, got %v", err)
			}
		})
	}
}

func TestValuate_EmptyPortfolio(t *testing.T) {
	p, err := NewValuator().Valuate(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.TotalValue.IsZero() || !p.TotalPnLPercent.IsZero() {
		t.Errorf("expected zero totals, got %s / %s", p.TotalValue, p.TotalPnLPercent)
	}
	if p.Positions == nil {
		t.Error("positions should be an empty slice, not nil")
	}
}
