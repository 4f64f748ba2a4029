package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-trader/models"

	"github.com/shopspring/decimal"
)

func newTestPaperExchange(cash int64) (*PaperExchange, *StaticQuotes) {
	quotes := NewStaticQuotes(map[string]decimal.Decimal{
		"BTC/USD": decimal.NewFromInt(60000),
		"ETH/USD": decimal.NewFromInt(3000),
	})
	p := NewPaperExchange(quotes, "USD", decimal.NewFromInt(cash))
	p.feeRate = decimal.Zero
	return p, quotes
}

func buy(symbol string, qty float64) models.OrderRequest {
	return models.OrderRequest{Symbol: symbol, Side: models.TradeSideBuy, Quantity: decimal.NewFromFloat(qty)}
}

func sell(symbol string, qty float64) models.OrderRequest {
	return models.OrderRequest{Symbol: symbol, Side: models.TradeSideSell, Quantity: decimal.NewFromFloat(qty)}
}

func TestPaperExchange_BuyAndValue(t *testing.T) {
	p, quotes := newTestPaperExchange(10000)
	ctx := context.Background()

	trade, err := p.SubmitOrder(ctx, buy("ETH/USD", 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.Status != models.TradeStatusCompleted {
		t.Errorf("expected completed trade, got %s", trade.Status)
	}
	if !trade.Notional.Equal(decimal.NewFromInt(6000)) {
		t.Errorf("expected notional 6000, got %s", trade.Notional)
	}

	quotes.SetPrice("ETH/USD", decimal.NewFromInt(3300))

	balances, err := p.GetBalances(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected cash plus one holding, got %d", len(balances))
	}
	if !balances[0].Amount.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("expected 4000 cash, got %s", balances[0].Amount)
	}
	eth := balances[1]
	if !eth.NotionalValue.Equal(decimal.NewFromInt(6600)) {
		t.Errorf("expected value 6600, got %s", eth.NotionalValue)
	}
	if !eth.StartOfDayNotional.Equal(decimal.NewFromInt(6000)) {
		t.Errorf("expected cost 6000, got %s", eth.StartOfDayNotional)
	}
}

func TestPaperExchange_Fee(t *testing.T) {
	p, _ := newTestPaperExchange(10000)
	p.feeRate = decimal.NewFromFloat(0.001)

	trade, err := p.SubmitOrder(context.Background(), buy("ETH/USD", 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trade.Fee.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected fee 3, got %s", trade.Fee)
	}
	if !p.cash.Equal(decimal.NewFromInt(6997)) {
		t.Errorf("expected cash 6997, got %s", p.cash)
	}
}

func TestPaperExchange_InsufficientCash(t *testing.T) {
	p, _ := newTestPaperExchange(1000)

	_, err := p.SubmitOrder(context.Background(), buy("BTC/USD", 1))
	if !errors.Is(err, models.ErrExecution) {
		t.Errorf("expected ErrExecution, got %v", err)
	}
	if !p.cash.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("cash should be untouched, got %s", p.cash)
	}
}

func TestPaperExchange_Sell(t *testing.T) {
	p, _ := newTestPaperExchange(10000)
	ctx := context.Background()

	if _, err := p.SubmitOrder(ctx, buy("ETH/USD", 2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.SubmitOrder(ctx, sell("ETH/USD", 3)); !errors.Is(err, models.ErrExecution) {
		t.Errorf("expected ErrExecution when overselling, got %v", err)
	}
	if _, err := p.SubmitOrder(ctx, sell("ETH/USD", 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := p.holdings["ETH/USD"]
	if h == nil || !h.quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected 1 ETH left, got %+v", h)
	}
	if !h.cost.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("expected cost basis halved to 3000, got %s", h.cost)
	}
	if !p.cash.Equal(decimal.NewFromInt(7000)) {
		t.Errorf("expected cash 7000, got %s", p.cash)
	}

	if _, err := p.SubmitOrder(ctx, sell("ETH/USD", 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.holdings["ETH/USD"]; ok {
		t.Error("closed holding should be removed")
	}
}

func TestPaperExchange_LimitOrderFillsAtLimit(t *testing.T) {
	p, _ := newTestPaperExchange(10000)
	limit := decimal.NewFromInt(2500)

	order := buy("ETH/USD", 2)
	order.Price = &limit
	trade, err := p.SubmitOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trade.Price.Equal(limit) {
		t.Errorf("expected fill at limit, got %s", trade.Price)
	}
}

func TestPaperExchange_UnknownSymbol(t *testing.T) {
	p, _ := newTestPaperExchange(10000)

	_, err := p.SubmitOrder(context.Background(), buy("DOGE/USD", 10))
	if !errors.Is(err, models.ErrExecution) {
		t.Errorf("expected ErrExecution, got %v", err)
	}
}

func TestPaperExchange_CancelledContext(t *testing.T) {
	p, _ := newTestPaperExchange(10000)
	limit := decimal.NewFromInt(3000)
	order := buy("ETH/USD", 1)
	order.Price = &limit

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.SubmitOrder(ctx, order); !errors.Is(err, models.ErrExecution) {
		t.Errorf("expected ErrExecution, got %v", err)
	}
	if len(p.trades) != 0 {
		t.Error("cancelled order should not be recorded")
	}
}

func TestPaperExchange_RecentTradesNewestFirst(t *testing.T) {
	p, _ := newTestPaperExchange(100000)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	p.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for i := 0; i < 3; i++ {
		if _, err := p.SubmitOrder(ctx, buy("ETH/USD", 1)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	trades, err := p.GetRecentTrades(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if !trades[0].Timestamp.After(trades[1].Timestamp) {
		t.Error("expected newest first")
	}

	all, _ := p.GetRecentTrades(ctx, 0)
	if len(all) != 3 {
		t.Errorf("expected all 3 trades with no limit, got %d", len(all))
	}
}

func TestStaticQuotes(t *testing.T) {
	q := NewStaticQuotes(map[string]decimal.Decimal{"btc/usd": decimal.NewFromInt(100)})

	quotes, err := q.GetMarketQuotes(context.Background(), []string{"BTC/USD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotes) != 1 || !quotes[0].Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unexpected quotes %+v", quotes)
	}

	if _, err := q.GetMarketQuotes(context.Background(), []string{"ETH/USD"}); !errors.Is(err, models.ErrData) {
		t.Errorf("expected ErrData, got %v", err)
	}
}

func TestPaperExchange_Health(t *testing.T) {
	p, _ := newTestPaperExchange(0)
	if err := p.Health(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if p.Name() != "paper" {
		t.Errorf("unexpected name %s", p.Name())
	}
	if err := p.CancelAllOrders(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
