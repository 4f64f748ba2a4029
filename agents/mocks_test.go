package agents

import (
	"context"
	"sync"
	"time"

	"ai-trader/models"

	"github.com/shopspring/decimal"
)

type mockLLMService struct {
	mu         sync.Mutex
	response   string
	err        error
	delay      time.Duration
	calls      int
	lastPrompt string
}

func (m *mockLLMService) InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.lastPrompt = userPrompt
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockLLMService) Name() string {
	return "mock"
}

func (m *mockLLMService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockExchange struct {
	mu        sync.Mutex
	quotes    map[string]models.MarketQuote
	balances  []models.Balance
	trades    []models.Trade
	quotesErr error
	balErr    error
	submitErr error
	healthErr error
	submitted []models.OrderRequest
	cancelled int
	health    int
}

func newMockExchange() *mockExchange {
	return &mockExchange{quotes: make(map[string]models.MarketQuote)}
}

func (m *mockExchange) withQuote(symbol string, price int64) *mockExchange {
	p := decimal.NewFromInt(price)
	m.quotes[symbol] = models.MarketQuote{Symbol: symbol, Price: p, High24h: p, Low24h: p, Timestamp: time.Now()}
	return m
}

func (m *mockExchange) GetMarketQuotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error) {
	if m.quotesErr != nil {
		return nil, m.quotesErr
	}
	out := make([]models.MarketQuote, 0, len(symbols))
	for _, s := range symbols {
		if q, ok := m.quotes[s]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *mockExchange) GetBalances(ctx context.Context) ([]models.Balance, error) {
	if m.balErr != nil {
		return nil, m.balErr
	}
	return m.balances, nil
}

func (m *mockExchange) GetRecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	if limit > 0 && len(m.trades) > limit {
		return m.trades[:limit], nil
	}
	return m.trades, nil
}

func (m *mockExchange) SubmitOrder(ctx context.Context, order models.OrderRequest) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = append(m.submitted, order)
	price := decimal.Zero
	if q, ok := m.quotes[order.Symbol]; ok {
		price = q.Price
	}
	trade := models.NewTrade(order.Symbol, order.Side, order.Quantity, price)
	trade.Reasoning = order.Reasoning
	trade.Complete(price, decimal.Zero)
	return trade, nil
}

func (m *mockExchange) CancelAllOrders(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled++
	return nil
}

func (m *mockExchange) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health++
	return m.healthErr
}

func (m *mockExchange) Name() string {
	return "mock"
}

func (m *mockExchange) submittedOrders() []models.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderRequest(nil), m.submitted...)
}

type mockRepository struct {
	mu     sync.Mutex
	runs   map[string]*models.AnalysisRun
	trades []*models.Trade
	err    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{runs: make(map[string]*models.AnalysisRun)}
}

func (m *mockRepository) CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *run
	m.runs[run.ID.String()] = &cp
	return nil
}

func (m *mockRepository) UpdateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *run
	m.runs[run.ID.String()] = &cp
	return nil
}

func (m *mockRepository) CreateTrade(ctx context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.trades = append(m.trades, trade)
	return nil
}

func (m *mockRepository) allRuns() []*models.AnalysisRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AnalysisRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out
}

func dec(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func cashBalance(symbol string, amount int64) models.Balance {
	a := decimal.NewFromInt(amount)
	return models.Balance{Symbol: symbol, Amount: &a, AvailableBalance: &a}
}

func positionBalance(symbol string, qty, rate, value, entry float64) models.Balance {
	b := models.Balance{
		Symbol:        symbol,
		Amount:        dec(qty),
		NotionalRate:  dec(rate),
		NotionalValue: dec(value),
	}
	if entry > 0 {
		b.StartOfDayNotional = dec(entry)
	}
	return b
}

// scenarioBalances is a 10000 portfolio with 3000 in BTC (exposure 0.3)
func scenarioBalances() []models.Balance {
	return []models.Balance{
		cashBalance("USD", 7000),
		positionBalance("BTC/USD", 0.05, 60000, 3000, 2500),
	}
}
