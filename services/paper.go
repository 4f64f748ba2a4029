package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-trader/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteSource supplies market quotes to the paper exchange
type QuoteSource interface {
	GetMarketQuotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error)
}

// DefaultPaperFeeRate is charged on the notional of every simulated fill
var DefaultPaperFeeRate = decimal.NewFromFloat(0.001)

type paperHolding struct {
	quantity decimal.Decimal
	cost     decimal.Decimal
}

// PaperExchange is an in-memory simulated account. Orders fill immediately at the
// current quote (market) or at the limit price.
type PaperExchange struct {
	mu         sync.Mutex
	quotes     QuoteSource
	cashSymbol string
	cash       decimal.Decimal
	holdings   map[string]*paperHolding
	trades     []models.Trade
	feeRate    decimal.Decimal
	now        func() time.Time
}

// NewPaperExchange creates a paper account funded with startingCash
func NewPaperExchange(quotes QuoteSource, cashSymbol string, startingCash decimal.Decimal) *PaperExchange {
	if cashSymbol == "" {
		cashSymbol = "USD"
	}
	return &PaperExchange{
		quotes:     quotes,
		cashSymbol: cashSymbol,
		cash:       startingCash,
		holdings:   make(map[string]*paperHolding),
		feeRate:    DefaultPaperFeeRate,
		now:        time.Now,
	}
}

// Name returns the adapter name
func (p *PaperExchange) Name() string {
	return "paper"
}

// GetMarketQuotes delegates to the quote source
func (p *PaperExchange) GetMarketQuotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error) {
	return p.quotes.GetMarketQuotes(ctx, symbols)
}

// GetBalances values every holding at the current quote
func (p *PaperExchange) GetBalances(ctx context.Context) ([]models.Balance, error) {
	p.mu.Lock()
	cash := p.cash
	symbols := make([]string, 0, len(p.holdings))
	held := make(map[string]paperHolding, len(p.holdings))
	for symbol, h := range p.holdings {
		symbols = append(symbols, symbol)
		held[symbol] = *h
	}
	p.mu.Unlock()

	sort.Strings(symbols)
	balances := []models.Balance{{Symbol: p.cashSymbol, Amount: &cash, AvailableBalance: &cash}}
	if len(symbols) == 0 {
		return balances, nil
	}

	quotes, err := p.quotes.GetMarketQuotes(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to price paper holdings: %w", err)
	}

	for _, symbol := range symbols {
		q := models.FindQuote(quotes, symbol)
		if q == nil {
			return nil, fmt.Errorf("%w: no quote for held symbol %s", models.ErrData, symbol)
		}
		h := held[symbol]
		qty, rate, cost := h.quantity, q.Price, h.cost
		value := qty.Mul(rate)
		balances = append(balances, models.Balance{
			Symbol:             symbol,
			Amount:             &qty,
			AvailableBalance:   &qty,
			NotionalRate:       &rate,
			NotionalValue:      &value,
			StartOfDayNotional: &cost,
		})
	}
	return balances, nil
}

// GetRecentTrades returns up to limit trades, newest first
func (p *PaperExchange) GetRecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.trades)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Trade, 0, n)
	for i := len(p.trades) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, p.trades[i])
	}
	return out, nil
}

// SubmitOrder fills the order against the simulated account
func (p *PaperExchange) SubmitOrder(ctx context.Context, order models.OrderRequest) (*models.Trade, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	price, err := p.fillPrice(ctx, order)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: submission cancelled: %w", models.ErrExecution, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	notional := order.Quantity.Mul(price)
	fee := notional.Mul(p.feeRate).Round(8)

	switch order.Side {
	case models.TradeSideBuy:
		total := notional.Add(fee)
		if total.GreaterThan(p.cash) {
			return nil, fmt.Errorf("%w: insufficient %s balance: need %s, have %s", models.ErrExecution, p.cashSymbol, total.StringFixed(2), p.cash.StringFixed(2))
		}
		p.cash = p.cash.Sub(total)
		h := p.holdings[order.Symbol]
		if h == nil {
			h = &paperHolding{}
			p.holdings[order.Symbol] = h
		}
		h.quantity = h.quantity.Add(order.Quantity)
		h.cost = h.cost.Add(notional)

	case models.TradeSideSell:
		h := p.holdings[order.Symbol]
		if h == nil || h.quantity.LessThan(order.Quantity) {
			return nil, fmt.Errorf("%w: insufficient %s holdings to sell %s", models.ErrExecution, order.Symbol, order.Quantity)
		}
		// reduce cost basis proportionally
		h.cost = h.cost.Sub(h.cost.Mul(order.Quantity).Div(h.quantity))
		h.quantity = h.quantity.Sub(order.Quantity)
		if h.quantity.IsZero() {
			delete(p.holdings, order.Symbol)
		}
		p.cash = p.cash.Add(notional.Sub(fee))
	}

	trade := models.Trade{
		ID:        uuid.New().String(),
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Timestamp: p.now(),
		Status:    models.TradeStatusPending,
		Reasoning: order.Reasoning,
	}
	trade.Complete(price, fee)
	p.trades = append(p.trades, trade)

	return &trade, nil
}

func (p *PaperExchange) fillPrice(ctx context.Context, order models.OrderRequest) (decimal.Decimal, error) {
	if !order.IsMarket() {
		return *order.Price, nil
	}
	quotes, err := p.quotes.GetMarketQuotes(ctx, []string{order.Symbol})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to price order: %w", models.ErrExecution, err)
	}
	q := models.FindQuote(quotes, order.Symbol)
	if q == nil || !q.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: no usable quote for %s", models.ErrExecution, order.Symbol)
	}
	return q.Price, nil
}

// CancelAllOrders is a no-op: paper orders fill immediately
func (p *PaperExchange) CancelAllOrders(ctx context.Context) error {
	return nil
}

// Health always succeeds for the in-memory account
func (p *PaperExchange) Health(ctx context.Context) error {
	return ctx.Err()
}

// StaticQuotes is a QuoteSource backed by fixed prices
type StaticQuotes struct {
	mu     sync.RWMutex
	quotes map[string]models.MarketQuote
}

// NewStaticQuotes creates a source from symbol → price
func NewStaticQuotes(prices map[string]decimal.Decimal) *StaticQuotes {
	s := &StaticQuotes{quotes: make(map[string]models.MarketQuote, len(prices))}
	for symbol, price := range prices {
		s.SetPrice(symbol, price)
	}
	return s
}

// SetPrice replaces the quote for symbol with a flat 24h range around price
func (s *StaticQuotes) SetPrice(symbol string, price decimal.Decimal) {
	s.Set(models.MarketQuote{
		Symbol:    symbol,
		Price:     price,
		High24h:   price,
		Low24h:    price,
		Timestamp: time.Now(),
	})
}

// Set replaces the quote for its symbol
func (s *StaticQuotes) Set(q models.MarketQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[strings.ToUpper(q.Symbol)] = q
}

// GetMarketQuotes returns quotes in request order; unknown symbols are a data error
func (s *StaticQuotes) GetMarketQuotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MarketQuote, 0, len(symbols))
	for _, symbol := range symbols {
		q, ok := s.quotes[strings.ToUpper(symbol)]
		if !ok {
			return nil, fmt.Errorf("%w: no quote for %s", models.ErrData, symbol)
		}
		out = append(out, q)
	}
	return out, nil
}
