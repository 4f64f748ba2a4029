package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-trader/models"
	"ai-trader/observability"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// alpacaTradeClient is the subset of the Alpaca trading API we use (for testing)
type alpacaTradeClient interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	GetOrders(req alpaca.GetOrdersRequest) ([]alpaca.Order, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	CancelAllOrders() error
}

// alpacaDataClient is the subset of the Alpaca market data API we use (for testing)
type alpacaDataClient interface {
	GetCryptoSnapshot(symbol string, req marketdata.GetCryptoSnapshotRequest) (*marketdata.CryptoSnapshot, error)
}

// quoteCurrencies are the suffixes used to split Alpaca's compact crypto symbols
var quoteCurrencies = []string{"USDT", "USDC", "USD", "BTC"}

// AlpacaService is the exchange adapter for an Alpaca crypto account
type AlpacaService struct {
	tradeClient alpacaTradeClient
	dataClient  alpacaDataClient
	retry       RetryConfig
	concurrency int
}

// NewAlpacaService creates a new AlpacaService instance
func NewAlpacaService(apiKey, apiSecret, baseURL string, concurrency int) *AlpacaService {
	tradeClient := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})

	dataClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})

	return newAlpacaServiceWithClients(tradeClient, dataClient, concurrency)
}

func newAlpacaServiceWithClients(tradeClient alpacaTradeClient, dataClient alpacaDataClient, concurrency int) *AlpacaService {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &AlpacaService{
		tradeClient: tradeClient,
		dataClient:  dataClient,
		retry:       DefaultRetryConfig,
		concurrency: concurrency,
	}
}

// Name returns the adapter name
func (s *AlpacaService) Name() string {
	return BreakerAlpaca
}

// GetMarketQuotes fetches a snapshot per symbol concurrently. Results keep the request order.
func (s *AlpacaService) GetMarketQuotes(ctx context.Context, symbols []string) ([]models.MarketQuote, error) {
	quotes := make([]models.MarketQuote, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			quote, err := s.getQuote(gctx, symbol)
			if err != nil {
				return err
			}
			quotes[i] = *quote
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (s *AlpacaService) getQuote(ctx context.Context, symbol string) (*models.MarketQuote, error) {
	var snapshot *marketdata.CryptoSnapshot
	err := s.read(ctx, "get_snapshot", func() error {
		snap, err := s.dataClient.GetCryptoSnapshot(symbol, marketdata.GetCryptoSnapshotRequest{})
		if err != nil {
			return fmt.Errorf("failed to get snapshot for %s: %w", symbol, err)
		}
		snapshot = snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshotToQuote(symbol, snapshot)
}

func snapshotToQuote(symbol string, snap *marketdata.CryptoSnapshot) (*models.MarketQuote, error) {
	if snap == nil || (snap.LatestTrade == nil && snap.DailyBar == nil) {
		return nil, fmt.Errorf("%w: no market data for %s", models.ErrData, symbol)
	}

	quote := &models.MarketQuote{Symbol: symbol}
	if snap.DailyBar != nil {
		quote.Price = decimal.NewFromFloat(snap.DailyBar.Close)
		quote.High24h = decimal.NewFromFloat(snap.DailyBar.High)
		quote.Low24h = decimal.NewFromFloat(snap.DailyBar.Low)
		quote.Volume24h = decimal.NewFromFloat(snap.DailyBar.Volume)
		quote.Timestamp = snap.DailyBar.Timestamp
	}
	if snap.LatestTrade != nil {
		quote.Price = decimal.NewFromFloat(snap.LatestTrade.Price)
		quote.Timestamp = snap.LatestTrade.Timestamp
	}
	if snap.PrevDailyBar != nil && snap.PrevDailyBar.Close > 0 {
		prev := decimal.NewFromFloat(snap.PrevDailyBar.Close)
		quote.Change24h = quote.Price.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(4)
	}

	if err := quote.Validate(); err != nil {
		return nil, err
	}
	return quote, nil
}

// GetBalances returns the cash balance followed by one record per open position
func (s *AlpacaService) GetBalances(ctx context.Context) ([]models.Balance, error) {
	var account *alpaca.Account
	var positions []alpaca.Position

	err := s.read(ctx, "get_account", func() error {
		acct, err := s.tradeClient.GetAccount()
		if err != nil {
			return fmt.Errorf("failed to get account: %w", err)
		}
		account = acct
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.read(ctx, "get_positions", func() error {
		pos, err := s.tradeClient.GetPositions()
		if err != nil {
			return fmt.Errorf("failed to get positions: %w", err)
		}
		positions = pos
		return nil
	})
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(account.Currency)
	if currency == "" {
		currency = "USD"
	}
	cash := account.Cash
	balances := make([]models.Balance, 0, len(positions)+1)
	balances = append(balances, models.Balance{
		Symbol:           currency,
		Amount:           &cash,
		AvailableBalance: &cash,
	})

	for _, p := range positions {
		qty := p.Qty
		entry := p.Qty.Mul(p.AvgEntryPrice)
		balances = append(balances, models.Balance{
			Symbol:             NormalizeSymbol(p.Symbol),
			Amount:             &qty,
			NotionalRate:       p.CurrentPrice,
			NotionalValue:      p.MarketValue,
			StartOfDayNotional: &entry,
		})
	}

	return balances, nil
}

// GetRecentTrades returns the newest filled orders, newest first
func (s *AlpacaService) GetRecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	var orders []alpaca.Order
	err := s.read(ctx, "get_orders", func() error {
		o, err := s.tradeClient.GetOrders(alpaca.GetOrdersRequest{
			Status:    "closed",
			Limit:     limit,
			Direction: "desc",
		})
		if err != nil {
			return fmt.Errorf("failed to get orders: %w", err)
		}
		orders = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	trades := make([]models.Trade, 0, len(orders))
	for _, o := range orders {
		if o.FilledQty.IsZero() || o.FilledAvgPrice == nil {
			continue
		}
		trades = append(trades, *orderToTrade(&o))
	}
	return trades, nil
}

// SubmitOrder places the order once. It is guarded by the breaker but never retried.
func (s *AlpacaService) SubmitOrder(ctx context.Context, order models.OrderRequest) (*models.Trade, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: submission cancelled before sending: %w", models.ErrExecution, err)
	}

	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerAlpaca, "place_order")
	timer := metrics.NewTimer()

	qty := order.Quantity
	req := alpaca.PlaceOrderRequest{
		Symbol:      order.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(order.Side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.GTC,
	}
	if !order.IsMarket() {
		req.Type = alpaca.Limit
		req.LimitPrice = order.Price
	}

	placed, err := WithCircuitBreaker(ctx, BreakerAlpaca, func() (*alpaca.Order, error) {
		return runWithContext(ctx, func() (*alpaca.Order, error) {
			return s.tradeClient.PlaceOrder(req)
		})
	})
	timer.ObserveExternalAPI(BreakerAlpaca, "place_order")
	if err != nil {
		metrics.RecordExternalAPIError(BreakerAlpaca, "place_order", categorizeAPIError(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: order submission timed out, exchange state unknown: %w", models.ErrExecution, err)
		}
		return nil, fmt.Errorf("%w: failed to place order for %s: %w", models.ErrExecution, order.Symbol, err)
	}

	trade := orderToTrade(placed)
	trade.Reasoning = order.Reasoning
	if trade.Price.IsZero() && order.Price != nil {
		trade.Price = *order.Price
		trade.Notional = trade.Quantity.Mul(trade.Price)
	}
	return trade, nil
}

// CancelAllOrders cancels every open order on the account
func (s *AlpacaService) CancelAllOrders(ctx context.Context) error {
	_, err := WithCircuitBreaker(ctx, BreakerAlpaca, func() (struct{}, error) {
		return runWithContext(ctx, func() (struct{}, error) {
			return struct{}{}, s.tradeClient.CancelAllOrders()
		})
	})
	if err != nil {
		return fmt.Errorf("%w: failed to cancel orders: %w", models.ErrExecution, err)
	}
	return nil
}

// Health checks that the account endpoint answers
func (s *AlpacaService) Health(ctx context.Context) error {
	_, err := runWithContext(ctx, func() (*alpaca.Account, error) {
		return s.tradeClient.GetAccount()
	})
	return err
}

// read wraps an idempotent call with metrics, the breaker and retries
func (s *AlpacaService) read(ctx context.Context, operation string, fn func() error) error {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerAlpaca, operation)
	timer := metrics.NewTimer()

	err := WithRetry(ctx, s.retry, func() error {
		_, err := WithCircuitBreaker(ctx, BreakerAlpaca, func() (struct{}, error) {
			return runWithContext(ctx, func() (struct{}, error) {
				return struct{}{}, fn()
			})
		})
		return err
	})

	timer.ObserveExternalAPI(BreakerAlpaca, operation)
	if err != nil {
		metrics.RecordExternalAPIError(BreakerAlpaca, operation, categorizeAPIError(err))
	}
	return err
}

// runWithContext runs a blocking SDK call and gives up when ctx ends first.
// The Alpaca SDK is not context aware.
func runWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func orderToTrade(o *alpaca.Order) *models.Trade {
	trade := &models.Trade{
		ID:        o.ID,
		Symbol:    NormalizeSymbol(o.Symbol),
		Side:      models.TradeSide(o.Side),
		Timestamp: o.CreatedAt,
		Status:    models.TradeStatusPending,
		Fee:       decimal.Zero,
	}
	if o.Qty != nil {
		trade.Quantity = *o.Qty
	}

	switch o.Status {
	case "filled":
		trade.Status = models.TradeStatusCompleted
	case "canceled", "expired", "rejected":
		trade.Status = models.TradeStatusFailed
	}

	if o.FilledAvgPrice != nil {
		trade.Price = *o.FilledAvgPrice
	} else if o.LimitPrice != nil {
		trade.Price = *o.LimitPrice
	}
	if !o.FilledQty.IsZero() {
		trade.Quantity = o.FilledQty
	}
	if o.FilledAt != nil {
		trade.Timestamp = *o.FilledAt
	}
	trade.Notional = trade.Quantity.Mul(trade.Price)
	return trade
}

// NormalizeSymbol turns Alpaca's compact crypto symbols (BTCUSD) into BASE/QUOTE form
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if strings.Contains(symbol, "/") {
		return symbol
	}
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return symbol[:len(symbol)-len(q)] + "/" + q
		}
	}
	return symbol
}

