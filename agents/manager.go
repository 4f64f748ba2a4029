package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ai-trader/config"
	"ai-trader/models"
	"ai-trader/observability"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// PortfolioManagerRepository defines the journal operations used by PortfolioManager.
// It is optional; a nil repository disables the journal.
type PortfolioManagerRepository interface {
	CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error
	UpdateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error
	CreateTrade(ctx context.Context, trade *models.Trade) error
}

// PortfolioOverview is the portfolio together with the latest trades
type PortfolioOverview struct {
	Portfolio    *models.Portfolio `json:"portfolio"`
	RecentTrades []models.Trade    `json:"recentTrades"`
}

// PortfolioManager runs the fetch → valuate → signal → risk → gate → submit pipeline
// against a single exchange account.
type PortfolioManager struct {
	exchange ExchangeService
	signals  *SignalGenerator
	valuator *Valuator
	risk     *RiskEvaluator
	gate     *TradeGate
	repo     PortfolioManagerRepository
	cfg      *config.Config
	history  *PortfolioHistory
	health   *HealthCache

	// at most one order in flight per account
	submitMu sync.Mutex
}

// NewPortfolioManager creates a new PortfolioManager. llm may be nil, in which case only
// manual trading and portfolio reads are available.
func NewPortfolioManager(cfg *config.Config, exchange ExchangeService, llm LLMService, repo PortfolioManagerRepository) *PortfolioManager {
	policy := RiskPolicy{
		MaxRiskPerTrade:      cfg.Risk.MaxRiskPerTrade,
		RejectThreshold:      cfg.Risk.RejectThreshold,
		AutoExecuteThreshold: cfg.Risk.AutoExecuteThreshold,
	}

	m := &PortfolioManager{
		exchange: exchange,
		valuator: NewValuator(),
		risk:     NewRiskEvaluator(policy),
		gate:     NewTradeGate(policy),
		repo:     repo,
		cfg:      cfg,
		history:  NewPortfolioHistory(cfg.Agent.PortfolioHistorySize),
	}
	if llm != nil {
		m.signals = NewSignalGenerator(llm, cfg.Agent.TradeHistoryWindow, cfg.AdvisorTimeout())
	}
	ttl := DefaultHealthCacheTTL
	if cfg.Agent.HealthCacheTTLSeconds > 0 {
		ttl = time.Duration(cfg.Agent.HealthCacheTTLSeconds) * time.Second
	}
	m.health = NewHealthCache(exchange.Health, ttl)
	return m
}

// Name returns the manager name
func (m *PortfolioManager) Name() string {
	return "Portfolio Manager"
}

// HasAdvisor reports whether AI analysis is available
func (m *PortfolioManager) HasAdvisor() bool {
	return m.signals != nil
}

// Exchange returns the exchange adapter
func (m *PortfolioManager) Exchange() ExchangeService {
	return m.exchange
}

// History returns the recorded portfolio values, oldest first
func (m *PortfolioManager) History() []HistoryPoint {
	return m.history.Points()
}

// ExchangeHealth returns the cached exchange reachability
func (m *PortfolioManager) ExchangeHealth(ctx context.Context) error {
	return m.health.Check(ctx)
}

// Portfolio fetches balances and values them
func (m *PortfolioManager) Portfolio(ctx context.Context) (*models.Portfolio, error) {
	balances, err := m.exchange.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balances: %w", err)
	}
	return m.valuate(balances)
}

func (m *PortfolioManager) valuate(balances []models.Balance) (*models.Portfolio, error) {
	portfolio, err := m.valuator.Valuate(balances, m.cfg.Exchange.CashSymbols)
	if err != nil {
		return nil, err
	}

	m.history.Record(portfolio.TotalValue, m.valuator.now())
	exposure := 0.0
	if portfolio.TotalValue.IsPositive() {
		exposure = portfolio.Exposure().Div(portfolio.TotalValue).InexactFloat64()
	}
	observability.GetMetrics().SetPortfolio(portfolio.TotalValue.InexactFloat64(), exposure)
	return portfolio, nil
}

// Overview returns the portfolio and the most recent trades
func (m *PortfolioManager) Overview(ctx context.Context) (*PortfolioOverview, error) {
	var (
		portfolio *models.Portfolio
		trades    []models.Trade
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := m.Portfolio(gctx)
		portfolio = p
		return err
	})
	g.Go(func() error {
		t, err := m.exchange.GetRecentTrades(gctx, m.cfg.Agent.RecentTradesLimit)
		if err != nil {
			return fmt.Errorf("failed to fetch recent trades: %w", err)
		}
		trades = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if trades == nil {
		trades = []models.Trade{}
	}
	return &PortfolioOverview{Portfolio: portfolio, RecentTrades: trades}, nil
}

// marketSnapshot is everything one cycle reads from the exchange
type marketSnapshot struct {
	quotes    []models.MarketQuote
	portfolio *models.Portfolio
	trades    []models.Trade
}

func (m *PortfolioManager) fetchSnapshot(ctx context.Context, symbols []string, tradeLimit int) (*marketSnapshot, error) {
	snap := &marketSnapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		quotes, err := m.exchange.GetMarketQuotes(gctx, symbols)
		if err != nil {
			return fmt.Errorf("failed to fetch market data: %w", err)
		}
		snap.quotes = quotes
		return nil
	})
	g.Go(func() error {
		balances, err := m.exchange.GetBalances(gctx)
		if err != nil {
			return fmt.Errorf("failed to fetch balances: %w", err)
		}
		p, err := m.valuate(balances)
		snap.portfolio = p
		return err
	})
	g.Go(func() error {
		trades, err := m.exchange.GetRecentTrades(gctx, tradeLimit)
		if err != nil {
			return fmt.Errorf("failed to fetch recent trades: %w", err)
		}
		snap.trades = trades
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// AnalyzeMarket runs one analysis cycle over symbols without executing anything.
// An empty symbol list analyzes the configured trading symbols.
func (m *PortfolioManager) AnalyzeMarket(ctx context.Context, symbols []string) (*models.MarketAnalysis, error) {
	if m.signals == nil {
		return nil, fmt.Errorf("%w: no advisor configured", models.ErrConfiguration)
	}
	symbols = m.symbolsOrDefault(symbols)

	run := m.startRun(ctx, models.RunTypeAnalysis, symbols)
	analysis, err := m.analyze(ctx, symbols)
	if err != nil {
		m.failRun(ctx, run, "analyze", err)
		return nil, err
	}

	outcome := analysis.Outcome()
	run.RecordSignal(outcome, &analysis.RiskMetrics)
	m.completeRun(ctx, run, map[string]interface{}{
		"symbol":         analysis.Signal.Symbol,
		"reasoning":      analysis.Signal.Reasoning,
		"recommendation": analysis.RiskMetrics.Recommendation,
	})
	return analysis, nil
}

func (m *PortfolioManager) analyze(ctx context.Context, symbols []string) (*models.MarketAnalysis, error) {
	snap, err := m.fetchSnapshot(ctx, symbols, m.cfg.Agent.AnalysisTradesLimit)
	if err != nil {
		return nil, err
	}

	outcome, err := m.signals.Generate(ctx, snap.quotes, snap.portfolio.Positions, snap.trades)
	if err != nil {
		return nil, err
	}
	risk := m.risk.Evaluate(snap.portfolio, outcome.Signal)

	return &models.MarketAnalysis{
		Signal:        outcome.Signal,
		SignalSource:  outcome.Source,
		FailureReason: outcome.FailureReason,
		RiskMetrics:   risk,
		MarketData:    snap.quotes,
		Portfolio:     snap.portfolio,
	}, nil
}

// ExecuteTrade handles a user trade request. With UseAI the advisor decides the side and
// the trade passes the risk gate; otherwise the order is validated and sent as given.
func (m *PortfolioManager) ExecuteTrade(ctx context.Context, req models.TradeRequest) (*models.ExecutionResult, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", models.ErrData)
	}
	if req.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", models.ErrData)
	}

	if req.UseAI {
		return m.executeWithAdvisor(ctx, symbol, decimal.NewFromFloat(req.Quantity))
	}
	return m.executeManual(ctx, symbol, req)
}

func (m *PortfolioManager) executeManual(ctx context.Context, symbol string, req models.TradeRequest) (*models.ExecutionResult, error) {
	side, err := models.ParseTradeSide(string(req.Side))
	if err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", models.ErrData)
	}

	order := models.OrderRequest{
		Symbol:    symbol,
		Side:      side,
		Quantity:  decimal.NewFromFloat(req.Quantity),
		Reasoning: "manual order",
	}

	run := m.startRun(ctx, models.RunTypeExecution, []string{symbol})
	trade, err := m.submit(ctx, order)
	if err != nil {
		m.failRun(ctx, run, "submit", err)
		return nil, err
	}
	run.TradeID = trade.ID
	run.DecisionOutcome = models.DecisionApproved
	m.completeRun(ctx, run, map[string]interface{}{"manual": true})

	return &models.ExecutionResult{
		Message:   "Order submitted",
		Decision:  models.ApprovedDecision(order),
		Trade:     trade,
		Portfolio: m.refreshPortfolio(ctx),
	}, nil
}

func (m *PortfolioManager) executeWithAdvisor(ctx context.Context, symbol string, requested decimal.Decimal) (*models.ExecutionResult, error) {
	if m.signals == nil {
		return nil, fmt.Errorf("%w: no advisor configured", models.ErrConfiguration)
	}

	symbols := []string{symbol}
	run := m.startRun(ctx, models.RunTypeExecution, symbols)

	snap, err := m.fetchSnapshot(ctx, symbols, m.cfg.Agent.TradeHistoryWindow)
	if err != nil {
		m.failRun(ctx, run, "fetch", err)
		return nil, err
	}

	outcome, err := m.signals.Generate(ctx, snap.quotes, snap.portfolio.Positions, snap.trades)
	if err != nil {
		m.failRun(ctx, run, "signal", err)
		return nil, err
	}

	return m.executeSignal(ctx, run, outcome, snap.portfolio, snap.quotes, &requested)
}

// RunAutoCycle analyzes the configured symbols and executes the signal when it is
// actionable and its risk score clears the auto-execute threshold. The signal's own
// suggested quantity is used.
func (m *PortfolioManager) RunAutoCycle(ctx context.Context) (*models.ExecutionResult, error) {
	if m.signals == nil {
		return nil, fmt.Errorf("%w: no advisor configured", models.ErrConfiguration)
	}
	symbols := m.symbolsOrDefault(nil)
	run := m.startRun(ctx, models.RunTypeAuto, symbols)

	analysis, err := m.analyze(ctx, symbols)
	if err != nil {
		m.failRun(ctx, run, "analyze", err)
		return nil, err
	}

	outcome := analysis.Outcome()
	signal := outcome.Signal
	threshold := m.risk.Policy().AutoExecuteThreshold
	if signal.Action != models.SignalActionHold && analysis.RiskMetrics.RiskScore <= threshold {
		run.RecordSignal(outcome, &analysis.RiskMetrics)
		run.DecisionOutcome = models.DecisionHold
		m.completeRun(ctx, run, map[string]interface{}{"skipped": "risk score below auto-execute threshold"})
		return &models.ExecutionResult{
			Message:      fmt.Sprintf("Risk score %.2f does not clear auto-execute threshold %.2f", analysis.RiskMetrics.RiskScore, threshold),
			Decision:     models.HoldDecision("risk score below auto-execute threshold"),
			Signal:       &signal,
			SignalSource: outcome.Source,
			RiskMetrics:  &analysis.RiskMetrics,
			Portfolio:    analysis.Portfolio,
		}, nil
	}

	return m.executeSignal(ctx, run, outcome, analysis.Portfolio, analysis.MarketData, nil)
}

// executeSignal runs risk → gate → submit for an already generated signal and
// finishes the run.
func (m *PortfolioManager) executeSignal(ctx context.Context, run *models.AnalysisRun, outcome models.SignalOutcome, portfolio *models.Portfolio, quotes []models.MarketQuote, requested *decimal.Decimal) (*models.ExecutionResult, error) {
	signal := outcome.Signal
	result := &models.ExecutionResult{
		Signal:       &signal,
		SignalSource: outcome.Source,
		Portfolio:    portfolio,
	}

	if signal.Action == models.SignalActionHold {
		run.RecordSignal(outcome, nil)
		run.DecisionOutcome = models.DecisionHold
		m.completeRun(ctx, run, map[string]interface{}{"reasoning": signal.Reasoning})

		result.Message = "AI recommends holding"
		result.Decision = models.HoldDecision(signal.Reasoning)
		return result, nil
	}

	risk := m.risk.Evaluate(portfolio, signal)
	result.RiskMetrics = &risk
	run.RecordSignal(outcome, &risk)

	decision, err := m.gate.SizeAndGate(signal, risk, quotes, requested)
	if err != nil {
		m.failRun(ctx, run, "gate", err)
		return nil, err
	}
	result.Decision = decision
	run.DecisionOutcome = decision.Outcome

	switch decision.Outcome {
	case models.DecisionHold:
		m.completeRun(ctx, run, nil)
		result.Message = "AI recommends holding"
		return result, nil
	case models.DecisionRejected:
		m.completeRun(ctx, run, map[string]interface{}{"reason": decision.Reason})
		result.Message = "Trade rejected due to high risk"
		if decision.Reason == ReasonZeroQuantity {
			result.Message = "Trade rejected: " + decision.Reason
		}
		return result, nil
	}

	trade, err := m.submit(ctx, *decision.Order)
	if err != nil {
		m.failRun(ctx, run, "submit", err)
		return nil, err
	}
	run.TradeID = trade.ID
	m.completeRun(ctx, run, map[string]interface{}{
		"quantity": decision.Order.Quantity.String(),
		"side":     string(decision.Order.Side),
	})

	result.Message = "Order submitted"
	result.Trade = trade
	result.Portfolio = m.refreshPortfolio(ctx)
	return result, nil
}

// submit sends one order under the per-account lock and the order timeout
func (m *PortfolioManager) submit(ctx context.Context, order models.OrderRequest) (*models.Trade, error) {
	m.submitMu.Lock()
	defer m.submitMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: submission cancelled: %w", models.ErrExecution, err)
	}

	submitCtx := ctx
	if timeout := m.cfg.OrderTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := observability.WithSymbol(order.Symbol)
	metrics := observability.GetMetrics()

	trade, err := m.exchange.SubmitOrder(submitCtx, order)
	if err != nil {
		if !errors.Is(err, models.ErrExecution) && !errors.Is(err, models.ErrData) {
			err = fmt.Errorf("%w: %w", models.ErrExecution, err)
		}
		metrics.RecordOrder(string(order.Side), string(models.TradeStatusFailed))
		logger.Error("order submission failed", "side", order.Side, "quantity", order.Quantity.String(), "error", err)
		return nil, err
	}

	metrics.RecordOrder(string(order.Side), string(trade.Status))
	logger.Info("order submitted",
		"trade_id", trade.ID,
		"side", order.Side,
		"quantity", order.Quantity.String(),
		"status", trade.Status)

	if m.repo != nil {
		if err := m.repo.CreateTrade(ctx, trade); err != nil {
			logger.Warn("failed to journal trade", "trade_id", trade.ID, "error", err)
		}
	}
	return trade, nil
}

// refreshPortfolio re-reads the portfolio after an execution. Failure only costs the
// caller the fresh snapshot.
func (m *PortfolioManager) refreshPortfolio(ctx context.Context) *models.Portfolio {
	p, err := m.Portfolio(ctx)
	if err != nil {
		observability.Warn("failed to refresh portfolio after execution", "error", err)
		return nil
	}
	return p
}

// CancelAllOrders cancels every open order on the account
func (m *PortfolioManager) CancelAllOrders(ctx context.Context) error {
	m.submitMu.Lock()
	defer m.submitMu.Unlock()
	return m.exchange.CancelAllOrders(ctx)
}

func (m *PortfolioManager) symbolsOrDefault(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return append(out, m.cfg.Exchange.TradingSymbols...)
	}
	return out
}
