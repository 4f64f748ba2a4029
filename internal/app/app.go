package app

import (
	"context"
	"errors"
	"fmt"

	"ai-trader/agents"
	"ai-trader/config"
	"ai-trader/models"
	"ai-trader/services"

	"github.com/google/uuid"
)

// ErrAnalysisQueueFull is returned when every analysis slot is taken
var ErrAnalysisQueueFull = errors.New("analysis queue full, too many concurrent requests - try again later")

// ErrNoDatabase is returned by journal reads when no database is configured
var ErrNoDatabase = errors.New("database not initialized")

// RepositoryInterface defines the journal operations needed by App
type RepositoryInterface interface {
	Close()
	Health(ctx context.Context) error
	GetAnalysisRun(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error)
	GetAnalysisRuns(ctx context.Context, runType models.RunType, limit int) ([]models.AnalysisRun, error)
	GetTrades(ctx context.Context, limit int) ([]models.Trade, error)
}

// PortfolioManagerInterface defines the pipeline operations
type PortfolioManagerInterface interface {
	AnalyzeMarket(ctx context.Context, symbols []string) (*models.MarketAnalysis, error)
	ExecuteTrade(ctx context.Context, req models.TradeRequest) (*models.ExecutionResult, error)
	RunAutoCycle(ctx context.Context) (*models.ExecutionResult, error)
	Overview(ctx context.Context) (*agents.PortfolioOverview, error)
	History() []agents.HistoryPoint
	CancelAllOrders(ctx context.Context) error
	ExchangeHealth(ctx context.Context) error
	HasAdvisor() bool
}

// App holds application dependencies using interfaces for testability
type App struct {
	ctx         context.Context
	cfg         *config.Config
	repo        RepositoryInterface
	manager     PortfolioManagerInterface
	autoTrader  *agents.AutoTrader
	analysisSem chan struct{}
}

// New creates a new App. repo may be nil when no database is configured.
func New(cfg *config.Config, repo RepositoryInterface, manager PortfolioManagerInterface) *App {
	limit := cfg.Agent.ConcurrencyLimit
	if limit <= 0 {
		limit = 1
	}
	a := &App{
		ctx:         context.Background(),
		cfg:         cfg,
		repo:        repo,
		manager:     manager,
		analysisSem: make(chan struct{}, limit),
	}
	if manager != nil {
		a.autoTrader = agents.NewAutoTrader(manager, cfg.AutoTradeInterval())
	}
	return a
}

// Startup binds the app lifetime. The auto-trading loop is tied to ctx rather than
// to the request that started it.
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
}

// Shutdown stops the auto-trading loop and closes the journal
func (a *App) Shutdown(ctx context.Context) {
	if a.autoTrader != nil {
		a.autoTrader.Stop()
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// AnalyzeMarket runs one analysis cycle. Requests beyond the concurrency limit are
// refused instead of queued.
func (a *App) AnalyzeMarket(ctx context.Context, symbols []string) (*models.MarketAnalysis, error) {
	if a.manager == nil {
		return nil, fmt.Errorf("portfolio manager not initialized")
	}

	select {
	case a.analysisSem <- struct{}{}:
		defer func() { <-a.analysisSem }()
	default:
		return nil, ErrAnalysisQueueFull
	}

	return a.manager.AnalyzeMarket(ctx, symbols)
}

// ExecuteTrade runs a manual or advisor-driven trade request
func (a *App) ExecuteTrade(ctx context.Context, req models.TradeRequest) (*models.ExecutionResult, error) {
	if a.manager == nil {
		return nil, fmt.Errorf("portfolio manager not initialized")
	}
	return a.manager.ExecuteTrade(ctx, req)
}

// Overview returns the portfolio and recent exchange trades
func (a *App) Overview(ctx context.Context) (*agents.PortfolioOverview, error) {
	if a.manager == nil {
		return nil, fmt.Errorf("portfolio manager not initialized")
	}
	return a.manager.Overview(ctx)
}

// PortfolioHistory returns the recorded portfolio values, oldest first
func (a *App) PortfolioHistory() []agents.HistoryPoint {
	if a.manager == nil {
		return nil
	}
	return a.manager.History()
}

// CancelAllOrders cancels every open order on the exchange
func (a *App) CancelAllOrders(ctx context.Context) error {
	if a.manager == nil {
		return fmt.Errorf("portfolio manager not initialized")
	}
	return a.manager.CancelAllOrders(ctx)
}

// StartAutoTrading starts the periodic auto cycle
func (a *App) StartAutoTrading() (agents.AutoTradingStatus, error) {
	if a.autoTrader == nil {
		return agents.AutoTradingStatus{}, fmt.Errorf("portfolio manager not initialized")
	}
	if !a.manager.HasAdvisor() {
		return a.autoTrader.Status(), fmt.Errorf("%w: auto trading needs an advisor", models.ErrConfiguration)
	}
	if err := a.autoTrader.Start(a.ctx); err != nil {
		return a.autoTrader.Status(), err
	}
	return a.autoTrader.Status(), nil
}

// StopAutoTrading stops the periodic auto cycle. Stopping an idle loop is a no-op.
func (a *App) StopAutoTrading() agents.AutoTradingStatus {
	if a.autoTrader == nil {
		return agents.AutoTradingStatus{}
	}
	a.autoTrader.Stop()
	return a.autoTrader.Status()
}

// AutoTradingStatus reports the auto-trading loop state
func (a *App) AutoTradingStatus() agents.AutoTradingStatus {
	if a.autoTrader == nil {
		return agents.AutoTradingStatus{}
	}
	return a.autoTrader.Status()
}

// HealthReport is the payload of the health endpoint
type HealthReport struct {
	Status          string                                   `json:"status"`
	Exchange        string                                   `json:"exchange"`
	Database        string                                   `json:"database"`
	Advisor         string                                   `json:"advisor"`
	CircuitBreakers map[string]services.CircuitBreakerStatus `json:"circuitBreakers"`
}

// Health checks the exchange and the journal. The app is degraded when the exchange
// is unreachable or a breaker is open; a missing or failing database only shows up
// in its own field.
func (a *App) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:          "healthy",
		Exchange:        "healthy",
		Database:        "not configured",
		Advisor:         "not configured",
		CircuitBreakers: services.GetGlobalRegistry().Status(),
	}

	if a.manager == nil {
		report.Status = "unhealthy"
		report.Exchange = "not configured"
		return report
	}
	if a.manager.HasAdvisor() {
		report.Advisor = "configured"
	}
	if err := a.manager.ExchangeHealth(ctx); err != nil {
		report.Status = "degraded"
		report.Exchange = "unhealthy: " + err.Error()
	}
	if open := services.GetGlobalRegistry().OpenBreakers(); len(open) > 0 {
		report.Status = "degraded"
	}
	if a.repo != nil {
		if err := a.repo.Health(ctx); err != nil {
			report.Database = "unhealthy: " + err.Error()
		} else {
			report.Database = "healthy"
		}
	}
	return report
}

// GetAnalysisRuns returns recent journaled runs, optionally filtered by type
func (a *App) GetAnalysisRuns(ctx context.Context, runType string, limit int) ([]models.AnalysisRun, error) {
	if a.repo == nil {
		return nil, ErrNoDatabase
	}
	switch models.RunType(runType) {
	case "", models.RunTypeAnalysis, models.RunTypeExecution, models.RunTypeAuto:
	default:
		return nil, fmt.Errorf("%w: unknown run type %q", models.ErrData, runType)
	}
	return a.repo.GetAnalysisRuns(ctx, models.RunType(runType), limit)
}

// GetAnalysisRun returns a single journaled run
func (a *App) GetAnalysisRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	if a.repo == nil {
		return nil, ErrNoDatabase
	}
	parsed, err := ParseUUID(id)
	if err != nil {
		return nil, err
	}
	return a.repo.GetAnalysisRun(ctx, parsed)
}

// GetJournalTrades returns trades recorded in the journal
func (a *App) GetJournalTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	if a.repo == nil {
		return nil, ErrNoDatabase
	}
	return a.repo.GetTrades(ctx, limit)
}

// ParseUUID parses a string UUID
func ParseUUID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid UUID: %v", models.ErrData, err)
	}
	return parsed, nil
}

// AnalysisSemCapacity returns the capacity of the analysis semaphore (for testing)
func (a *App) AnalysisSemCapacity() int {
	return cap(a.analysisSem)
}
