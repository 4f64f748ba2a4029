package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-trader/agents"
	"ai-trader/config"
	"ai-trader/models"
	"ai-trader/services"

	"github.com/google/uuid"
)

type mockManager struct {
	mu          sync.Mutex
	advisor     bool
	analyzeErr  error
	healthErr   error
	block       chan struct{}
	entered     chan struct{}
	autoCycles  int
	lastRequest models.TradeRequest
	cancelled   bool
}

func (m *mockManager) AnalyzeMarket(ctx context.Context, symbols []string) (*models.MarketAnalysis, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	if m.analyzeErr != nil {
		return nil, m.analyzeErr
	}
	return &models.MarketAnalysis{Signal: models.HoldSignal(symbols[0])}, nil
}

func (m *mockManager) ExecuteTrade(ctx context.Context, req models.TradeRequest) (*models.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRequest = req
	return &models.ExecutionResult{Message: "Order submitted"}, nil
}

func (m *mockManager) RunAutoCycle(ctx context.Context) (*models.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoCycles++
	return &models.ExecutionResult{Message: "AI recommends holding"}, nil
}

func (m *mockManager) Overview(ctx context.Context) (*agents.PortfolioOverview, error) {
	return &agents.PortfolioOverview{}, nil
}

func (m *mockManager) History() []agents.HistoryPoint {
	return []agents.HistoryPoint{{Timestamp: time.Now()}}
}

func (m *mockManager) CancelAllOrders(ctx context.Context) error {
	m.cancelled = true
	return nil
}

func (m *mockManager) ExchangeHealth(ctx context.Context) error {
	return m.healthErr
}

func (m *mockManager) HasAdvisor() bool {
	return m.advisor
}

func (m *mockManager) cycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoCycles
}

type mockRepo struct {
	healthErr error
	runs      []models.AnalysisRun
	lastType  models.RunType
	closed    bool
}

func (r *mockRepo) Close()                           { r.closed = true }
func (r *mockRepo) Health(ctx context.Context) error { return r.healthErr }

func (r *mockRepo) GetAnalysisRun(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error) {
	for i := range r.runs {
		if r.runs[i].ID == id {
			return &r.runs[i], nil
		}
	}
	return nil, nil
}

func (r *mockRepo) GetAnalysisRuns(ctx context.Context, runType models.RunType, limit int) ([]models.AnalysisRun, error) {
	r.lastType = runType
	return r.runs, nil
}

func (r *mockRepo) GetTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	return nil, nil
}

// testApp creates an App with test config for testing
func testApp(repo RepositoryInterface, manager PortfolioManagerInterface) *App {
	return New(config.NewTestConfig(), repo, manager)
}

func TestNew_WithConcurrencyLimit(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.Agent.ConcurrencyLimit = 5
	a := New(cfg, nil, nil)

	if a.AnalysisSemCapacity() != 5 {
		t.Errorf("expected concurrency limit 5, got %d", a.AnalysisSemCapacity())
	}

	cfg.Agent.ConcurrencyLimit = 0
	if New(cfg, nil, nil).AnalysisSemCapacity() != 1 {
		t.Error("non-positive limit should fall back to 1")
	}
}

func TestApp_AnalyzeMarket_ManagerNotInitialized(t *testing.T) {
	a := testApp(nil, nil)
	if _, err := a.AnalyzeMarket(context.Background(), nil); err == nil {
		t.Error("expected error when manager is nil")
	}
}

func TestApp_AnalyzeMarket_RateLimiting(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.Agent.ConcurrencyLimit = 2
	mgr := &mockManager{block: make(chan struct{}), entered: make(chan struct{}, 2)}
	a := New(cfg, nil, mgr)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.AnalyzeMarket(context.Background(), []string{"BTC/USD"})
		}()
	}
	<-mgr.entered
	<-mgr.entered

	if _, err := a.AnalyzeMarket(context.Background(), []string{"BTC/USD"}); !errors.Is(err, ErrAnalysisQueueFull) {
		t.Errorf("expected ErrAnalysisQueueFull, got %v", err)
	}

	close(mgr.block)
	wg.Wait()

	mgr.entered = nil
	if _, err := a.AnalyzeMarket(context.Background(), []string{"BTC/USD"}); err != nil {
		t.Errorf("slot should be free again, got %v", err)
	}
}

func TestApp_ExecuteTrade(t *testing.T) {
	mgr := &mockManager{}
	a := testApp(nil, mgr)

	req := models.TradeRequest{Symbol: "ETH/USD", Side: models.TradeSideBuy, Quantity: 1}
	result, err := a.ExecuteTrade(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != "Order submitted" || mgr.lastRequest != req {
		t.Errorf("request not forwarded: %+v", mgr.lastRequest)
	}
}

func TestApp_AutoTrading(t *testing.T) {
	t.Run("requires advisor", func(t *testing.T) {
		a := testApp(nil, &mockManager{})
		if _, err := a.StartAutoTrading(); !errors.Is(err, models.ErrConfiguration) {
			t.Errorf("expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("start and stop", func(t *testing.T) {
		mgr := &mockManager{advisor: true}
		a := testApp(nil, mgr)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		a.Startup(ctx)

		status, err := a.StartAutoTrading()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !status.Active {
			t.Error("expected active status")
		}
		if _, err := a.StartAutoTrading(); !errors.Is(err, agents.ErrAutoTradingActive) {
			t.Errorf("expected ErrAutoTradingActive, got %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for mgr.cycles() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if mgr.cycles() == 0 {
			t.Error("expected the first cycle to run immediately")
		}

		if a.StopAutoTrading().Active {
			t.Error("expected idle status after stop")
		}
	})

	t.Run("nil manager", func(t *testing.T) {
		a := testApp(nil, nil)
		if _, err := a.StartAutoTrading(); err == nil {
			t.Error("expected error without manager")
		}
		if a.StopAutoTrading().Active || a.AutoTradingStatus().Active {
			t.Error("nil manager should report idle")
		}
	})
}

func TestApp_Health(t *testing.T) {
	tests := []struct {
		name         string
		manager      PortfolioManagerInterface
		repo         RepositoryInterface
		wantStatus   string
		wantDatabase string
	}{
		{"healthy without database", &mockManager{}, nil, "healthy", "not configured"},
		{"healthy with database", &mockManager{}, &mockRepo{}, "healthy", "healthy"},
		{"exchange down", &mockManager{healthErr: errors.New("timeout")}, nil, "degraded", "not configured"},
		{"database down", &mockManager{}, &mockRepo{healthErr: errors.New("refused")}, "healthy", "unhealthy: refused"},
		{"no manager", nil, nil, "unhealthy", "not configured"},
	}

	services.SetGlobalRegistry(services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testApp(tt.repo, tt.manager)
			report := a.Health(context.Background())
			if report.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", report.Status, tt.wantStatus)
			}
			if report.Database != tt.wantDatabase {
				t.Errorf("Database = %q, want %q", report.Database, tt.wantDatabase)
			}
			if report.CircuitBreakers == nil {
				t.Error("expected circuit breaker map")
			}
		})
	}
}

func TestApp_HealthDegradedByOpenBreaker(t *testing.T) {
	registry := services.NewCircuitBreakerRegistry(services.CircuitBreakerConfig{
		MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, MinRequests: 1, FailureRatio: 0.5,
	})
	services.SetGlobalRegistry(registry)
	t.Cleanup(func() {
		services.SetGlobalRegistry(services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig))
	})

	_, _ = registry.Execute(context.Background(), services.BreakerOpenRouter, func() (any, error) {
		return nil, errors.New("502 from upstream")
	})

	report := testApp(nil, &mockManager{}).Health(context.Background())
	if report.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", report.Status)
	}
	if report.Exchange != "healthy" {
		t.Errorf("Exchange = %q, want healthy", report.Exchange)
	}
	if report.CircuitBreakers[services.BreakerOpenRouter].State != "open" {
		t.Errorf("expected open openrouter breaker, got %+v", report.CircuitBreakers)
	}
}

func TestApp_GetAnalysisRuns(t *testing.T) {
	t.Run("repository not initialized", func(t *testing.T) {
		a := testApp(nil, nil)
		if _, err := a.GetAnalysisRuns(context.Background(), "", 10); !errors.Is(err, ErrNoDatabase) {
			t.Errorf("expected ErrNoDatabase, got %v", err)
		}
	})

	t.Run("filters by type", func(t *testing.T) {
		repo := &mockRepo{runs: []models.AnalysisRun{{ID: uuid.New()}}}
		a := testApp(repo, nil)
		runs, err := a.GetAnalysisRuns(context.Background(), "auto", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runs) != 1 || repo.lastType != models.RunTypeAuto {
			t.Errorf("unexpected result %v, type %q", runs, repo.lastType)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		a := testApp(&mockRepo{}, nil)
		if _, err := a.GetAnalysisRuns(context.Background(), "weekly", 10); !errors.Is(err, models.ErrData) {
			t.Errorf("expected ErrData, got %v", err)
		}
	})
}

func TestApp_GetAnalysisRun(t *testing.T) {
	id := uuid.New()
	a := testApp(&mockRepo{runs: []models.AnalysisRun{{ID: id}}}, nil)

	run, err := a.GetAnalysisRun(context.Background(), id.String())
	if err != nil || run == nil || run.ID != id {
		t.Errorf("expected run %s, got %v, %v", id, run, err)
	}
	if _, err := a.GetAnalysisRun(context.Background(), "not-a-uuid"); !errors.Is(err, models.ErrData) {
		t.Errorf("expected ErrData for bad id, got %v", err)
	}
}

func TestApp_Shutdown(t *testing.T) {
	repo := &mockRepo{}
	a := testApp(repo, &mockManager{advisor: true})
	a.Startup(context.Background())
	a.StartAutoTrading()

	a.Shutdown(context.Background())
	if !repo.closed {
		t.Error("expected repository to be closed")
	}
	if a.AutoTradingStatus().Active {
		t.Error("expected auto trading to stop on shutdown")
	}
}

func TestApp_CancelAndHistory(t *testing.T) {
	mgr := &mockManager{}
	a := testApp(nil, mgr)

	if err := a.CancelAllOrders(context.Background()); err != nil || !mgr.cancelled {
		t.Errorf("expected cancel to be forwarded, err %v", err)
	}
	if len(a.PortfolioHistory()) != 1 {
		t.Error("expected history from manager")
	}
	if testApp(nil, nil).PortfolioHistory() != nil {
		t.Error("expected nil history without manager")
	}
}

func TestParseUUID(t *testing.T) {
	id := uuid.New()
	got, err := ParseUUID(id.String())
	if err != nil || got != id {
		t.Errorf("ParseUUID(%s) = %v, %v", id, got, err)
	}
	if _, err := ParseUUID("nope"); err == nil {
		t.Error("expected error for invalid UUID")
	}
}
