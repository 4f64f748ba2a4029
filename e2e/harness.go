// Package e2e provides end-to-end testing infrastructure for ai-trader.
//
// The harness wires the real pipeline behind the HTTP router: a paper exchange
// with static quotes, the OpenAI-compatible advisor client pointed at a local
// mock, and, when E2E_DATABASE_URL is set, the Postgres run journal.
package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"ai-trader/agents"
	"ai-trader/config"
	"ai-trader/e2e/mocks"
	"ai-trader/internal/api"
	"ai-trader/internal/app"
	"ai-trader/repository"
	"ai-trader/services"

	"github.com/shopspring/decimal"
)

// TestHarness provides the infrastructure for running E2E tests.
type TestHarness struct {
	t          *testing.T
	ctx        context.Context
	cancel     context.CancelFunc
	started    time.Time
	mockServer *mocks.MockServer
	quotes     *services.StaticQuotes
	exchange   *services.PaperExchange
	repo       *repository.Repository
	app        *app.App
	router     http.Handler
	config     *config.Config
}

// NewTestHarness creates a new test harness with all dependencies initialized.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	return &TestHarness{
		t:       t,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now().UTC(),
	}
}

// Setup initializes all test dependencies.
func (h *TestHarness) Setup() error {
	// fresh breakers so failures from one scenario never trip the next
	services.SetGlobalRegistry(services.NewCircuitBreakerRegistry(services.DefaultCircuitBreakerConfig))

	h.mockServer = mocks.NewMockServer()
	h.config = h.createTestConfig()

	h.quotes = services.NewStaticQuotes(map[string]decimal.Decimal{
		"BTC/USD": decimal.NewFromInt(60000),
		"ETH/USD": decimal.NewFromInt(3000),
		"SOL/USD": decimal.NewFromInt(150),
	})
	h.exchange = services.NewPaperExchange(h.quotes, h.config.Exchange.CashSymbols[0], decimal.NewFromFloat(h.config.Exchange.PaperStartingCash))

	advisor, err := services.NewOpenAIService(h.config)
	if err != nil {
		return fmt.Errorf("failed to create advisor: %w", err)
	}

	if dbURL := os.Getenv("E2E_DATABASE_URL"); dbURL != "" {
		h.repo, err = repository.NewRepository(h.ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to test database: %w", err)
		}
	}

	// untyped nils keep the optional journal truly absent
	var journal agents.PortfolioManagerRepository
	var runs app.RepositoryInterface
	if h.repo != nil {
		journal = h.repo
		runs = h.repo
	}

	manager := agents.NewPortfolioManager(h.config, h.exchange, advisor, journal)
	h.app = app.New(h.config, runs, manager)
	h.app.Startup(h.ctx)

	handler := api.NewHandler(h.app, h.config)
	h.router = api.NewRouter(handler, h.config)

	return nil
}

// Teardown cleans up all test resources.
func (h *TestHarness) Teardown() {
	if h.repo != nil {
		h.cleanupTestData()
	}

	// Shutdown closes the repository
	if h.app != nil {
		h.app.Shutdown(context.Background())
	}

	if h.cancel != nil {
		h.cancel()
	}

	if h.mockServer != nil {
		h.mockServer.Close()
	}
}

// Context returns the test context.
func (h *TestHarness) Context() context.Context {
	return h.ctx
}

// MockServer returns the mock advisor for scripting responses.
func (h *TestHarness) MockServer() *mocks.MockServer {
	return h.mockServer
}

// Quotes returns the price source behind the paper exchange.
func (h *TestHarness) Quotes() *services.StaticQuotes {
	return h.quotes
}

// Repository returns the test database repository, nil without E2E_DATABASE_URL.
func (h *TestHarness) Repository() *repository.Repository {
	return h.repo
}

// App returns the application instance.
func (h *TestHarness) App() *app.App {
	return h.app
}

// Router returns the HTTP router for making requests.
func (h *TestHarness) Router() http.Handler {
	return h.router
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.config
}

// DoRequest performs an HTTP request and returns the response.
func (h *TestHarness) DoRequest(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *TestHarness) createTestConfig() *config.Config {
	cfg := config.NewTestConfig()
	cfg.Advisor.Provider = config.ProviderOpenAI
	cfg.Advisor.APIKey = "test-key"
	cfg.Advisor.BaseURL = h.mockServer.URL()
	cfg.Advisor.Model = "mock-model"
	cfg.Advisor.TimeoutSeconds = 5
	cfg.Agent.AutoTradeIntervalSeconds = 1
	return cfg
}

// cleanupTestData removes the rows written since the harness started
func (h *TestHarness) cleanupTestData() {
	queries := []string{
		"DELETE FROM analysis_runs WHERE started_at >= $1",
		"DELETE FROM trades WHERE executed_at >= $1",
	}

	for _, q := range queries {
		if _, err := h.repo.Pool().Exec(context.Background(), q, h.started); err != nil {
			h.t.Logf("cleanup query failed: %s: %v", q, err)
		}
	}
}

// SkipIfNoDatabase skips the test if the E2E database is not available.
func SkipIfNoDatabase(t *testing.T) {
	t.Helper()

	dbURL := os.Getenv("E2E_DATABASE_URL")
	if dbURL == "" {
		t.Skip("E2E_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := repository.NewRepository(ctx, dbURL)
	if err != nil {
		t.Skipf("E2E database not available: %v", err)
	}
	repo.Close()
}
