package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-trader/agents"
	"ai-trader/config"
	"ai-trader/internal/app"
	"ai-trader/models"
	"ai-trader/services"

	"github.com/shopspring/decimal"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) Name() string { return "stub" }

const buyETH = `{"symbol":"ETH/USD","action":"buy","confidence":0.9,"reasoning":"breakout","suggestedQuantity":1}`

// testConfig returns a test configuration
func testConfig() *config.Config {
	return config.NewTestConfig()
}

// testApp wires a paper exchange funded with 10000 USD behind the real pipeline
func testApp(t *testing.T, llm services.LLMService) *app.App {
	t.Helper()
	quotes := services.NewStaticQuotes(map[string]decimal.Decimal{
		"BTC/USD": decimal.NewFromInt(60000),
		"ETH/USD": decimal.NewFromInt(3000),
		"SOL/USD": decimal.NewFromInt(150),
	})
	exchange := services.NewPaperExchange(quotes, "USD", decimal.NewFromInt(10000))

	manager := agents.NewPortfolioManager(testConfig(), exchange, llm, nil)
	a := app.New(testConfig(), nil, manager)
	a.Startup(context.Background())
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a
}

// testRouter creates a Chi router with test config for testing
func testRouter(application *app.App) http.Handler {
	cfg := testConfig()
	return NewRouter(NewHandler(application, cfg), cfg)
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHandler_Health(t *testing.T) {
	router := testRouter(testApp(t, nil))

	w := doRequest(t, router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	report := decode[app.HealthReport](t, w)
	if report.Status != "healthy" || report.Exchange != "healthy" {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Database != "not configured" || report.Advisor != "not configured" {
		t.Errorf("unexpected optional services %+v", report)
	}
}

func TestHandler_HealthWithoutManager(t *testing.T) {
	router := testRouter(app.New(testConfig(), nil, nil))

	w := doRequest(t, router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestHandler_Metrics(t *testing.T) {
	router := testRouter(testApp(t, nil))
	doRequest(t, router, http.MethodGet, "/api/health", "")

	w := doRequest(t, router, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestHandler_Analyze(t *testing.T) {
	t.Run("generated signal", func(t *testing.T) {
		router := testRouter(testApp(t, &stubLLM{response: buyETH}))

		w := doRequest(t, router, http.MethodPost, "/api/ai/analyze", `{"symbols":["eth/usd"]}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		resp := decode[AnalyzeResponse](t, w)
		if resp.Signal.Action != models.SignalActionBuy || resp.SignalSource != models.SignalSourceGenerated {
			t.Errorf("unexpected signal %+v", resp)
		}
		if resp.RiskMetrics.RiskScore != 0.9 || resp.RiskMetrics.Recommendation != "proceed" {
			t.Errorf("unexpected risk %+v", resp.RiskMetrics)
		}
		if len(resp.MarketData) != 1 || resp.MarketData[0].Symbol != "ETH/USD" {
			t.Errorf("unexpected market data %+v", resp.MarketData)
		}
	})

	t.Run("default symbols and fallback", func(t *testing.T) {
		router := testRouter(testApp(t, &stubLLM{err: errors.New("upstream 500")}))

		w := doRequest(t, router, http.MethodPost, "/api/ai/analyze", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		resp := decode[AnalyzeResponse](t, w)
		if resp.Signal.Action != models.SignalActionHold || resp.SignalSource != models.SignalSourceFallback {
			t.Errorf("expected fallback hold, got %+v", resp)
		}
		if len(resp.MarketData) != 3 {
			t.Errorf("expected the three configured symbols, got %d", len(resp.MarketData))
		}
	})

	t.Run("no advisor", func(t *testing.T) {
		router := testRouter(testApp(t, nil))
		w := doRequest(t, router, http.MethodPost, "/api/ai/analyze", `{"symbols":["BTC/USD"]}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}
	})

	t.Run("invalid symbol", func(t *testing.T) {
		router := testRouter(testApp(t, &stubLLM{response: buyETH}))
		w := doRequest(t, router, http.MethodPost, "/api/ai/analyze", `{"symbols":["BTC/USD; DROP"]}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		router := testRouter(testApp(t, &stubLLM{response: buyETH}))
		w := doRequest(t, router, http.MethodPost, "/api/ai/analyze", `{"symbols":`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
}

func TestHandler_ExecuteTrade(t *testing.T) {
	tests := []struct {
		name        string
		llm         services.LLMService
		body        string
		wantStatus  int
		wantOutcome models.DecisionOutcome
	}{
		{"manual buy", nil, `{"symbol":"BTC/USD","side":"BUY","quantity":0.01}`, http.StatusOK, models.DecisionApproved},
		{"manual missing side", nil, `{"symbol":"BTC/USD","quantity":0.01}`, http.StatusBadRequest, ""},
		{"manual zero quantity", nil, `{"symbol":"BTC/USD","side":"buy","quantity":0}`, http.StatusBadRequest, ""},
		{"manual insufficient cash", nil, `{"symbol":"BTC/USD","side":"buy","quantity":1}`, http.StatusBadGateway, ""},
		{"ai approved", &stubLLM{response: buyETH}, `{"symbol":"ETH/USD","useAI":true}`, http.StatusOK, models.DecisionApproved},
		{"ai hold", &stubLLM{response: "not json"}, `{"symbol":"ETH/USD","useAI":true}`, http.StatusOK, models.DecisionHold},
		{"ai without advisor", nil, `{"symbol":"ETH/USD","useAI":true}`, http.StatusServiceUnavailable, ""},
		{"missing symbol", nil, `{"side":"buy","quantity":1}`, http.StatusBadRequest, ""},
		{"bad body", nil, `nope`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(testApp(t, tt.llm))

			w := doRequest(t, router, http.MethodPost, "/api/trading/execute", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantOutcome == "" {
				return
			}

			result := decode[models.ExecutionResult](t, w)
			if result.Decision.Outcome != tt.wantOutcome {
				t.Errorf("expected outcome %s, got %+v", tt.wantOutcome, result.Decision)
			}
			if tt.wantOutcome == models.DecisionApproved && (result.Trade == nil || result.Portfolio == nil) {
				t.Errorf("approved execution should carry trade and portfolio: %+v", result)
			}
		})
	}
}

func TestHandler_ExecuteTradeCapsQuantity(t *testing.T) {
	router := testRouter(testApp(t, &stubLLM{response: buyETH}))

	w := doRequest(t, router, http.MethodPost, "/api/trading/execute", `{"symbol":"ETH/USD","quantity":5,"useAI":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	result := decode[models.ExecutionResult](t, w)
	budget := decimal.NewFromInt(500)
	notional := result.Trade.Quantity.Mul(decimal.NewFromInt(3000))
	if notional.GreaterThan(budget) {
		t.Errorf("notional %s exceeds 5%% budget %s", notional, budget)
	}
}

func TestHandler_Portfolio(t *testing.T) {
	a := testApp(t, nil)
	router := testRouter(a)

	doRequest(t, router, http.MethodPost, "/api/trading/execute", `{"symbol":"ETH/USD","side":"buy","quantity":1}`)

	w := doRequest(t, router, http.MethodGet, "/api/portfolio", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	overview := decode[agents.PortfolioOverview](t, w)
	if overview.Portfolio == nil || len(overview.Portfolio.Positions) != 1 {
		t.Fatalf("expected one position, got %+v", overview.Portfolio)
	}
	if len(overview.RecentTrades) != 1 {
		t.Errorf("expected one recent trade, got %d", len(overview.RecentTrades))
	}

	w = doRequest(t, router, http.MethodGet, "/api/portfolio/history", "")
	points := decode[[]agents.HistoryPoint](t, w)
	if len(points) == 0 {
		t.Error("expected recorded portfolio history")
	}
}

func TestHandler_PortfolioHistoryEmpty(t *testing.T) {
	router := testRouter(testApp(t, nil))

	w := doRequest(t, router, http.MethodGet, "/api/portfolio/history", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestHandler_CancelAll(t *testing.T) {
	router := testRouter(testApp(t, nil))

	w := doRequest(t, router, http.MethodPost, "/api/trading/cancel-all", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if resp := decode[StatusResponse](t, w); resp.Status != "cancelled" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_AutoTrading(t *testing.T) {
	t.Run("requires advisor", func(t *testing.T) {
		router := testRouter(testApp(t, nil))
		w := doRequest(t, router, http.MethodPost, "/api/auto/start", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}
	})

	t.Run("start status stop", func(t *testing.T) {
		router := testRouter(testApp(t, &stubLLM{response: `{"symbol":"BTC/USD","action":"hold","confidence":0.5,"reasoning":"flat"}`}))

		w := doRequest(t, router, http.MethodPost, "/api/auto/start", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if status := decode[agents.AutoTradingStatus](t, w); !status.Active {
			t.Error("expected active loop")
		}

		w = doRequest(t, router, http.MethodPost, "/api/auto/start", "")
		if w.Code != http.StatusConflict {
			t.Errorf("expected status 409 for second start, got %d", w.Code)
		}

		w = doRequest(t, router, http.MethodGet, "/api/auto", "")
		if status := decode[agents.AutoTradingStatus](t, w); !status.Active {
			t.Error("status should report active loop")
		}

		w = doRequest(t, router, http.MethodPost, "/api/auto/stop", "")
		if status := decode[agents.AutoTradingStatus](t, w); status.Active {
			t.Error("expected idle loop after stop")
		}
	})
}

func TestHandler_Runs(t *testing.T) {
	router := testRouter(testApp(t, nil))

	for _, path := range []string{"/api/runs", "/api/trades", "/api/runs/" + "00000000-0000-0000-0000-000000000000"} {
		w := doRequest(t, router, http.MethodGet, path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status 503 without database, got %d", path, w.Code)
		}
	}
}

func TestHandler_CORSPreflight(t *testing.T) {
	router := testRouter(testApp(t, nil))

	w := doRequest(t, router, http.MethodOptions, "/api/trading/execute", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected CORS origin %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestValidateSymbol(t *testing.T) {
	tests := []struct {
		symbol  string
		wantErr bool
	}{
		{"BTC/USD", false},
		{"ETHUSDT", false},
		{"", true},
		{"BTC/USD/EUR", true},
		{"btc/usd", true},
		{"VERYLONGSYMBOLNAME/USD", true},
		{"BTC-USD", true},
	}
	for _, tt := range tests {
		if err := ValidateSymbol(tt.symbol); (err != nil) != tt.wantErr {
			t.Errorf("ValidateSymbol(%q) error = %v, wantErr %v", tt.symbol, err, tt.wantErr)
		}
	}
}

func TestParseLimitParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=0", 50},
		{"?limit=-3", 50},
		{"?limit=abc", 50},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/runs"+tt.query, nil)
		if got := ParseLimitParam(r, 50); got != tt.want {
			t.Errorf("ParseLimitParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad side", models.ErrData), http.StatusBadRequest},
		{fmt.Errorf("%w: no key", models.ErrConfiguration), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: timeout", models.ErrExecution), http.StatusBadGateway},
		{models.ErrAdvisor, http.StatusBadGateway},
		{app.ErrAnalysisQueueFull, http.StatusTooManyRequests},
		{app.ErrNoDatabase, http.StatusServiceUnavailable},
		{agents.ErrAutoTradingActive, http.StatusConflict},
		{services.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusForError(tt.err); got != tt.want {
			t.Errorf("StatusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
