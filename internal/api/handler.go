package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"ai-trader/agents"
	"ai-trader/config"
	"ai-trader/internal/app"
	"ai-trader/models"
	"ai-trader/observability"
	"ai-trader/services"

	"github.com/go-chi/chi/v5"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]+(/[A-Z0-9]+)?$`)

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.app.Health(r.Context())

	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	h.jsonStatus(w, report, status)
}

// AnalyzeRequest is the body of the analyze endpoint
type AnalyzeRequest struct {
	Symbols []string `json:"symbols"`
}

// AnalyzeResponse is the analysis result without the portfolio snapshot
type AnalyzeResponse struct {
	Signal        models.TradingSignal  `json:"signal"`
	SignalSource  models.SignalSource   `json:"signalSource"`
	FailureReason string                `json:"failureReason,omitempty"`
	RiskMetrics   models.RiskAssessment `json:"riskMetrics"`
	MarketData    []models.MarketQuote  `json:"marketData"`
}

// HandleAnalyze runs one analysis cycle over the requested symbols
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	// an empty body analyzes the configured symbols
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	symbols := make([]string, 0, len(req.Symbols))
	for _, s := range req.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if err := ValidateSymbol(s); err != nil {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		symbols = append(symbols, s)
	}

	analysis, err := h.app.AnalyzeMarket(r.Context(), symbols)
	if err != nil {
		h.handleError(w, r, "analyze", err)
		return
	}

	h.jsonResponse(w, AnalyzeResponse{
		Signal:        analysis.Signal,
		SignalSource:  analysis.SignalSource,
		FailureReason: analysis.FailureReason,
		RiskMetrics:   analysis.RiskMetrics,
		MarketData:    analysis.MarketData,
	})
}

// HandleExecuteTrade runs a manual or advisor-driven trade
func (h *Handler) HandleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req models.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := ValidateSymbol(req.Symbol); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Side = models.TradeSide(strings.ToLower(string(req.Side)))

	result, err := h.app.ExecuteTrade(r.Context(), req)
	if err != nil {
		h.handleError(w, r, "execute", err)
		return
	}
	h.jsonResponse(w, result)
}

// HandleCancelAll cancels every open order
func (h *Handler) HandleCancelAll(w http.ResponseWriter, r *http.Request) {
	if err := h.app.CancelAllOrders(r.Context()); err != nil {
		h.handleError(w, r, "cancel", err)
		return
	}
	h.jsonResponse(w, StatusResponse{Status: "cancelled"})
}

// HandleGetPortfolio returns the valued portfolio and recent exchange trades
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	overview, err := h.app.Overview(r.Context())
	if err != nil {
		h.handleError(w, r, "portfolio", err)
		return
	}
	h.jsonResponse(w, overview)
}

// HandleGetPortfolioHistory returns the recorded portfolio values
func (h *Handler) HandleGetPortfolioHistory(w http.ResponseWriter, r *http.Request) {
	points := h.app.PortfolioHistory()
	if points == nil {
		points = []agents.HistoryPoint{}
	}
	h.jsonResponse(w, points)
}

// HandleGetAutoTrading returns the auto-trading loop status
func (h *Handler) HandleGetAutoTrading(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.AutoTradingStatus())
}

// HandleStartAutoTrading starts the auto-trading loop
func (h *Handler) HandleStartAutoTrading(w http.ResponseWriter, r *http.Request) {
	status, err := h.app.StartAutoTrading()
	if err != nil {
		h.handleError(w, r, "auto start", err)
		return
	}
	h.jsonResponse(w, status)
}

// HandleStopAutoTrading stops the auto-trading loop
func (h *Handler) HandleStopAutoTrading(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.StopAutoTrading())
}

// HandleGetRuns returns recent journaled runs
func (h *Handler) HandleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := ParseLimitParam(r, 50)

	runs, err := h.app.GetAnalysisRuns(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		h.handleError(w, r, "runs", err)
		return
	}
	if runs == nil {
		runs = []models.AnalysisRun{}
	}
	h.jsonResponse(w, runs)
}

// HandleGetRun returns a single journaled run
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.app.GetAnalysisRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, "run", err)
		return
	}
	if run == nil {
		h.jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	h.jsonResponse(w, run)
}

// HandleGetTrades returns trades recorded in the journal
func (h *Handler) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.app.GetJournalTrades(r.Context(), ParseLimitParam(r, 50))
	if err != nil {
		h.handleError(w, r, "trades", err)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	h.jsonResponse(w, trades)
}

// Helper functions

// ValidateSymbol validates a trading pair such as BTC/USD
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long (max 20 characters)")
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format (expected BASE/QUOTE)")
	}
	return nil
}

// ParseLimitParam parses the limit query parameter
func ParseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

// StatusForError maps the error taxonomy onto HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrData):
		return http.StatusBadRequest
	case errors.Is(err, agents.ErrAutoTradingActive):
		return http.StatusConflict
	case errors.Is(err, app.ErrAnalysisQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrConfiguration),
		errors.Is(err, app.ErrNoDatabase),
		errors.Is(err, services.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrAdvisor), errors.Is(err, models.ErrExecution):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		observability.WithContext(r.Context()).Error("request failed", "operation", operation, "error", err)
	}
	h.jsonError(w, err.Error(), status)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	h.jsonStatus(w, data, http.StatusOK)
}

func (h *Handler) jsonStatus(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	h.jsonStatus(w, map[string]string{"error": message}, status)
}

// StatusResponse represents a status response
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
