package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"ai-trader/models"
	"ai-trader/observability"

	"github.com/shopspring/decimal"
)

// DefaultTradeHistoryWindow is how many recent trades are shown to the advisor
const DefaultTradeHistoryWindow = 10

const signalSystemPrompt = `You are an expert cryptocurrency trading AI. Analyze market data and provide trading signals with high confidence. Focus on risk management and profitable opportunities. Always respond in JSON format.`

// SignalGenerator asks the advisor for a single trading signal and validates the answer.
// Any advisor failure becomes a fallback hold signal.
type SignalGenerator struct {
	llm     LLMService
	window  int
	timeout time.Duration
}

// NewSignalGenerator creates a new SignalGenerator. A non-positive window uses the default;
// a non-positive timeout leaves the call bounded only by ctx.
func NewSignalGenerator(llm LLMService, window int, timeout time.Duration) *SignalGenerator {
	if window <= 0 {
		window = DefaultTradeHistoryWindow
	}
	return &SignalGenerator{
		llm:     llm,
		window:  window,
		timeout: timeout,
	}
}

// Generate produces a signal for the given market snapshot. The only error it returns is
// ErrData for an empty quote list; everything else degrades to a fallback outcome.
func (g *SignalGenerator) Generate(ctx context.Context, quotes []models.MarketQuote, positions []models.Position, trades []models.Trade) (models.SignalOutcome, error) {
	if len(quotes) == 0 {
		return models.SignalOutcome{}, fmt.Errorf("%w: no market data to analyze", models.ErrData)
	}

	metrics := observability.GetMetrics()
	logger := observability.WithComponent("signal_generator")

	prompt, err := buildSignalPrompt(quotes, positions, WindowTrades(trades, g.window))
	if err != nil {
		return g.fallback(quotes, err), nil
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	response, err := g.llm.InvokeWithPrompt(callCtx, signalSystemPrompt, prompt)
	if err == nil {
		err = callCtx.Err()
	}
	if err != nil {
		logger.Warn("advisor call failed, falling back to hold", "provider", g.llm.Name(), "error", err)
		return g.fallback(quotes, err), nil
	}

	signal, err := ParseSignal(response)
	if err != nil {
		logger.Warn("advisor response rejected, falling back to hold", "provider", g.llm.Name(), "error", err)
		return g.fallback(quotes, err), nil
	}

	metrics.RecordSignal(string(signal.Action), string(models.SignalSourceGenerated), signal.Confidence)
	logger.Info("signal generated",
		"symbol", signal.Symbol,
		"action", signal.Action,
		"confidence", signal.Confidence)

	return models.GeneratedSignal(*signal), nil
}

func (g *SignalGenerator) fallback(quotes []models.MarketQuote, err error) models.SignalOutcome {
	observability.GetMetrics().RecordSignal(string(models.SignalActionHold), string(models.SignalSourceFallback), 0)
	return models.FallbackSignal(quotes[0].Symbol, err)
}

// WindowTrades returns the newest n trades in chronological order, whatever order
// the exchange reported them in.
func WindowTrades(trades []models.Trade, n int) []models.Trade {
	sorted := make([]models.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	return sorted
}

func buildSignalPrompt(quotes []models.MarketQuote, positions []models.Position, trades []models.Trade) (string, error) {
	if positions == nil {
		positions = []models.Position{}
	}
	if trades == nil {
		trades = []models.Trade{}
	}

	marketJSON, err := json.MarshalIndent(quotes, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode market data: %w", err)
	}
	positionsJSON, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode positions: %w", err)
	}
	tradesJSON, err := json.MarshalIndent(trades, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode trades: %w", err)
	}

	return fmt.Sprintf(`Analyze the following cryptocurrency market data and provide a trading signal:

Market Data:
%s

Current Positions:
%s

Recent Trades (last %d):
%s

Please provide a trading signal with the following JSON structure:
{
  "symbol": "string (crypto symbol to trade)",
  "action": "buy | sell | hold",
  "confidence": "number (0-1, where 1 is highest confidence)",
  "reasoning": "string (detailed explanation of the decision)",
  "suggestedQuantity": "number (optional, suggested trade size)",
  "targetPrice": "number (optional, target price for the trade)",
  "stopLoss": "number (optional, stop loss price)"
}

Consider:
1. Market trends and momentum
2. Current portfolio exposure
3. Risk management: prefer capital preservation and never risk more than 5%% of portfolio value on a single trade
4. Recent trade performance
5. Support and resistance levels`, marketJSON, positionsJSON, len(trades), tradesJSON), nil
}

type signalPayload struct {
	Symbol            *string  `json:"symbol"`
	Action            *string  `json:"action"`
	Confidence        *float64 `json:"confidence"`
	Reasoning         *string  `json:"reasoning"`
	SuggestedQuantity *float64 `json:"suggestedQuantity"`
	TargetPrice       *float64 `json:"targetPrice"`
	StopLoss          *float64 `json:"stopLoss"`
}

// ParseSignal strictly decodes an advisor response. The JSON object may be wrapped in
// a markdown code fence.
func ParseSignal(raw string) (*models.TradingSignal, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty advisor response", models.ErrAdvisor)
	}

	var p signalPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("%w: malformed signal JSON: %w", models.ErrAdvisor, err)
	}

	switch {
	case p.Symbol == nil || strings.TrimSpace(*p.Symbol) == "":
		return nil, fmt.Errorf("%w: signal is missing symbol", models.ErrAdvisor)
	case p.Action == nil:
		return nil, fmt.Errorf("%w: signal is missing action", models.ErrAdvisor)
	case p.Confidence == nil:
		return nil, fmt.Errorf("%w: signal is missing confidence", models.ErrAdvisor)
	case p.Reasoning == nil:
		return nil, fmt.Errorf("%w: signal is missing reasoning", models.ErrAdvisor)
	}

	action := models.SignalAction(*p.Action)
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: invalid action %q", models.ErrAdvisor, *p.Action)
	}
	if *p.Confidence < 0 || *p.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", models.ErrAdvisor, *p.Confidence)
	}

	signal := &models.TradingSignal{
		Symbol:     strings.TrimSpace(*p.Symbol),
		Action:     action,
		Confidence: *p.Confidence,
		Reasoning:  *p.Reasoning,
	}

	var err error
	if signal.SuggestedQuantity, err = nonNegative("suggestedQuantity", p.SuggestedQuantity); err != nil {
		return nil, err
	}
	if signal.TargetPrice, err = nonNegative("targetPrice", p.TargetPrice); err != nil {
		return nil, err
	}
	if signal.StopLoss, err = nonNegative("stopLoss", p.StopLoss); err != nil {
		return nil, err
	}

	return signal, nil
}

func nonNegative(field string, v *float64) (*decimal.Decimal, error) {
	if v == nil {
		return nil, nil
	}
	if *v < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative, got %v", models.ErrAdvisor, field, *v)
	}
	d := decimal.NewFromFloat(*v)
	return &d, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// drop the opening fence line (``` or ```json)
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
