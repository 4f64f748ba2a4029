package agents

import (
	"fmt"

	"ai-trader/models"
	"ai-trader/observability"

	"github.com/shopspring/decimal"
)

// quantityPlaces is the precision order quantities are truncated to
const quantityPlaces = 8

// ReasonZeroQuantity is reported when sizing leaves nothing to trade
const ReasonZeroQuantity = "computed order quantity is zero"

// TradeGate sizes an order within the risk budget and decides whether it may be sent.
// It performs no I/O.
type TradeGate struct {
	rejectThreshold float64
}

// NewTradeGate creates a new TradeGate
func NewTradeGate(policy RiskPolicy) *TradeGate {
	return &TradeGate{rejectThreshold: policy.RejectThreshold}
}

// SizeAndGate returns exactly one of Hold, Rejected or Approved for the signal.
//
// Checks run in order: a hold signal always yields Hold, then a risk score under the
// reject threshold yields Rejected. Only then is a quote required. The quantity is the
// requested one, else the signal's suggestion, capped so quantity × price never exceeds
// the risk assessment's max position size.
func (g *TradeGate) SizeAndGate(signal models.TradingSignal, risk models.RiskAssessment, quotes []models.MarketQuote, requested *decimal.Decimal) (models.Decision, error) {
	decision, err := g.decide(signal, risk, quotes, requested)
	if err != nil {
		return decision, err
	}
	observability.GetMetrics().RecordDecision(string(decision.Outcome))
	return decision, nil
}

func (g *TradeGate) decide(signal models.TradingSignal, risk models.RiskAssessment, quotes []models.MarketQuote, requested *decimal.Decimal) (models.Decision, error) {
	if signal.Action == models.SignalActionHold {
		return models.HoldDecision(signal.Reasoning), nil
	}

	if risk.RiskScore < g.rejectThreshold {
		return models.RejectedDecision(fmt.Sprintf("risk score %.2f below threshold %.2f", risk.RiskScore, g.rejectThreshold)), nil
	}

	quote := models.FindQuote(quotes, signal.Symbol)
	if quote == nil {
		return models.Decision{}, fmt.Errorf("%w: no quote for signal symbol %s", models.ErrData, signal.Symbol)
	}
	if !quote.Price.IsPositive() {
		return models.Decision{}, fmt.Errorf("%w: non-positive price %s for %s", models.ErrData, quote.Price, signal.Symbol)
	}

	quantity := MaxAffordableQuantity(baseQuantity(signal, requested), risk.MaxPositionSize, quote.Price)
	if !quantity.IsPositive() {
		return models.RejectedDecision(ReasonZeroQuantity), nil
	}

	return models.ApprovedDecision(models.OrderRequest{
		Symbol:    signal.Symbol,
		Side:      models.TradeSide(signal.Action),
		Quantity:  quantity,
		Price:     signal.TargetPrice,
		Reasoning: signal.Reasoning,
	}), nil
}

// baseQuantity picks the requested quantity, else the suggested one. Zero counts as absent.
func baseQuantity(signal models.TradingSignal, requested *decimal.Decimal) decimal.Decimal {
	if requested != nil && !requested.IsZero() {
		return *requested
	}
	if signal.SuggestedQuantity != nil && !signal.SuggestedQuantity.IsZero() {
		return *signal.SuggestedQuantity
	}
	return decimal.Zero
}

// MaxAffordableQuantity caps quantity at maxPosition / price, truncated so the order's
// notional never exceeds maxPosition.
func MaxAffordableQuantity(quantity, maxPosition, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !maxPosition.IsPositive() {
		return decimal.Zero
	}
	limit, _ := maxPosition.QuoRem(price, quantityPlaces)
	if quantity.GreaterThan(limit) {
		return limit
	}
	return quantity
}
