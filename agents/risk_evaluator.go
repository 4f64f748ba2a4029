package agents

import (
	"ai-trader/models"
	"ai-trader/observability"

	"github.com/shopspring/decimal"
)

// RiskPolicy holds the risk knobs shared by the evaluator and the trade gate
type RiskPolicy struct {
	// MaxRiskPerTrade is the largest fraction of portfolio value a single order may use (0-1)
	MaxRiskPerTrade float64

	// RejectThreshold is the risk score below which the gate refuses a trade
	RejectThreshold float64

	// AutoExecuteThreshold is the risk score above which trades proceed without review
	AutoExecuteThreshold float64
}

// DefaultRiskPolicy returns the stock thresholds
func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		MaxRiskPerTrade:      0.05,
		RejectThreshold:      0.5,
		AutoExecuteThreshold: 0.6,
	}
}

// RiskEvaluator scores a signal against the current portfolio. It is advisory only.
type RiskEvaluator struct {
	policy RiskPolicy
}

// NewRiskEvaluator creates a new RiskEvaluator
func NewRiskEvaluator(policy RiskPolicy) *RiskEvaluator {
	return &RiskEvaluator{policy: policy}
}

// Evaluate computes the risk score as (1 − exposure) × confidence, clamped to [0,1].
// An empty or negative portfolio has no exposure and no position budget.
func (e *RiskEvaluator) Evaluate(portfolio *models.Portfolio, signal models.TradingSignal) models.RiskAssessment {
	maxPosition := decimal.Zero
	exposure := decimal.Zero

	if portfolio != nil && portfolio.TotalValue.IsPositive() {
		maxPosition = portfolio.TotalValue.Mul(decimal.NewFromFloat(e.policy.MaxRiskPerTrade))
		exposure = portfolio.Exposure().Div(portfolio.TotalValue)
	}

	score := decimal.NewFromInt(1).Sub(exposure).Mul(decimal.NewFromFloat(signal.Confidence))
	score = clampUnit(score)

	assessment := models.RiskAssessment{
		RiskScore:       score.InexactFloat64(),
		ExposureRatio:   exposure.InexactFloat64(),
		MaxPositionSize: maxPosition,
		Recommendation:  models.RiskRecommendationReduce,
	}
	if assessment.RiskScore > e.policy.AutoExecuteThreshold {
		assessment.Recommendation = models.RiskRecommendationProceed
	}

	observability.GetMetrics().RecordRiskScore(string(signal.Action), assessment.RiskScore)
	return assessment
}

// Policy returns the evaluator's thresholds
func (e *RiskEvaluator) Policy() RiskPolicy {
	return e.policy
}

func clampUnit(d decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}
