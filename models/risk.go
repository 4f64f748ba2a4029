package models

import "github.com/shopspring/decimal"

const (
	RiskRecommendationProceed = "proceed"
	RiskRecommendationReduce  = "reduce position size"
)

// RiskAssessment is the risk evaluation of one signal against the current portfolio
type RiskAssessment struct {
	RiskScore       float64         `json:"riskScore"` // 0-1, higher is safer to execute
	ExposureRatio   float64         `json:"exposureRatio"`
	MaxPositionSize decimal.Decimal `json:"maxPositionSize"` // currency units
	Recommendation  string          `json:"recommendation"`
}
