package models

// MarketAnalysis is the result of one analysis cycle without execution
type MarketAnalysis struct {
	Signal        TradingSignal  `json:"signal"`
	SignalSource  SignalSource   `json:"signalSource"`
	FailureReason string         `json:"failureReason,omitempty"`
	RiskMetrics   RiskAssessment `json:"riskMetrics"`
	MarketData    []MarketQuote  `json:"marketData"`
	Portfolio     *Portfolio     `json:"portfolio,omitempty"`
}

// Outcome returns the signal together with its source
func (a *MarketAnalysis) Outcome() SignalOutcome {
	return SignalOutcome{Signal: a.Signal, Source: a.SignalSource, FailureReason: a.FailureReason}
}

// ExecutionResult is the result of a trade request. Exactly one of Hold, Rejected or
// Approved is reported in Decision; Trade is set once an approved order was submitted.
type ExecutionResult struct {
	Message      string          `json:"message"`
	Decision     Decision        `json:"decision"`
	Signal       *TradingSignal  `json:"signal,omitempty"`
	SignalSource SignalSource    `json:"signalSource,omitempty"`
	RiskMetrics  *RiskAssessment `json:"riskMetrics,omitempty"`
	Trade        *Trade          `json:"trade,omitempty"`
	Portfolio    *Portfolio      `json:"portfolio,omitempty"`
}

// TradeRequest is a user-initiated trade, optionally delegated to the advisor
type TradeRequest struct {
	Symbol   string    `json:"symbol"`
	Side     TradeSide `json:"side"`
	Quantity float64   `json:"quantity"`
	UseAI    bool      `json:"useAI"`
}
