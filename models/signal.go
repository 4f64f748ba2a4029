package models

import "github.com/shopspring/decimal"

type SignalAction string

const (
	SignalActionBuy  SignalAction = "buy"
	SignalActionSell SignalAction = "sell"
	SignalActionHold SignalAction = "hold"
)

// IsValid reports whether the action is one of buy, sell or hold
func (a SignalAction) IsValid() bool {
	switch a {
	case SignalActionBuy, SignalActionSell, SignalActionHold:
		return true
	}
	return false
}

// TradingSignal is one advisor recommendation
type TradingSignal struct {
	Symbol            string           `json:"symbol"`
	Action            SignalAction     `json:"action"`
	Confidence        float64          `json:"confidence"` // 0-1
	Reasoning         string           `json:"reasoning"`
	SuggestedQuantity *decimal.Decimal `json:"suggestedQuantity,omitempty"`
	TargetPrice       *decimal.Decimal `json:"targetPrice,omitempty"`
	StopLoss          *decimal.Decimal `json:"stopLoss,omitempty"`
}

// FallbackReasoning is the reasoning text carried by the safe default signal
const FallbackReasoning = "error analyzing market conditions"

// HoldSignal returns the safe default signal used when the advisor fails
func HoldSignal(symbol string) TradingSignal {
	return TradingSignal{
		Symbol:     symbol,
		Action:     SignalActionHold,
		Confidence: 0,
		Reasoning:  FallbackReasoning,
	}
}

type SignalSource string

const (
	SignalSourceGenerated SignalSource = "generated"
	SignalSourceFallback  SignalSource = "fallback"
)

// SignalOutcome separates "the advisor said hold" from "the advisor failed".
// FailureReason is set only for fallback outcomes.
type SignalOutcome struct {
	Signal        TradingSignal `json:"signal"`
	Source        SignalSource  `json:"source"`
	FailureReason string        `json:"failureReason,omitempty"`
}

func GeneratedSignal(signal TradingSignal) SignalOutcome {
	return SignalOutcome{Signal: signal, Source: SignalSourceGenerated}
}

func FallbackSignal(symbol string, err error) SignalOutcome {
	reason := "unknown advisor failure"
	if err != nil {
		reason = err.Error()
	}
	return SignalOutcome{
		Signal:        HoldSignal(symbol),
		Source:        SignalSourceFallback,
		FailureReason: reason,
	}
}

// IsFallback reports whether the signal substitutes for a failed advisor call
func (o SignalOutcome) IsFallback() bool {
	return o.Source == SignalSourceFallback
}
