package models

type DecisionOutcome string

const (
	DecisionHold     DecisionOutcome = "hold"
	DecisionRejected DecisionOutcome = "rejected"
	DecisionApproved DecisionOutcome = "approved"
)

// Decision is the gate's verdict on a signal. Order is set only when approved.
type Decision struct {
	Outcome DecisionOutcome `json:"outcome"`
	Reason  string          `json:"reason,omitempty"`
	Order   *OrderRequest   `json:"order,omitempty"`
}

func HoldDecision(reason string) Decision {
	return Decision{Outcome: DecisionHold, Reason: reason}
}

func RejectedDecision(reason string) Decision {
	return Decision{Outcome: DecisionRejected, Reason: reason}
}

func ApprovedDecision(order OrderRequest) Decision {
	return Decision{Outcome: DecisionApproved, Order: &order}
}

func (d Decision) IsApproved() bool {
	return d.Outcome == DecisionApproved && d.Order != nil
}
