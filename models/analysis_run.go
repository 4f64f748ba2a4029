package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisRun is a journal entry for one pipeline cycle
type AnalysisRun struct {
	ID              uuid.UUID              `json:"id"`
	RunType         RunType                `json:"run_type"`
	Symbols         []string               `json:"symbols"`
	Status          RunStatus              `json:"status"`
	SignalAction    SignalAction           `json:"signal_action,omitempty"`
	SignalSource    SignalSource           `json:"signal_source,omitempty"`
	Confidence      float64                `json:"confidence"`
	RiskScore       float64                `json:"risk_score"`
	DecisionOutcome DecisionOutcome        `json:"decision_outcome,omitempty"`
	TradeID         string                 `json:"trade_id,omitempty"`
	OutputData      map[string]interface{} `json:"output_data,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	DurationMs      int                    `json:"duration_ms"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
}

type RunType string

const (
	RunTypeAnalysis  RunType = "analysis"
	RunTypeExecution RunType = "execution"
	RunTypeAuto      RunType = "auto"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

func NewAnalysisRun(runType RunType, symbols []string) *AnalysisRun {
	return &AnalysisRun{
		ID:        uuid.New(),
		RunType:   runType,
		Symbols:   symbols,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
}

// RecordSignal copies the signal and risk outcome onto the run
func (r *AnalysisRun) RecordSignal(outcome SignalOutcome, risk *RiskAssessment) {
	r.SignalAction = outcome.Signal.Action
	r.SignalSource = outcome.Source
	r.Confidence = outcome.Signal.Confidence
	if risk != nil {
		r.RiskScore = risk.RiskScore
	}
}

func (r *AnalysisRun) Complete(output map[string]interface{}) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = RunStatusCompleted
	r.OutputData = output
	r.DurationMs = int(now.Sub(r.StartedAt).Milliseconds())
}

func (r *AnalysisRun) Fail(err error) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = RunStatusFailed
	r.ErrorMessage = err.Error()
	r.DurationMs = int(now.Sub(r.StartedAt).Milliseconds())
}
