package agents

import (
	"context"
	"errors"
	"strings"
	"time"

	"ai-trader/models"
	"ai-trader/observability"
)

// startRun opens a journal entry and the cycle metrics for one pipeline run
func (m *PortfolioManager) startRun(ctx context.Context, runType models.RunType, symbols []string) *models.AnalysisRun {
	run := models.NewAnalysisRun(runType, symbols)
	observability.GetMetrics().RecordCycleStart(string(runType))

	if m.repo != nil {
		if err := m.repo.CreateAnalysisRun(ctx, run); err != nil {
			observability.Warn("failed to journal run start", "run_id", run.ID, "error", err)
		}
	}
	return run
}

func (m *PortfolioManager) completeRun(ctx context.Context, run *models.AnalysisRun, output map[string]interface{}) {
	run.Complete(output)
	m.finishRun(ctx, run)
}

func (m *PortfolioManager) failRun(ctx context.Context, run *models.AnalysisRun, stage string, err error) {
	run.Fail(err)
	observability.GetMetrics().RecordCycleError(stage, categorizeError(err))
	observability.Warn("pipeline cycle failed",
		"run_id", run.ID,
		"run_type", run.RunType,
		"stage", stage,
		"error", err)
	m.finishRun(ctx, run)
}

func (m *PortfolioManager) finishRun(ctx context.Context, run *models.AnalysisRun) {
	observability.GetMetrics().RecordCycleDuration(string(run.RunType), string(run.Status), time.Duration(run.DurationMs)*time.Millisecond)

	if m.repo == nil {
		return
	}
	// the journal write outlives a cancelled request
	if err := m.repo.UpdateAnalysisRun(context.WithoutCancel(ctx), run); err != nil {
		observability.Warn("failed to journal run result", "run_id", run.ID, "error", err)
	}
}

// categorizeError categorizes an error for metrics labeling
func categorizeError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, models.ErrConfiguration):
		return "configuration"
	case errors.Is(err, models.ErrData):
		return "data"
	case errors.Is(err, models.ErrAdvisor):
		return "advisor"
	case errors.Is(err, models.ErrExecution):
		return "execution"
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "other"
	}
}
