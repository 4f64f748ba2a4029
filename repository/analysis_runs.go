package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ai-trader/models"
	"ai-trader/observability"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const analysisRunColumns = `id, run_type, symbols, status, signal_action, signal_source, confidence, risk_score,
	decision_outcome, trade_id, output_data, error_message, duration_ms, started_at, completed_at`

// DefaultRunsLimit caps run listings when the caller passes no limit
const DefaultRunsLimit = 50

// CreateAnalysisRun inserts a new run in its running state
func (r *Repository) CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error {
	timer := observability.GetMetrics().NewTimer()
	symbols := run.Symbols
	if symbols == nil {
		symbols = []string{}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO analysis_runs (id, run_type, symbols, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.RunType, symbols, run.Status, run.StartedAt)
	observe("insert", "analysis_runs", err, timer)

	if err != nil {
		return fmt.Errorf("failed to create analysis run: %w", err)
	}
	return nil
}

// UpdateAnalysisRun stores the outcome of a finished run
func (r *Repository) UpdateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error {
	timer := observability.GetMetrics().NewTimer()

	var outputData []byte
	if run.OutputData != nil {
		var err error
		if outputData, err = json.Marshal(run.OutputData); err != nil {
			return fmt.Errorf("failed to encode run output: %w", err)
		}
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE analysis_runs
		SET status = $2, signal_action = $3, signal_source = $4, confidence = $5, risk_score = $6,
			decision_outcome = $7, trade_id = $8, output_data = $9, error_message = $10,
			duration_ms = $11, completed_at = $12
		WHERE id = $1
	`, run.ID, run.Status, nullable(string(run.SignalAction)), nullable(string(run.SignalSource)),
		run.Confidence, run.RiskScore, nullable(string(run.DecisionOutcome)), nullable(run.TradeID),
		outputData, nullable(run.ErrorMessage), run.DurationMs, run.CompletedAt)
	observe("update", "analysis_runs", err, timer)

	if err != nil {
		return fmt.Errorf("failed to update analysis run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("analysis run %s not found", run.ID)
	}
	return nil
}

// GetAnalysisRun returns a single run by ID, or nil when it does not exist
func (r *Repository) GetAnalysisRun(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error) {
	timer := observability.GetMetrics().NewTimer()
	row := r.db.QueryRow(ctx, `SELECT `+analysisRunColumns+` FROM analysis_runs WHERE id = $1`, id)
	run, err := scanAnalysisRun(row)
	observe("select", "analysis_runs", ignoreNoRows(err), timer)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis run: %w", err)
	}
	return run, nil
}

// GetAnalysisRuns returns the newest runs first, optionally filtered by run type
func (r *Repository) GetAnalysisRuns(ctx context.Context, runType models.RunType, limit int) ([]models.AnalysisRun, error) {
	if limit <= 0 {
		limit = DefaultRunsLimit
	}
	timer := observability.GetMetrics().NewTimer()

	var rows pgx.Rows
	var err error
	if runType == "" {
		rows, err = r.db.Query(ctx, `
			SELECT `+analysisRunColumns+`
			FROM analysis_runs
			ORDER BY started_at DESC
			LIMIT $1
		`, limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+analysisRunColumns+`
			FROM analysis_runs
			WHERE run_type = $1
			ORDER BY started_at DESC
			LIMIT $2
		`, runType, limit)
	}
	observe("select", "analysis_runs", err, timer)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []models.AnalysisRun
	for rows.Next() {
		run, err := scanAnalysisRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read analysis runs: %w", err)
	}
	return runs, nil
}

func scanAnalysisRun(row pgx.Row) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	var signalAction, signalSource, outcome, tradeID, errorMessage *string
	var outputData []byte
	var durationMs *int

	err := row.Scan(&run.ID, &run.RunType, &run.Symbols, &run.Status, &signalAction, &signalSource,
		&run.Confidence, &run.RiskScore, &outcome, &tradeID, &outputData, &errorMessage,
		&durationMs, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}

	if signalAction != nil {
		run.SignalAction = models.SignalAction(*signalAction)
	}
	if signalSource != nil {
		run.SignalSource = models.SignalSource(*signalSource)
	}
	if outcome != nil {
		run.DecisionOutcome = models.DecisionOutcome(*outcome)
	}
	if tradeID != nil {
		run.TradeID = *tradeID
	}
	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	if durationMs != nil {
		run.DurationMs = *durationMs
	}
	if outputData != nil {
		if err := json.Unmarshal(outputData, &run.OutputData); err != nil {
			return nil, fmt.Errorf("invalid output data for run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// nullable maps an empty string to SQL NULL
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
