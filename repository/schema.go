package repository

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id               UUID PRIMARY KEY,
	run_type         TEXT NOT NULL,
	symbols          TEXT[] NOT NULL DEFAULT '{}',
	status           TEXT NOT NULL,
	signal_action    TEXT,
	signal_source    TEXT,
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	risk_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	decision_outcome TEXT,
	trade_id         TEXT,
	output_data      JSONB,
	error_message    TEXT,
	duration_ms      INTEGER,
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_started_at ON analysis_runs (started_at DESC);

CREATE TABLE IF NOT EXISTS trades (
	id         TEXT PRIMARY KEY,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	price      NUMERIC NOT NULL,
	quantity   NUMERIC NOT NULL,
	notional   NUMERIC NOT NULL,
	fee        NUMERIC NOT NULL DEFAULT 0,
	status     TEXT NOT NULL,
	pnl        NUMERIC,
	reasoning  TEXT,
	executed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades (executed_at DESC);
`

// EnsureSchema creates the journal tables when they are missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
