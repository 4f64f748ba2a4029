package repository

import (
	"context"

	"ai-trader/models"

	"github.com/google/uuid"
)

// RepositoryInterface defines all repository operations
type RepositoryInterface interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	// Analysis runs
	CreateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error
	UpdateAnalysisRun(ctx context.Context, run *models.AnalysisRun) error
	GetAnalysisRun(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error)
	GetAnalysisRuns(ctx context.Context, runType models.RunType, limit int) ([]models.AnalysisRun, error)

	// Trades
	CreateTrade(ctx context.Context, trade *models.Trade) error
	GetTrades(ctx context.Context, limit int) ([]models.Trade, error)
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)
