package interfaces

import (
	"context"

	"github.com/bobmcallan/capscan/internal/models"
)

// PerformanceEngine computes the lookback-window performance of one instrument.
type PerformanceEngine interface {
	// Compute always returns a value for every window. The error is reserved
	// for an expired session.
	Compute(ctx context.Context, sess *models.Session, epic string, currentPrice *float64) (models.PerformanceResult, error)
}

// ScanResult is the output of one scan run.
type ScanResult struct {
	Records []models.MarketRecord `json:"records"`
	Summary models.RunSummary     `json:"summary"`
}

// ScanService runs the fetch-and-compute sequence over the configured categories.
type ScanService interface {
	Run(ctx context.Context) (*ScanResult, error)
}
