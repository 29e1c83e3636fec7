package processor

import (
	"context"

	"nutrition-enrichment/internal/models"
	"nutrition-enrichment/pkg/config"
)

// Service exposes the minimal contract used by the web layer.
// Keep it small to decouple from implementation details.
type Service interface {
	RunBatch(ctx context.Context) (*models.BatchResult, error)
	EnrichRecord(ctx context.Context, id int64) (*Outcome, error)
	Stats() RunnerStats
	ApplyConfig(cfg *config.Config)
}

// Ensure Runner implements Service.
var _ Service = (*Runner)(nil)
