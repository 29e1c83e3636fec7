package domain

import (
	"context"
	"time"

	"nutrition-enrichment/internal/models"
)

// FoodRecordRepository defines data access for enrichment candidates.
type FoodRecordRepository interface {
	// GetEnrichmentCandidatesCtx returns up to limit records needing
	// enrichment, ordered never-enriched first, then ascending quality
	// score with nulls first. Records holding a live processing claim are
	// excluded; lapsed claims re-enter the pool.
	GetEnrichmentCandidatesCtx(ctx context.Context, limit int) ([]models.FoodRecord, error)
	CountEnrichmentCandidatesCtx(ctx context.Context) (int, error)
	GetFoodRecordByIDCtx(ctx context.Context, id int64) (*models.FoodRecord, error)

	// ClaimRecordCtx conditionally marks a record as processing with a
	// claim token and expiry. Returns false when another worker holds a
	// live claim.
	ClaimRecordCtx(ctx context.Context, id int64, claim string, expires time.Time) (bool, error)

	// SetEnrichmentStatusCtx transitions a record out of processing
	// (transient reset to unset, or permanent failed) and clears its
	// claim. Retries carries the updated transient-retry counter.
	SetEnrichmentStatusCtx(ctx context.Context, id int64, status models.EnrichmentStatus, retries int, at time.Time) error
}

// EnrichmentRepository defines access for enrichment results and history.
type EnrichmentRepository interface {
	SaveEnrichedRecordCtx(ctx context.Context, rec *models.EnrichedRecord) error
	SaveEnrichmentHistoryCtx(ctx context.Context, h *models.EnrichmentHistory) error
	GetEnrichmentHistoryCtx(ctx context.Context, foodID int64, limit int) ([]models.EnrichmentHistory, error)
}

// Repository aggregates the repos required by the worker.
type Repository interface {
	FoodRecordRepository
	EnrichmentRepository
}
