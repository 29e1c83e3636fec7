package repository

import (
	"context"
	"sync/atomic"
	"time"

	"nutrition-enrichment/internal/constants"
	"nutrition-enrichment/internal/domain"
	"nutrition-enrichment/internal/models"
	"nutrition-enrichment/pkg/database"
)

// SQLRepository is a thin adapter over pkg/database.DB to satisfy domain repositories.
// It keeps business logic decoupled from the SQL layer. The rescore threshold is
// bound at construction so callers never pass it per query.
type SQLRepository struct {
	db               *database.DB
	rescoreThreshold atomic.Int64 // updated by the config watcher, read per query
}

func NewSQLRepository(db *database.DB, rescoreThreshold int) *SQLRepository {
	if rescoreThreshold <= 0 {
		rescoreThreshold = constants.RescoreThresholdDefault
	}
	r := &SQLRepository{db: db}
	r.rescoreThreshold.Store(int64(rescoreThreshold))
	return r
}

// Ensure interface compliance at compile time
var _ domain.Repository = (*SQLRepository)(nil)

// SetRescoreThreshold updates the candidate cutoff on config reload.
func (r *SQLRepository) SetRescoreThreshold(v int) {
	r.rescoreThreshold.Store(int64(v))
}

// FoodRecordRepository methods
func (r *SQLRepository) GetEnrichmentCandidatesCtx(ctx context.Context, limit int) ([]models.FoodRecord, error) {
	return r.db.GetEnrichmentCandidatesCtx(ctx, limit, int(r.rescoreThreshold.Load()))
}

func (r *SQLRepository) CountEnrichmentCandidatesCtx(ctx context.Context) (int, error) {
	return r.db.CountEnrichmentCandidatesCtx(ctx, int(r.rescoreThreshold.Load()))
}

func (r *SQLRepository) GetFoodRecordByIDCtx(ctx context.Context, id int64) (*models.FoodRecord, error) {
	return r.db.GetFoodRecordByIDCtx(ctx, id)
}

func (r *SQLRepository) ClaimRecordCtx(ctx context.Context, id int64, claim string, expires time.Time) (bool, error) {
	return r.db.ClaimRecordCtx(ctx, id, claim, expires)
}

func (r *SQLRepository) SetEnrichmentStatusCtx(ctx context.Context, id int64, status models.EnrichmentStatus, retries int, at time.Time) error {
	return r.db.SetEnrichmentStatusCtx(ctx, id, status, retries, at)
}

// EnrichmentRepository methods
func (r *SQLRepository) SaveEnrichedRecordCtx(ctx context.Context, rec *models.EnrichedRecord) error {
	return r.db.SaveEnrichedRecordCtx(ctx, rec)
}

func (r *SQLRepository) SaveEnrichmentHistoryCtx(ctx context.Context, h *models.EnrichmentHistory) error {
	return r.db.SaveEnrichmentHistoryCtx(ctx, h)
}

func (r *SQLRepository) GetEnrichmentHistoryCtx(ctx context.Context, foodID int64, limit int) ([]models.EnrichmentHistory, error) {
	return r.db.GetEnrichmentHistoryCtx(ctx, foodID, limit)
}
