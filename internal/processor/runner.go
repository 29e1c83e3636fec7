package processor

import (
	"context"
	"log"
	"sync"
	"time"

	"nutrition-enrichment/internal/constants"
	"nutrition-enrichment/internal/domain"
	"nutrition-enrichment/internal/models"
	"nutrition-enrichment/pkg/config"
	"nutrition-enrichment/pkg/metrics"
)

// RunnerStats tracks cumulative batch statistics.
type RunnerStats struct {
	Batches      int64     `json:"batches"`
	Processed    int64     `json:"processed"`
	Successful   int64     `json:"successful"`
	Failed       int64     `json:"failed"`
	Skipped      int64     `json:"skipped"`
	LastBatchAt  time.Time `json:"last_batch_at"`
	LastDuration string    `json:"last_duration"`
}

// Runner pulls enrichment candidates and feeds them through the processor
// one at a time, pacing calls to the completion service.
type Runner struct {
	repo      domain.Repository
	processor *Processor

	mu          sync.RWMutex
	batchSize   int
	recordDelay time.Duration
	stats       RunnerStats

	// sleep is swappable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner(repo domain.Repository, proc *Processor, batchSize int, recordDelay time.Duration) *Runner {
	if batchSize <= 0 {
		batchSize = constants.BatchSizeDefault
	}
	if recordDelay < 0 {
		recordDelay = constants.RecordDelayDefault
	}
	return &Runner{
		repo:        repo,
		processor:   proc,
		batchSize:   batchSize,
		recordDelay: recordDelay,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyConfig picks up hot-reloadable batch knobs.
func (r *Runner) ApplyConfig(cfg *config.Config) {
	r.mu.Lock()
	if cfg.BatchSize > 0 {
		r.batchSize = cfg.BatchSize
	}
	if cfg.RecordDelay >= 0 {
		r.recordDelay = cfg.RecordDelay
	}
	r.mu.Unlock()
	r.processor.SetMaxRetries(cfg.MaxTransientRetries)
	log.Printf("runner config applied: batch_size=%d record_delay=%s", cfg.BatchSize, cfg.RecordDelay)
}

// Stats returns a copy of cumulative statistics.
func (r *Runner) Stats() RunnerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// RunBatch selects one batch of candidates and processes them sequentially
// with the configured delay between records (not after the last). A canceled
// context stops the batch; the partial result is still returned.
func (r *Runner) RunBatch(ctx context.Context) (*models.BatchResult, error) {
	start := time.Now()
	r.mu.RLock()
	batchSize := r.batchSize
	delay := r.recordDelay
	r.mu.RUnlock()

	records, err := r.repo.GetEnrichmentCandidatesCtx(ctx, batchSize)
	if err != nil {
		return nil, err
	}

	result := &models.BatchResult{}
	if len(records) == 0 {
		log.Println("no enrichment candidates found")
		if remaining, cerr := r.repo.CountEnrichmentCandidatesCtx(ctx); cerr == nil {
			result.Remaining = remaining
		}
		r.recordStats(result, 0, start)
		return result, nil
	}

	log.Printf("processing batch of %d records", len(records))
	var skipped int64
	for i, rec := range records {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}

		outcome, perr := r.processor.Process(ctx, rec)
		if !outcome.Claimed && perr == nil {
			skipped++
		} else {
			result.Processed++
			if outcome.Status == models.StatusCompleted {
				result.Successful++
			} else {
				result.Failed++
				result.Errors = append(result.Errors, models.RecordError{
					FoodID:   rec.ID,
					FoodName: rec.Name,
					Error:    errString(perr),
				})
			}
		}

		if i < len(records)-1 && delay > 0 {
			if serr := r.sleep(ctx, delay); serr != nil {
				err = serr
				break
			}
		}
	}

	if remaining, cerr := r.repo.CountEnrichmentCandidatesCtx(ctx); cerr == nil {
		result.Remaining = remaining
	} else {
		log.Printf("remaining count failed: %v", cerr)
	}

	r.recordStats(result, skipped, start)
	metrics.Default.Counter("enrichment_batches_total", "Enrichment batches run").Inc(1)
	log.Printf("batch done: processed=%d successful=%d failed=%d remaining=%d in %s",
		result.Processed, result.Successful, result.Failed, result.Remaining, time.Since(start).Round(time.Millisecond))

	if err != nil && err != context.Canceled {
		return result, err
	}
	return result, nil
}

// EnrichRecord processes a single record on demand, outside batch selection.
func (r *Runner) EnrichRecord(ctx context.Context, id int64) (*Outcome, error) {
	rec, err := r.repo.GetFoodRecordByIDCtx(ctx, id)
	if err != nil {
		return nil, err
	}
	outcome, perr := r.processor.Process(ctx, *rec)
	if perr != nil {
		return &outcome, perr
	}
	return &outcome, nil
}

func (r *Runner) recordStats(result *models.BatchResult, skipped int64, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Batches++
	r.stats.Processed += int64(result.Processed)
	r.stats.Successful += int64(result.Successful)
	r.stats.Failed += int64(result.Failed)
	r.stats.Skipped += skipped
	r.stats.LastBatchAt = time.Now()
	r.stats.LastDuration = time.Since(start).Round(time.Millisecond).String()
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
