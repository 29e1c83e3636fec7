// Package processor drives the enrichment lifecycle for individual records
// and batches: claim, complete, validate, score, persist.
package processor

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"nutrition-enrichment/internal/completion"
	"nutrition-enrichment/internal/constants"
	"nutrition-enrichment/internal/domain"
	"nutrition-enrichment/internal/models"
	"nutrition-enrichment/internal/scorer"
	"nutrition-enrichment/internal/validator"
	"nutrition-enrichment/pkg/events"
	"nutrition-enrichment/pkg/metrics"
)

// Outcome summarizes one processing attempt.
type Outcome struct {
	FoodID    int64
	Claimed   bool
	Status    models.EnrichmentStatus
	Score     int
	Issues    []string
	Transient bool // set when Status is not completed
}

// Processor runs the per-record enrichment pipeline.
type Processor struct {
	repo       domain.Repository
	uowFactory domain.UnitOfWorkFactory
	completer  completion.Completer
	scorer     *scorer.QualityScorer
	es         events.EventStore // optional

	claimTTL   time.Duration
	maxRetries atomic.Int64 // updated by the config watcher mid-batch
}

func NewProcessor(repo domain.Repository, uowFactory domain.UnitOfWorkFactory, completer completion.Completer, qs *scorer.QualityScorer, claimTTL time.Duration, maxRetries int) *Processor {
	if claimTTL <= 0 {
		claimTTL = constants.ClaimTTLDefault
	}
	if maxRetries <= 0 {
		maxRetries = constants.MaxTransientRetriesDefault
	}
	p := &Processor{
		repo:       repo,
		uowFactory: uowFactory,
		completer:  completer,
		scorer:     qs,
		claimTTL:   claimTTL,
	}
	p.maxRetries.Store(int64(maxRetries))
	return p
}

// SetEventStore wires an optional audit event sink.
func (p *Processor) SetEventStore(es events.EventStore) { p.es = es }

// SetMaxRetries adjusts the transient retry bound on config reload.
func (p *Processor) SetMaxRetries(n int) {
	if n > 0 {
		p.maxRetries.Store(int64(n))
	}
}

// Process runs the full pipeline for one record. A record another worker
// holds is skipped (Claimed=false, nil error). Failures are absorbed into
// the outcome after status transitions are persisted; the returned error is
// the underlying cause for reporting.
func (p *Processor) Process(ctx context.Context, rec models.FoodRecord) (Outcome, error) {
	out := Outcome{FoodID: rec.ID}

	claim := uuid.NewString()
	claimed, err := p.repo.ClaimRecordCtx(ctx, rec.ID, claim, time.Now().Add(p.claimTTL))
	if err != nil {
		return out, err
	}
	if !claimed {
		log.Printf("record %d: already claimed, skipping", rec.ID)
		return out, nil
	}
	out.Claimed = true

	p.emit(ctx, events.EnrichmentStarted{
		Base:      events.Base{Ts: time.Now(), FID: rec.ID},
		Triggered: "batch",
		Claim:     claim,
	})

	completed, err := p.completer.Complete(ctx, rec)
	if err != nil {
		return p.fail(ctx, rec, out, err)
	}

	merged := completion.Merge(rec.Nutrients, completed.Nutrients)
	rep := validator.Validate(merged)

	// The calorie correction only replaces values the completion service
	// contributed. Calories the record already carried are trusted as-is;
	// the fiber/sugar clamps always apply.
	if rec.Nutrients.Calories != nil {
		rep.Corrections.Calories = nil
	}
	final := rep.Apply(merged).DefaultRequired()

	score := p.scorer.Score(rec, final, rep.Issues, completed.Confidence)
	now := time.Now()

	uow, err := p.uowFactory.Begin(ctx)
	if err != nil {
		return p.fail(ctx, rec, out, err)
	}
	enriched := &models.EnrichedRecord{
		ID:             rec.ID,
		Nutrients:      final,
		QualityScore:   score,
		Status:         models.StatusCompleted,
		LastEnrichment: now,
	}
	history := &models.EnrichmentHistory{
		FoodID:      rec.ID,
		Score:       score,
		Status:      string(models.StatusCompleted),
		Issues:      rep.Issues,
		Confidence:  completed.Confidence,
		ProcessedAt: now,
	}
	if err := uow.SaveEnrichedRecordCtx(ctx, enriched); err != nil {
		uow.Rollback()
		return p.fail(ctx, rec, out, err)
	}
	if err := uow.SaveEnrichmentHistoryCtx(ctx, history); err != nil {
		uow.Rollback()
		return p.fail(ctx, rec, out, err)
	}
	if err := uow.Commit(); err != nil {
		return p.fail(ctx, rec, out, err)
	}

	out.Status = models.StatusCompleted
	out.Score = score
	out.Issues = rep.Issues

	metrics.Default.Counter("enrichment_success_total", "Records enriched successfully").Inc(1)
	p.emit(ctx, events.EnrichmentCompleted{
		Base:       events.Base{Ts: now, FID: rec.ID},
		Score:      score,
		Issues:     rep.Issues,
		Confidence: completed.Confidence,
	})
	log.Printf("record %d: enriched, score=%d issues=%d", rec.ID, score, len(rep.Issues))
	return out, nil
}

// fail applies the failure state machine: transient failures reset the
// record for a later batch until the retry bound is hit, permanent ones
// park it as failed. The history row keeps the raw cause.
func (p *Processor) fail(ctx context.Context, rec models.FoodRecord, out Outcome, cause error) (Outcome, error) {
	class := Classify(cause)
	now := time.Now()
	retries := rec.EnrichmentRetries

	status := models.StatusFailed
	if class == ClassTransient {
		retries++
		if bound := int(p.maxRetries.Load()); retries <= bound {
			status = models.StatusUnset
			out.Transient = true
		} else {
			log.Printf("record %d: transient retry bound (%d) exceeded, marking failed", rec.ID, bound)
		}
	}

	if err := p.repo.SetEnrichmentStatusCtx(ctx, rec.ID, status, retries, now); err != nil {
		log.Printf("record %d: status transition failed: %v", rec.ID, err)
	}

	msg := cause.Error()
	var excerpt *string
	if m := errMessage(cause); m != "" {
		excerpt = &m
	}
	history := &models.EnrichmentHistory{
		FoodID:          rec.ID,
		Status:          string(status),
		Issues:          []string{msg},
		ResponseExcerpt: excerpt,
		ProcessedAt:     now,
	}
	if err := p.repo.SaveEnrichmentHistoryCtx(ctx, history); err != nil {
		log.Printf("record %d: history write failed: %v", rec.ID, err)
	}

	metrics.Default.Counter(fmt.Sprintf("enrichment_failure_%s_total", class), "Failed enrichment attempts by class").Inc(1)
	p.emit(ctx, events.EnrichmentFailed{
		Base:      events.Base{Ts: now, FID: rec.ID},
		Reason:    msg,
		Transient: class == ClassTransient,
		Retries:   retries,
	})

	out.Status = status
	return out, cause
}

func (p *Processor) emit(ctx context.Context, e events.Event) {
	if p.es == nil {
		return
	}
	if err := p.es.Append(ctx, e); err != nil {
		log.Printf("event append failed: %v", err)
	}
}

// errMessage extracts the structured message from known error kinds, used as
// the stored excerpt of what went wrong.
func errMessage(err error) string {
	for err != nil {
		if m, ok := err.(interface{ Message() string }); ok {
			return m.Message()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
