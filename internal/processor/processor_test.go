package processor

import (
	"context"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"nutrition-enrichment/internal/models"
	"nutrition-enrichment/internal/scorer"
	testutil "nutrition-enrichment/internal/testing"
	errs "nutrition-enrichment/pkg/errors"
)

func newTestScorer(t *testing.T) *scorer.QualityScorer {
	t.Helper()
	st, err := scorer.NewSourceTrust("")
	if err != nil {
		t.Fatalf("NewSourceTrust: %v", err)
	}
	return scorer.NewDefault(st)
}

func newProcessorHarness(t *testing.T) (*Processor, *testutil.MockRepository, *testutil.MockCompleter, *testutil.MockUoWFactory) {
	t.Helper()
	repo := testutil.NewMockRepository()
	comp := testutil.NewMockCompleter()
	uow := &testutil.MockUoWFactory{Repo: repo}
	p := NewProcessor(repo, uow, comp, newTestScorer(t), 15*time.Minute, 3)
	return p, repo, comp, uow
}

func incompleteRecord(id int64) models.FoodRecord {
	src := models.SourceAuthoritative
	return models.FoodRecord{
		ID:     id,
		Name:   "rolled oats",
		Source: &src,
		Nutrients: models.Nutrients{
			Calories: models.Float(380),
		},
	}
}

func TestProcess_SuccessfulEnrichment(t *testing.T) {
	p, repo, comp, uowf := newProcessorHarness(t)
	rec := incompleteRecord(1)
	repo.Add(rec)
	comp.Resp[1] = &models.CompletedData{
		Nutrients: models.Nutrients{
			Calories:  models.Float(999), // must not overwrite 380
			Protein:   models.Float(13),
			Carbs:     models.Float(68),
			Fat:       models.Float(7),
			Calcium:   models.Float(50),
			Iron:      models.Float(4),
			Potassium: models.Float(360),
		},
		Confidence: 90,
	}

	out, err := p.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Claimed || out.Status != models.StatusCompleted {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Score <= 0 || out.Score > 100 {
		t.Fatalf("score out of range: %d", out.Score)
	}

	stored := repo.Records[1]
	if stored.EnrichmentStatus != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.EnrichmentStatus)
	}
	if *stored.Nutrients.Calories != 380 {
		t.Fatalf("pre-existing calories overwritten: %v", *stored.Nutrients.Calories)
	}
	if stored.Nutrients.Protein == nil || *stored.Nutrients.Protein != 13 {
		t.Fatalf("gap not filled: %+v", stored.Nutrients.Protein)
	}
	if uowf.Last == nil || !uowf.Last.Committed {
		t.Fatal("expected a committed unit of work")
	}
	if len(repo.History) != 1 || repo.History[0].Status != string(models.StatusCompleted) {
		t.Fatalf("expected one completed history row, got %+v", repo.History)
	}
}

func TestProcess_SuccessResetsRetryCounter(t *testing.T) {
	p, repo, comp, _ := newProcessorHarness(t)
	rec := incompleteRecord(11)
	rec.EnrichmentRetries = 2
	repo.Add(rec)
	comp.Resp[11] = &models.CompletedData{
		Nutrients: models.Nutrients{
			Protein: models.Float(13),
			Carbs:   models.Float(68),
			Fat:     models.Float(7),
		},
		Confidence: 80,
	}

	if _, err := p.Process(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.Records[11].EnrichmentRetries; got != 0 {
		t.Fatalf("expected retry counter reset on success, got %d", got)
	}
}

func TestProcess_ClaimDeniedSkips(t *testing.T) {
	p, repo, comp, _ := newProcessorHarness(t)
	rec := incompleteRecord(2)
	repo.Add(rec)
	repo.ClaimDenied[2] = true

	out, err := p.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Claimed {
		t.Fatal("expected record to be skipped")
	}
	if len(comp.Calls) != 0 {
		t.Fatal("completion service must not be called for unclaimed records")
	}
}

func TestProcess_TransientFailureResetsRecord(t *testing.T) {
	p, repo, comp, _ := newProcessorHarness(t)
	rec := incompleteRecord(3)
	repo.Add(rec)
	comp.Err[3] = errs.NewExternal("completion.Complete", "openai", "completion API call failed",
		&openai.APIError{HTTPStatusCode: 429, Message: "rate limited"})

	out, err := p.Process(context.Background(), rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if out.Status != models.StatusUnset || !out.Transient {
		t.Fatalf("expected transient reset, got %+v", out)
	}
	stored := repo.Records[3]
	if stored.EnrichmentStatus != models.StatusUnset {
		t.Fatalf("expected unset, got %q", stored.EnrichmentStatus)
	}
	if stored.EnrichmentRetries != 1 {
		t.Fatalf("expected retry counter 1, got %d", stored.EnrichmentRetries)
	}
	if len(repo.History) != 1 {
		t.Fatalf("expected failure history row, got %d", len(repo.History))
	}
}

func TestProcess_TransientRetryBoundExceeded(t *testing.T) {
	p, repo, comp, _ := newProcessorHarness(t)
	rec := incompleteRecord(4)
	rec.EnrichmentRetries = 3 // already at the bound
	repo.Add(rec)
	comp.Err[4] = errs.NewExternal("completion.Complete", "openai", "timeout",
		&openai.APIError{HTTPStatusCode: 503})

	out, err := p.Process(context.Background(), rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if out.Status != models.StatusFailed || out.Transient {
		t.Fatalf("expected permanent failure past retry bound, got %+v", out)
	}
	if repo.Records[4].EnrichmentStatus != models.StatusFailed {
		t.Fatalf("expected failed, got %q", repo.Records[4].EnrichmentStatus)
	}
}

func TestSetMaxRetries_RaisesBoundForNextFailure(t *testing.T) {
	p, repo, comp, _ := newProcessorHarness(t)
	rec := incompleteRecord(10)
	rec.EnrichmentRetries = 3 // at the constructed bound
	repo.Add(rec)
	comp.Err[10] = errs.NewExternal("completion.Complete", "openai", "call failed",
		&openai.APIError{HTTPStatusCode: 503})

	p.SetMaxRetries(10)

	out, err := p.Process(context.Background(), rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if out.Status != models.StatusUnset || !out.Transient {
		t.Fatalf("raised bound must keep the record retryable, got %+v", out)
	}
	if repo.Records[10].EnrichmentRetries != 4 {
		t.Fatalf("expected retry counter 4, got %d", repo.Records[10].EnrichmentRetries)
	}
}

func TestProcess_PermanentFailureParksRecord(t *testing.T) {
	p, repo, comp, _ := newProcessorHarness(t)
	rec := incompleteRecord(5)
	repo.Add(rec)
	comp.Err[5] = errs.NewBiz("completion.ParseResponse", "malformed completion payload: not json", nil)

	out, err := p.Process(context.Background(), rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if out.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %+v", out)
	}
	if repo.Records[5].EnrichmentRetries != 0 {
		t.Fatal("permanent failures must not consume the transient retry budget")
	}
	if len(repo.History) != 1 || repo.History[0].ResponseExcerpt == nil {
		t.Fatalf("expected history row with excerpt, got %+v", repo.History)
	}
}

func TestProcess_CommitFailureIsTransient(t *testing.T) {
	p, repo, comp, uowf := newProcessorHarness(t)
	rec := incompleteRecord(6)
	repo.Add(rec)
	comp.Resp[6] = &models.CompletedData{
		Nutrients: models.Nutrients{
			Protein: models.Float(10),
			Carbs:   models.Float(60),
			Fat:     models.Float(8),
		},
		Confidence: 70,
	}
	uowf.CommitErr = errs.NewDB("database.SaveEnrichedRecordTx", "connection reset", nil)

	out, err := p.Process(context.Background(), rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if out.Status != models.StatusUnset || !out.Transient {
		t.Fatalf("expected transient reset after commit failure, got %+v", out)
	}
}

func TestProcess_CorrectsCompletedCalories(t *testing.T) {
	p, repo, comp, _ := newProcessorHarness(t)
	// no pre-existing calories: the service's bad value gets corrected
	src := models.SourceAuthoritative
	rec := models.FoodRecord{ID: 7, Name: "protein shake", Source: &src}
	repo.Add(rec)
	comp.Resp[7] = &models.CompletedData{
		Nutrients: models.Nutrients{
			Calories: models.Float(900), // macros imply 4*20+4*10+9*5 = 165
			Protein:  models.Float(20),
			Carbs:    models.Float(10),
			Fat:      models.Float(5),
		},
		Confidence: 80,
	}

	out, err := p.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %+v", out)
	}
	if got := *repo.Records[7].Nutrients.Calories; got != 165 {
		t.Fatalf("expected corrected calories 165, got %v", got)
	}
	if len(out.Issues) == 0 {
		t.Fatal("expected the calorie issue to be recorded")
	}
}

func TestProcess_FiberClampAlwaysApplies(t *testing.T) {
	p, repo, comp, _ := newProcessorHarness(t)
	rec := incompleteRecord(8)
	repo.Add(rec)
	comp.Resp[8] = &models.CompletedData{
		Nutrients: models.Nutrients{
			Protein: models.Float(13),
			Carbs:   models.Float(68),
			Fat:     models.Float(7),
			Fiber:   models.Float(80), // above carbs
		},
		Confidence: 60,
	}

	if _, err := p.Process(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := *repo.Records[8].Nutrients.Fiber; got != 68 {
		t.Fatalf("expected fiber clamped to carbs (68), got %v", got)
	}
}
