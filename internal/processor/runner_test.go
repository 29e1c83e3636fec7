package processor

import (
	"context"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"nutrition-enrichment/internal/models"
	testutil "nutrition-enrichment/internal/testing"
	"nutrition-enrichment/pkg/config"
	errs "nutrition-enrichment/pkg/errors"
)

func newRunnerHarness(t *testing.T, batchSize int) (*Runner, *testutil.MockRepository, *testutil.MockCompleter, *[]time.Duration) {
	t.Helper()
	repo := testutil.NewMockRepository()
	comp := testutil.NewMockCompleter()
	uow := &testutil.MockUoWFactory{Repo: repo}
	proc := NewProcessor(repo, uow, comp, newTestScorer(t), 15*time.Minute, 3)
	r := NewRunner(repo, proc, batchSize, 2*time.Second)

	var sleeps []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return r, repo, comp, &sleeps
}

func completeData() *models.CompletedData {
	return &models.CompletedData{
		Nutrients: models.Nutrients{
			Calories: models.Float(165),
			Protein:  models.Float(10),
			Carbs:    models.Float(20),
			Fat:      models.Float(5),
		},
		Confidence: 85,
	}
}

func TestRunBatch_EmptyPool(t *testing.T) {
	r, _, _, sleeps := newRunnerHarness(t, 5)
	res, err := r.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 0 || res.Successful != 0 || res.Failed != 0 || res.Remaining != 0 {
		t.Fatalf("expected zero result, got %+v", res)
	}
	if len(*sleeps) != 0 {
		t.Fatal("no delay expected for empty batch")
	}
}

func TestRunBatch_DelayBetweenRecordsNotAfterLast(t *testing.T) {
	r, repo, comp, sleeps := newRunnerHarness(t, 5)
	for id := int64(1); id <= 3; id++ {
		repo.Add(incompleteRecord(id))
		comp.Resp[id] = completeData()
	}

	res, err := r.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 3 || res.Successful != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	// three records, two gaps
	if len(*sleeps) != 2 {
		t.Fatalf("expected 2 delays, got %d", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != 2*time.Second {
			t.Fatalf("unexpected delay %s", d)
		}
	}
}

func TestRunBatch_PriorityOrdering(t *testing.T) {
	r, repo, comp, _ := newRunnerHarness(t, 3)

	lowScore := incompleteRecord(1)
	lowScore.EnrichmentStatus = models.StatusCompleted
	score := 50
	lowScore.QualityScore = &score
	repo.Add(lowScore)

	repo.Add(incompleteRecord(2)) // never enriched

	failed := incompleteRecord(3) // enriched before, no score yet
	failed.EnrichmentStatus = models.StatusFailed
	repo.Add(failed)

	if _, err := r.RunBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int64{2, 3, 1}
	if len(comp.Calls) != len(want) {
		t.Fatalf("expected %d records processed, got %v", len(want), comp.Calls)
	}
	for i, id := range want {
		if comp.Calls[i] != id {
			t.Fatalf("expected processing order %v, got %v", want, comp.Calls)
		}
	}
}

func TestRunBatch_BoundedBySize(t *testing.T) {
	r, repo, comp, _ := newRunnerHarness(t, 2)
	for id := int64(1); id <= 5; id++ {
		repo.Add(incompleteRecord(id))
		comp.Resp[id] = completeData()
	}

	res, err := r.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 2 {
		t.Fatalf("expected batch bound of 2, got %d", res.Processed)
	}
	if res.Remaining != 3 {
		t.Fatalf("expected 3 remaining, got %d", res.Remaining)
	}
}

func TestRunBatch_FailuresCollected(t *testing.T) {
	r, repo, comp, _ := newRunnerHarness(t, 5)
	repo.Add(incompleteRecord(1))
	comp.Resp[1] = completeData()
	repo.Add(incompleteRecord(2))
	comp.Err[2] = errs.NewExternal("completion.Complete", "openai", "rate limited",
		&openai.APIError{HTTPStatusCode: 429})

	res, err := r.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Successful != 1 || res.Failed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].FoodID != 2 || res.Errors[0].FoodName == "" {
		t.Fatalf("unexpected errors: %+v", res.Errors)
	}
	// transient failure keeps the record in the pool
	if res.Remaining != 1 {
		t.Fatalf("expected failed record back in pool, remaining=%d", res.Remaining)
	}
}

func TestRunBatch_SkippedClaims(t *testing.T) {
	r, repo, comp, _ := newRunnerHarness(t, 5)
	repo.Add(incompleteRecord(1))
	comp.Resp[1] = completeData()
	repo.Add(incompleteRecord(2))
	repo.ClaimDenied[2] = true

	res, err := r.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 1 || res.Successful != 1 {
		t.Fatalf("skipped record must not count as processed: %+v", res)
	}
	if got := r.Stats().Skipped; got != 1 {
		t.Fatalf("expected 1 skipped in stats, got %d", got)
	}
}

func TestRunBatch_CanceledContextStopsBatch(t *testing.T) {
	r, repo, comp, _ := newRunnerHarness(t, 5)
	for id := int64(1); id <= 3; id++ {
		repo.Add(incompleteRecord(id))
		comp.Resp[id] = completeData()
	}
	ctx, cancel := context.WithCancel(context.Background())
	// cancel during the first delay
	r.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return context.Canceled
	}

	res, err := r.RunBatch(ctx)
	if err != nil {
		t.Fatalf("cancellation should return the partial result, got %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("expected 1 processed before cancel, got %d", res.Processed)
	}
}

func TestEnrichRecord_SingleRecord(t *testing.T) {
	r, repo, comp, _ := newRunnerHarness(t, 5)
	repo.Add(incompleteRecord(9))
	comp.Resp[9] = completeData()

	out, err := r.EnrichRecord(context.Background(), 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != models.StatusCompleted {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestEnrichRecord_UnknownID(t *testing.T) {
	r, _, _, _ := newRunnerHarness(t, 5)
	if _, err := r.EnrichRecord(context.Background(), 404); err == nil {
		t.Fatal("expected error for unknown record")
	}
}

func TestApplyConfig_HotReload(t *testing.T) {
	r, repo, comp, sleeps := newRunnerHarness(t, 5)
	for id := int64(1); id <= 3; id++ {
		repo.Add(incompleteRecord(id))
		comp.Resp[id] = completeData()
	}

	r.ApplyConfig(&config.Config{BatchSize: 1, RecordDelay: 500 * time.Millisecond, MaxTransientRetries: 7})

	res, err := r.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("expected reloaded batch size 1, got %d", res.Processed)
	}
	if len(*sleeps) != 0 {
		t.Fatal("single-record batch must not sleep")
	}
}

func TestStats_Accumulate(t *testing.T) {
	r, repo, comp, _ := newRunnerHarness(t, 5)
	repo.Add(incompleteRecord(1))
	comp.Resp[1] = completeData()

	if _, err := r.RunBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.RunBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := r.Stats()
	if st.Batches != 2 {
		t.Fatalf("expected 2 batches, got %d", st.Batches)
	}
	if st.Processed != 1 || st.Successful != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}
