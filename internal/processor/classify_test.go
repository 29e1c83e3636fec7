package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"

	"nutrition-enrichment/pkg/circuit"
	errs "nutrition-enrichment/pkg/errors"
)

func TestClassify_RateLimitIsTransient(t *testing.T) {
	err := errs.NewExternal("completion.Complete", "openai", "call failed",
		&openai.APIError{HTTPStatusCode: 429})
	if got := Classify(err); got != ClassTransient {
		t.Fatalf("expected transient, got %s", got)
	}
}

func TestClassify_ServerErrorIsTransient(t *testing.T) {
	err := errs.NewExternal("completion.Complete", "openai", "call failed",
		&openai.APIError{HTTPStatusCode: 502})
	if got := Classify(err); got != ClassTransient {
		t.Fatalf("expected transient, got %s", got)
	}
}

func TestClassify_AuthErrorIsPermanent(t *testing.T) {
	err := errs.NewExternal("completion.Complete", "openai", "call failed",
		&openai.APIError{HTTPStatusCode: 401})
	if got := Classify(err); got != ClassPermanent {
		t.Fatalf("expected permanent, got %s", got)
	}
}

func TestClassify_MalformedResponseIsPermanent(t *testing.T) {
	err := errs.NewBiz("completion.ParseResponse", "malformed completion payload", nil)
	if got := Classify(err); got != ClassPermanent {
		t.Fatalf("expected permanent, got %s", got)
	}
}

func TestClassify_OpenBreakerIsTransient(t *testing.T) {
	if got := Classify(fmt.Errorf("call: %w", circuit.ErrOpen)); got != ClassTransient {
		t.Fatalf("expected transient, got %s", got)
	}
}

func TestClassify_ContextDeadlineIsTransient(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got != ClassTransient {
		t.Fatalf("expected transient, got %s", got)
	}
}

func TestClassify_RecordNotFoundIsPermanent(t *testing.T) {
	err := errs.NewDB("database.GetFoodRecordByIDCtx", "record 404 not found", sql.ErrNoRows)
	if got := Classify(err); got != ClassPermanent {
		t.Fatalf("expected permanent, got %s", got)
	}
}

func TestClassify_DBErrorIsTransient(t *testing.T) {
	err := errs.NewDB("database.SaveEnrichedRecordTx", "connection reset", nil)
	if got := Classify(err); got != ClassTransient {
		t.Fatalf("expected transient, got %s", got)
	}
}

func TestClassify_UnknownDefaultsTransient(t *testing.T) {
	if got := Classify(errors.New("somebody set up us the bomb")); got != ClassTransient {
		t.Fatalf("expected transient default, got %s", got)
	}
}
