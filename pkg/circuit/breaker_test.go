package circuit

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failingOp(ctx context.Context) error { return errBoom }
func okOp(ctx context.Context) error      { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New(Config{
		Name:              "test_consec",
		OpenFor:           time.Minute,
		MaxConsecFailures: 3,
	}, nil)

	for i := 0; i < 3; i++ {
		if err := b.Do(context.Background(), failingOp); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected op error, got %v", i, err)
		}
	}
	if st := b.State(); st != Open {
		t.Fatalf("expected open after 3 consecutive failures, got %s", st)
	}

	calls := 0
	err := b.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatal("op must not run while the breaker is open")
	}
}

func TestBreaker_OpensAtFailureRate(t *testing.T) {
	b := New(Config{
		Name:        "test_rate",
		OpenFor:     time.Minute,
		FailureRate: 0.5,
		WindowSize:  4,
	}, nil)

	ctx := context.Background()
	b.Do(ctx, okOp)
	b.Do(ctx, okOp)
	b.Do(ctx, failingOp)
	if st := b.State(); st != Closed {
		t.Fatalf("1/3 failures must stay closed, got %s", st)
	}
	b.Do(ctx, failingOp)
	if st := b.State(); st != Open {
		t.Fatalf("expected open at 2/4 failure rate, got %s", st)
	}
}

func TestBreaker_HalfOpenProbeRecovers(t *testing.T) {
	b := New(Config{
		Name:              "test_probe",
		OpenFor:           10 * time.Millisecond,
		MaxConsecFailures: 1,
	}, nil)

	ctx := context.Background()
	b.Do(ctx, failingOp)
	if st := b.State(); st != Open {
		t.Fatalf("expected open, got %s", st)
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Do(ctx, okOp); err != nil {
		t.Fatalf("probe should run after OpenFor elapses: %v", err)
	}
	if st := b.State(); st != Closed {
		t.Fatalf("expected closed after successful probe, got %s", st)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := New(Config{
		Name:              "test_reprobe",
		OpenFor:           10 * time.Millisecond,
		MaxConsecFailures: 1,
	}, nil)

	ctx := context.Background()
	b.Do(ctx, failingOp)
	time.Sleep(20 * time.Millisecond)
	if err := b.Do(ctx, failingOp); !errors.Is(err, errBoom) {
		t.Fatalf("expected probe to run and fail, got %v", err)
	}
	if st := b.State(); st != Open {
		t.Fatalf("expected reopened after failed probe, got %s", st)
	}
	if err := b.Do(ctx, okOp); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen right after reopening, got %v", err)
	}
}
