package processor

import (
	"context"
	"database/sql"
	"errors"
	"net"

	"github.com/sashabaranov/go-openai"

	"nutrition-enrichment/pkg/circuit"
	errs "nutrition-enrichment/pkg/errors"
)

// FailureClass decides what happens to a record after a failed attempt.
// Transient failures return the record to the pool; permanent ones park it
// as failed until a human or a data refresh intervenes.
type FailureClass int

const (
	ClassTransient FailureClass = iota
	ClassPermanent
)

func (c FailureClass) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "transient"
}

// Classify maps an error from the enrichment pipeline to a failure class.
// Unknown errors default to transient so a bug in classification can never
// permanently park records; the retry bound still stops infinite loops.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassTransient
	}

	// Domain failures: the response itself was unusable.
	if errs.Is(err, errs.ErrBiz) || errs.Is(err, errs.ErrValidation) {
		return ClassPermanent
	}

	// A record that is gone will still be gone on the next batch.
	if errors.Is(err, sql.ErrNoRows) {
		return ClassPermanent
	}

	// Open breaker, cancellations and deadlines resolve on their own.
	if errors.Is(err, circuit.ErrOpen) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return ClassTransient
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return ClassTransient
		case apiErr.HTTPStatusCode >= 500:
			return ClassTransient
		case apiErr.HTTPStatusCode >= 400:
			// auth errors, invalid requests: retrying won't help
			return ClassPermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassTransient
}
