package domain

import "context"

// UnitOfWork coordinates the final persistence of one record (nutrient
// fields, quality score, status, and the history row) within a single
// database transaction.
//
// Typical usage:
//
//	uow, err := factory.Begin(ctx)
//	if err != nil { ... }
//	defer uow.Rollback()
//	if err := uow.SaveEnrichedRecordCtx(ctx, rec); err != nil { ... }
//	if err := uow.SaveEnrichmentHistoryCtx(ctx, h); err != nil { ... }
//	if err := uow.Commit(); err != nil { ... }
//
// NOTE: Keep the transaction as short as possible.
type UnitOfWork interface {
	Commit() error
	Rollback() error

	EnrichmentRepository
}

// UnitOfWorkFactory starts new UnitOfWork instances. A returned UnitOfWork
// is already begun.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
