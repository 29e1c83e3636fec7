package repository

import (
	"context"
	"database/sql"
	"fmt"

	"nutrition-enrichment/internal/domain"
	"nutrition-enrichment/internal/models"
	"nutrition-enrichment/pkg/database"
)

// SQLUnitOfWorkFactory starts SQL-backed UnitOfWork transactions.
type SQLUnitOfWorkFactory struct {
	db *database.DB
}

func NewSQLUnitOfWorkFactory(db *database.DB) *SQLUnitOfWorkFactory {
	return &SQLUnitOfWorkFactory{db: db}
}

// Ensure interface conformance
var _ domain.UnitOfWorkFactory = (*SQLUnitOfWorkFactory)(nil)

func (f *SQLUnitOfWorkFactory) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	tx, err := f.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("uow: begin tx: %w", err)
	}
	return &SQLUnitOfWork{db: f.db, tx: tx}, nil
}

// SQLUnitOfWork coordinates enrichment writes using a single *sql.Tx, so the
// record update and its history row land together or not at all.
type SQLUnitOfWork struct {
	db *database.DB
	tx *sql.Tx
	// simple guard to avoid double commit/rollback
	closed bool
}

var _ domain.UnitOfWork = (*SQLUnitOfWork)(nil)

func (u *SQLUnitOfWork) Commit() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if u.tx == nil {
		return nil
	}
	return u.tx.Commit()
}

func (u *SQLUnitOfWork) Rollback() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if u.tx == nil {
		return nil
	}
	return u.tx.Rollback()
}

// EnrichmentRepository methods (writes via tx)
func (u *SQLUnitOfWork) SaveEnrichedRecordCtx(ctx context.Context, rec *models.EnrichedRecord) error {
	if u.tx == nil {
		return fmt.Errorf("uow: no active transaction for SaveEnrichedRecordCtx")
	}
	return u.db.SaveEnrichedRecordTx(ctx, u.tx, rec)
}

func (u *SQLUnitOfWork) SaveEnrichmentHistoryCtx(ctx context.Context, h *models.EnrichmentHistory) error {
	if u.tx == nil {
		return fmt.Errorf("uow: no active transaction for SaveEnrichmentHistoryCtx")
	}
	return u.db.SaveEnrichmentHistoryTx(ctx, u.tx, h)
}

// Reads can be served outside the tx as needed
func (u *SQLUnitOfWork) GetEnrichmentHistoryCtx(ctx context.Context, foodID int64, limit int) ([]models.EnrichmentHistory, error) {
	return u.db.GetEnrichmentHistoryCtx(ctx, foodID, limit)
}
