package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"nutrition-enrichment/internal/constants"
	"nutrition-enrichment/internal/models"
	"nutrition-enrichment/pkg/config"
	errs "nutrition-enrichment/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
)

type DB struct {
	conn         *sql.DB
	stmts        map[string]*sql.Stmt
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// recordColumns is the canonical column list for food_records selects.
const recordColumns = `id, name, brand, source, serving_description,
        calories, protein, carbs, fat, fiber, sugar, sodium,
        calcium, iron, potassium,
        quality_score, enrichment_status, last_enrichment, enrichment_retries`

// candidatePredicate selects records needing enrichment: never enriched,
// pending, failed, or completed below the rescore threshold. Records with a
// live processing claim are excluded; lapsed claims re-enter the pool.
const candidatePredicate = `(
        enrichment_status IS NULL
        OR enrichment_status IN ('', 'pending', 'failed')
        OR (enrichment_status = 'completed' AND quality_score < ?)
        OR (enrichment_status = 'processing' AND (claim_expires_at IS NULL OR claim_expires_at < NOW()))
    )`

func New(databaseURL string) (*DB, error) {
	return open(databaseURL, 25, 10, 10*time.Minute, 5*time.Minute,
		constants.DBReadTimeoutDefault, constants.DBWriteTimeoutDefault)
}

// NewWithConfig creates a database connection with configured pool settings.
func NewWithConfig(databaseURL string, cfg *config.Config) (*DB, error) {
	rt := cfg.DBReadTimeout
	if rt == 0 {
		rt = constants.DBReadTimeoutDefault
	}
	wt := cfg.DBWriteTimeout
	if wt == 0 {
		wt = constants.DBWriteTimeoutDefault
	}
	return open(databaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns,
		time.Duration(cfg.DBConnMaxLifetime)*time.Minute,
		time.Duration(cfg.DBConnMaxIdleTime)*time.Minute, rt, wt)
}

func open(databaseURL string, maxOpen, maxIdle int, maxLifetime, maxIdleTime, readTO, writeTO time.Duration) (*DB, error) {
	conn, err := sql.Open("mysql", databaseURL)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(maxLifetime)
	conn.SetConnMaxIdleTime(maxIdleTime)

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{
		conn:         conn,
		stmts:        make(map[string]*sql.Stmt),
		readTimeout:  readTO,
		writeTimeout: writeTO,
	}

	if err := db.prepareStatements(); err != nil {
		return nil, errs.NewDB("database.open", "failed to prepare statements", err)
	}

	return db, nil
}

// prepareStatements prepares frequently used SQL statements.
func (db *DB) prepareStatements() error {
	statements := map[string]string{
		"claimRecord": `UPDATE food_records
            SET enrichment_status = 'processing', enrichment_claim = ?, claim_expires_at = ?
            WHERE id = ?
              AND (enrichment_status IS NULL
                   OR enrichment_status <> 'processing'
                   OR claim_expires_at IS NULL
                   OR claim_expires_at < NOW())`,
		"setStatus": `UPDATE food_records
            SET enrichment_status = ?, enrichment_retries = ?, last_enrichment = ?,
                enrichment_claim = NULL, claim_expires_at = NULL
            WHERE id = ?`,
		"saveEnriched": `UPDATE food_records
            SET calories = ?, protein = ?, carbs = ?, fat = ?,
                fiber = ?, sugar = ?, sodium = ?,
                calcium = ?, iron = ?, potassium = ?,
                quality_score = ?, enrichment_status = ?, last_enrichment = ?,
                enrichment_retries = 0,
                enrichment_claim = NULL, claim_expires_at = NULL
            WHERE id = ?`,
		"insertHistory": `INSERT INTO enrichment_history
            (food_id, score, status, issues, confidence, response_excerpt, processed_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
	}

	for name, query := range statements {
		stmt, err := db.conn.Prepare(query)
		if err != nil {
			return errs.NewDB("database.prepareStatements", fmt.Sprintf("failed to prepare statement %s", name), err)
		}
		db.stmts[name] = stmt
	}

	return nil
}

// Conn exposes the raw connection for transactions and health checks.
func (db *DB) Conn() *sql.DB { return db.conn }

// Close closes the database connection and prepared statements.
func (db *DB) Close() error {
	for _, stmt := range db.stmts {
		stmt.Close()
	}
	return db.conn.Close()
}

func (db *DB) withReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.readTimeout)
}

func (db *DB) withWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.writeTimeout)
}

// GetEnrichmentCandidatesCtx returns up to limit records needing enrichment.
// Ordering: never-enriched records first, then ascending quality score with
// nulls first, so the worst records are always picked before better ones.
func (db *DB) GetEnrichmentCandidatesCtx(ctx context.Context, limit, rescoreThreshold int) ([]models.FoodRecord, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + recordColumns + `
        FROM food_records
        WHERE ` + candidatePredicate + `
        ORDER BY
            CASE WHEN enrichment_status IS NULL OR enrichment_status = '' THEN 0 ELSE 1 END,
            quality_score IS NOT NULL,
            quality_score ASC,
            id ASC
        LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, rescoreThreshold, limit)
	if err != nil {
		return nil, errs.NewDB("database.GetEnrichmentCandidatesCtx", "failed to query candidates", err)
	}
	defer rows.Close()

	var records []models.FoodRecord
	for rows.Next() {
		r, err := scanRecordRow(rows)
		if err != nil {
			return nil, errs.NewDB("database.GetEnrichmentCandidatesCtx", "failed to scan record row", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.GetEnrichmentCandidatesCtx", "row iteration error", err)
	}
	return records, nil
}

// CountEnrichmentCandidatesCtx counts records still matching the candidate
// predicate, for the batch result's remaining field.
func (db *DB) CountEnrichmentCandidatesCtx(ctx context.Context, rescoreThreshold int) (int, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT COUNT(*) FROM food_records WHERE ` + candidatePredicate
	var n int
	if err := db.conn.QueryRowContext(ctx, query, rescoreThreshold).Scan(&n); err != nil {
		return 0, errs.NewDB("database.CountEnrichmentCandidatesCtx", "failed to count candidates", err)
	}
	return n, nil
}

// GetFoodRecordByIDCtx fetches a single record.
func (db *DB) GetFoodRecordByIDCtx(ctx context.Context, id int64) (*models.FoodRecord, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT ` + recordColumns + ` FROM food_records WHERE id = ?`
	rows, err := db.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, errs.NewDB("database.GetFoodRecordByIDCtx", "failed to query record", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errs.NewDB("database.GetFoodRecordByIDCtx", "row iteration error", err)
		}
		return nil, errs.NewDB("database.GetFoodRecordByIDCtx", fmt.Sprintf("record %d not found", id), sql.ErrNoRows)
	}
	r, err := scanRecordRow(rows)
	if err != nil {
		return nil, errs.NewDB("database.GetFoodRecordByIDCtx", "failed to scan record row", err)
	}
	return r, nil
}

// ClaimRecordCtx conditionally marks a record as processing. Returns false
// when another worker holds a live claim on it.
func (db *DB) ClaimRecordCtx(ctx context.Context, id int64, claim string, expires time.Time) (bool, error) {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	res, err := db.stmts["claimRecord"].ExecContext(ctx, claim, expires, id)
	if err != nil {
		return false, errs.NewDB("database.ClaimRecordCtx", "failed to claim record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.NewDB("database.ClaimRecordCtx", "rows affected unavailable", err)
	}
	return n > 0, nil
}

// SetEnrichmentStatusCtx transitions a record out of processing and clears
// its claim. StatusUnset is stored as NULL so the record rejoins the
// never-enriched priority tier only via quality_score ordering, not name.
func (db *DB) SetEnrichmentStatusCtx(ctx context.Context, id int64, status models.EnrichmentStatus, retries int, at time.Time) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	_, err := db.stmts["setStatus"].ExecContext(ctx, statusParam(status), retries, at, id)
	if err != nil {
		return errs.NewDB("database.SetEnrichmentStatusCtx", "failed to update status", err)
	}
	return nil
}

// SaveEnrichedRecordCtx persists final nutrients, score and terminal status.
func (db *DB) SaveEnrichedRecordCtx(ctx context.Context, rec *models.EnrichedRecord) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	_, err := db.stmts["saveEnriched"].ExecContext(ctx, enrichedArgs(rec)...)
	if err != nil {
		return errs.NewDB("database.SaveEnrichedRecordCtx", "failed to save enriched record", err)
	}
	return nil
}

// SaveEnrichedRecordTx is the transactional variant used by the unit of work.
func (db *DB) SaveEnrichedRecordTx(ctx context.Context, tx *sql.Tx, rec *models.EnrichedRecord) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	_, err := tx.StmtContext(ctx, db.stmts["saveEnriched"]).ExecContext(ctx, enrichedArgs(rec)...)
	if err != nil {
		return errs.NewDB("database.SaveEnrichedRecordTx", "failed to save enriched record", err)
	}
	return nil
}

// SaveEnrichmentHistoryCtx appends one audit row for a processing attempt.
func (db *DB) SaveEnrichmentHistoryCtx(ctx context.Context, h *models.EnrichmentHistory) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	args, err := historyArgs(h)
	if err != nil {
		return err
	}
	if _, err := db.stmts["insertHistory"].ExecContext(ctx, args...); err != nil {
		return errs.NewDB("database.SaveEnrichmentHistoryCtx", "failed to insert history", err)
	}
	return nil
}

// SaveEnrichmentHistoryTx is the transactional variant used by the unit of work.
func (db *DB) SaveEnrichmentHistoryTx(ctx context.Context, tx *sql.Tx, h *models.EnrichmentHistory) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	args, err := historyArgs(h)
	if err != nil {
		return err
	}
	if _, err := tx.StmtContext(ctx, db.stmts["insertHistory"]).ExecContext(ctx, args...); err != nil {
		return errs.NewDB("database.SaveEnrichmentHistoryTx", "failed to insert history", err)
	}
	return nil
}

// GetEnrichmentHistoryCtx lists recent attempts for one record, newest first.
func (db *DB) GetEnrichmentHistoryCtx(ctx context.Context, foodID int64, limit int) ([]models.EnrichmentHistory, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT id, food_id, score, status, issues, confidence, response_excerpt, processed_at
        FROM enrichment_history WHERE food_id = ? ORDER BY processed_at DESC LIMIT ?`
	rows, err := db.conn.QueryContext(ctx, query, foodID, limit)
	if err != nil {
		return nil, errs.NewDB("database.GetEnrichmentHistoryCtx", "failed to query history", err)
	}
	defer rows.Close()

	var out []models.EnrichmentHistory
	for rows.Next() {
		var h models.EnrichmentHistory
		var issuesJSON sql.NullString
		if err := rows.Scan(&h.ID, &h.FoodID, &h.Score, &h.Status, &issuesJSON, &h.Confidence, &h.ResponseExcerpt, &h.ProcessedAt); err != nil {
			return nil, errs.NewDB("database.GetEnrichmentHistoryCtx", "failed to scan history row", err)
		}
		if issuesJSON.Valid && issuesJSON.String != "" {
			if err := json.Unmarshal([]byte(issuesJSON.String), &h.Issues); err != nil {
				return nil, errs.NewDB("database.GetEnrichmentHistoryCtx", "malformed issues payload", err)
			}
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.GetEnrichmentHistoryCtx", "row iteration error", err)
	}
	return out, nil
}

func scanRecordRow(rows *sql.Rows) (*models.FoodRecord, error) {
	var r models.FoodRecord
	var status sql.NullString
	err := rows.Scan(
		&r.ID, &r.Name, &r.Brand, &r.Source, &r.ServingDescription,
		&r.Nutrients.Calories, &r.Nutrients.Protein, &r.Nutrients.Carbs, &r.Nutrients.Fat,
		&r.Nutrients.Fiber, &r.Nutrients.Sugar, &r.Nutrients.Sodium,
		&r.Nutrients.Calcium, &r.Nutrients.Iron, &r.Nutrients.Potassium,
		&r.QualityScore, &status, &r.LastEnrichment, &r.EnrichmentRetries,
	)
	if err != nil {
		return nil, err
	}
	if status.Valid {
		r.EnrichmentStatus = models.EnrichmentStatus(status.String)
	}
	return &r, nil
}

// statusParam maps StatusUnset to NULL in the store.
func statusParam(s models.EnrichmentStatus) any {
	if s == models.StatusUnset {
		return nil
	}
	return string(s)
}

func enrichedArgs(rec *models.EnrichedRecord) []any {
	n := rec.Nutrients
	return []any{
		n.Calories, n.Protein, n.Carbs, n.Fat,
		n.Fiber, n.Sugar, n.Sodium,
		n.Calcium, n.Iron, n.Potassium,
		rec.QualityScore, string(rec.Status), rec.LastEnrichment,
		rec.ID,
	}
}

func historyArgs(h *models.EnrichmentHistory) ([]any, error) {
	var issuesJSON any
	if len(h.Issues) > 0 {
		b, err := json.Marshal(h.Issues)
		if err != nil {
			return nil, errs.NewDB("database.historyArgs", "failed to encode issues", err)
		}
		issuesJSON = string(b)
	}
	return []any{h.FoodID, h.Score, h.Status, issuesJSON, h.Confidence, h.ResponseExcerpt, h.ProcessedAt}, nil
}
