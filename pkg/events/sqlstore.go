package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nutrition-enrichment/internal/constants"
	"nutrition-enrichment/pkg/database"
)

// SQLEventStore stores events in a SQL table with ordered IDs.
// Table schema:
// CREATE TABLE IF NOT EXISTS enrichment_events (
//   id BIGINT AUTO_INCREMENT PRIMARY KEY,
//   food_id BIGINT NOT NULL,
//   type VARCHAR(64) NOT NULL,
//   at DATETIME(6) NOT NULL,
//   data JSON NOT NULL,
//   KEY idx_food_id (food_id),
//   KEY idx_food_time (food_id, id)
// );
// NOTE: JSON may be emulated as LONGTEXT on older MySQL variants.

type SQLEventStore struct {
	db *database.DB
}

var _ EventStore = (*SQLEventStore)(nil)

func NewSQLEventStore(db *database.DB) *SQLEventStore {
	s := &SQLEventStore{db: db}
	if err := s.ensureTable(); err != nil {
		// Best effort; don't crash app start
		fmt.Printf("[events] ensure table error: %v\n", err)
	}
	return s
}

func (s *SQLEventStore) ensureTable() error {
	qry := `CREATE TABLE IF NOT EXISTS enrichment_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		food_id BIGINT NOT NULL,
		type VARCHAR(64) NOT NULL,
		at DATETIME(6) NOT NULL,
		data JSON NOT NULL,
		KEY idx_food_id (food_id),
		KEY idx_food_time (food_id, id)
	)`
	_, err := s.db.Conn().Exec(qry)
	return err
}

func (s *SQLEventStore) Append(ctx context.Context, ev ...Event) error {
	if len(ev) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, constants.EventsSQLTimeoutDefault)
	defer cancel()

	tx, err := s.db.Conn().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO enrichment_events (food_id, type, at, data) VALUES (?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range ev {
		b, err := e.MarshalData()
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		at := e.Timestamp()
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, e.FoodID(), e.Type(), at, string(b)); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLEventStore) ListByRecord(ctx context.Context, foodID int64) ([]StoredEvent, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT id, food_id, type, at, data FROM enrichment_events WHERE food_id = ? ORDER BY id ASC`, foodID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var dataStr string
		if err := rows.Scan(&se.Seq, &se.FoodID, &se.Type, &se.Ts, &dataStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		se.Payload = []byte(dataStr)
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
