package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/model"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS fill_log (
	seq            BIGSERIAL PRIMARY KEY,
	batch_id       UUID        NOT NULL,
	kind           TEXT        NOT NULL,
	instrument_id  TEXT        NOT NULL DEFAULT '',
	ts             TIMESTAMPTZ,
	raw_timestamp  TEXT        NOT NULL DEFAULT '',
	direction      TEXT        NOT NULL DEFAULT '',
	raw_direction  TEXT        NOT NULL DEFAULT '',
	shares         NUMERIC     NOT NULL DEFAULT 0,
	price          NUMERIC     NOT NULL DEFAULT 0,
	usd_value      NUMERIC     NOT NULL DEFAULT 0,
	usd_derived    BOOLEAN     NOT NULL DEFAULT FALSE,
	status         TEXT        NOT NULL DEFAULT '',
	raw_status     TEXT        NOT NULL DEFAULT '',
	fallbacks      TEXT        NOT NULL DEFAULT '',
	raw            TEXT        NOT NULL DEFAULT '',
	reason         TEXT        NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_fill_log_instrument ON fill_log (instrument_id);
`

// PostgresStore implements FillStore using PostgreSQL. Quantities and
// money are stored as NUMERIC for exact decimal precision; the BIGSERIAL
// seq column preserves append order.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the fill_log table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("store: migrate postgres: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, log model.FillLog) (string, error) {
	batchID := uuid.New()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, e := range ordered(log) {
		if e.rec != nil {
			r := e.rec
			batch.Queue(
				`INSERT INTO fill_log (batch_id, kind, instrument_id, ts, raw_timestamp, direction, raw_direction,
				                       shares, price, usd_value, usd_derived, status, raw_status, fallbacks)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11, $12, $13, $14)`,
				batchID, kindFill, r.InstrumentID, r.Timestamp, r.RawTimestamp,
				string(r.Direction), r.RawDirection,
				r.Shares.String(), r.Price.String(), r.USDValue.String(), r.USDValueDerived,
				string(r.Status), r.RawStatus, joinFallbacks(r.Fallbacks),
			)
			continue
		}
		batch.Queue(
			`INSERT INTO fill_log (batch_id, kind, raw, reason) VALUES ($1, $2, $3, $4)`,
			batchID, kindDefect, e.defect.Raw, e.defect.Reason,
		)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return "", fmt.Errorf("store: insert batch %s: %w", batchID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("store: commit batch %s: %w", batchID, err)
	}
	return batchID.String(), nil
}

func (s *PostgresStore) Load(ctx context.Context) (model.FillLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, instrument_id, ts, raw_timestamp, direction, raw_direction,
		        shares::TEXT, price::TEXT, usd_value::TEXT, usd_derived,
		        status, raw_status, fallbacks, raw, reason
		 FROM fill_log ORDER BY seq`)
	if err != nil {
		return model.FillLog{}, fmt.Errorf("store: load fills: %w", err)
	}
	defer rows.Close()

	var entries []entry
	for rows.Next() {
		var (
			kind, fallbacks, raw, reason string
			shares, price, usd           string
			dir, status                  string
			ts                           *time.Time
			r                            model.FillRecord
		)
		if err := rows.Scan(&kind, &r.InstrumentID, &ts, &r.RawTimestamp, &dir, &r.RawDirection,
			&shares, &price, &usd, &r.USDValueDerived,
			&status, &r.RawStatus, &fallbacks, &raw, &reason); err != nil {
			return model.FillLog{}, fmt.Errorf("store: scan fill: %w", err)
		}
		if kind == kindDefect {
			entries = append(entries, entry{defect: &model.ParseDefect{Raw: raw, Reason: reason}})
			continue
		}
		if ts != nil {
			utc := ts.UTC()
			r.Timestamp = &utc
		}
		r.Direction = model.Direction(dir)
		r.Status = model.OrderStatus(status)
		r.Shares, _ = decimal.NewFromString(shares)
		r.Price, _ = decimal.NewFromString(price)
		r.USDValue, _ = decimal.NewFromString(usd)
		r.Fallbacks = splitFallbacks(fallbacks)
		entries = append(entries, entry{rec: &r})
	}
	if err := rows.Err(); err != nil {
		return model.FillLog{}, fmt.Errorf("store: load fills: %w", err)
	}
	return assemble(entries), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
