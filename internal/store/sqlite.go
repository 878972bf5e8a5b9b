package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/atmx/fill-ledger/internal/model"
)

// SQLiteStore implements FillStore in a single local database file.
// Decimals are stored as TEXT so nothing is rounded through REAL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	// One writer keeps append order equal to seq order.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS fill_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			instrument_id TEXT NOT NULL DEFAULT '',
			ts TEXT,
			raw_timestamp TEXT NOT NULL DEFAULT '',
			direction TEXT NOT NULL DEFAULT '',
			raw_direction TEXT NOT NULL DEFAULT '',
			shares TEXT NOT NULL DEFAULT '0',
			price TEXT NOT NULL DEFAULT '0',
			usd_value TEXT NOT NULL DEFAULT '0',
			usd_derived BOOLEAN NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT '',
			raw_status TEXT NOT NULL DEFAULT '',
			fallbacks TEXT NOT NULL DEFAULT '',
			raw TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fill_log_instrument ON fill_log(instrument_id);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("store: init sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, log model.FillLog) (string, error) {
	batchID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	fillStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fill_log (batch_id, kind, instrument_id, ts, raw_timestamp, direction, raw_direction,
		                       shares, price, usd_value, usd_derived, status, raw_status, fallbacks)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("store: prepare insert: %w", err)
	}
	defer fillStmt.Close()

	for _, e := range ordered(log) {
		if e.rec == nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fill_log (batch_id, kind, raw, reason) VALUES (?, ?, ?, ?)`,
				batchID, kindDefect, e.defect.Raw, e.defect.Reason); err != nil {
				return "", fmt.Errorf("store: insert defect: %w", err)
			}
			continue
		}
		r := e.rec
		var ts sql.NullString
		if r.Timestamp != nil {
			ts = sql.NullString{String: r.Timestamp.UTC().Format(time.RFC3339Nano), Valid: true}
		}
		if _, err := fillStmt.ExecContext(ctx,
			batchID, kindFill, r.InstrumentID, ts, r.RawTimestamp,
			string(r.Direction), r.RawDirection,
			r.Shares.String(), r.Price.String(), r.USDValue.String(), r.USDValueDerived,
			string(r.Status), r.RawStatus, joinFallbacks(r.Fallbacks)); err != nil {
			return "", fmt.Errorf("store: insert fill: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit batch %s: %w", batchID, err)
	}
	return batchID, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (model.FillLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, instrument_id, ts, raw_timestamp, direction, raw_direction,
		        shares, price, usd_value, usd_derived, status, raw_status, fallbacks, raw, reason
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
			ts                           sql.NullString
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
		if ts.Valid {
			if t, err := time.Parse(time.RFC3339Nano, ts.String); err == nil {
				r.Timestamp = &t
			}
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
