package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_signal_bot/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			price REAL NOT NULL,
			executed BOOLEAN NOT NULL,
			error TEXT,
			indicators TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// AuditRepository implementation

func (s *SQLiteStore) SaveSignal(ctx context.Context, rec *domain.SignalAuditRecord) error {
	indicators, err := json.Marshal(rec.Indicators)
	if err != nil {
		return err
	}
	query := `INSERT INTO signals (ts, symbol, side, price, executed, error, indicators)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		rec.Timestamp, rec.Symbol, rec.Side, rec.Price, rec.Executed, rec.Error, string(indicators))
	return err
}

func (s *SQLiteStore) ListRecent(ctx context.Context, limit int, since time.Time) ([]*domain.SignalAuditRecord, error) {
	query := `SELECT ts, symbol, side, price, executed, error, indicators
			  FROM signals WHERE ts >= ? ORDER BY ts DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.SignalAuditRecord
	for rows.Next() {
		var rec domain.SignalAuditRecord
		var errStr sql.NullString
		var indicators sql.NullString
		if err := rows.Scan(&rec.Timestamp, &rec.Symbol, &rec.Side, &rec.Price, &rec.Executed, &errStr, &indicators); err != nil {
			return nil, err
		}
		rec.Error = errStr.String
		if indicators.Valid && indicators.String != "" {
			_ = json.Unmarshal([]byte(indicators.String), &rec.Indicators)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM signals WHERE ts < ?`, cutoff)
	return err
}
