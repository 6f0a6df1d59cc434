package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id            TEXT PRIMARY KEY,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	total_count   INTEGER NOT NULL,
	success_count INTEGER NOT NULL DEFAULT 0,
	failed_count  INTEGER NOT NULL DEFAULT 0,
	download_dir  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS invoices (
	id            TEXT PRIMARY KEY,
	batch_id      TEXT NOT NULL REFERENCES batches(id),
	code          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	error         TEXT,
	file_path     TEXT,
	downloaded_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_invoices_batch_id ON invoices(batch_id);
CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateBatch(ctx context.Context, downloadDir string, total int) (*Batch, error) {
	b := &Batch{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
		TotalCount:  total,
		DownloadDir: downloadDir,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, created_at, total_count, download_dir) VALUES (?, ?, ?, ?)`,
		b.ID, b.CreatedAt, b.TotalCount, b.DownloadDir,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert batch")
	}
	return b, nil
}

func (s *SQLiteStore) FinishBatch(ctx context.Context, batchID string, success, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batches SET success_count = ?, failed_count = ? WHERE id = ?`,
		success, failed, batchID,
	)
	return eris.Wrap(err, "sqlite: finish batch")
}

func (s *SQLiteStore) RecordInvoice(ctx context.Context, inv Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invoices (id, batch_id, code, status, error, file_path, downloaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.BatchID, inv.Code, string(inv.Status),
		nullString(inv.Error), nullString(inv.FilePath), inv.DownloadedAt,
	)
	return eris.Wrap(err, "sqlite: record invoice")
}

func (s *SQLiteStore) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, total_count, success_count, failed_count, download_dir
		 FROM batches ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close() //nolint:errcheck

	var out []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.CreatedAt, &b.TotalCount, &b.SuccessCount, &b.FailedCount, &b.DownloadDir); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate batches")
}

func (s *SQLiteStore) ListInvoices(ctx context.Context, batchID string) ([]Invoice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, code, status, error, file_path, downloaded_at
		 FROM invoices WHERE batch_id = ? ORDER BY rowid`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list invoices")
	}
	defer rows.Close() //nolint:errcheck

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		var errMsg, filePath sql.NullString
		var downloadedAt sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.BatchID, &inv.Code, &inv.Status, &errMsg, &filePath, &downloadedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan invoice")
		}
		inv.Error = errMsg.String
		inv.FilePath = filePath.String
		if downloadedAt.Valid {
			t := downloadedAt.Time
			inv.DownloadedAt = &t
		}
		out = append(out, inv)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate invoices")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
