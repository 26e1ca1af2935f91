package labreport

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// sqliteTime keeps created_at sortable as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteSchema = `CREATE TABLE IF NOT EXISTS lab_report (
	id             TEXT PRIMARY KEY,
	source_name    TEXT NOT NULL,
	summary        TEXT NOT NULL,
	results        TEXT NOT NULL,
	line_count     INTEGER NOT NULL,
	exact_count    INTEGER NOT NULL,
	fuzzy_count    INTEGER NOT NULL,
	config_version INTEGER NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lab_report_created_at ON lab_report(created_at)`

// SQLiteRepo stores lab reports in a single local SQLite file. It backs the
// CLI and a server started without DATABASE_URL.
type SQLiteRepo struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. Pass MemoryDSN
// for a throwaway database.
func OpenSQLite(path string) (*SQLiteRepo, error) {
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == MemoryDSN {
		// every new connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteRepo{db: db}, nil
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// Ping satisfies the health check.
func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepo) Create(ctx context.Context, lr *LabReport) error {
	lr.ID = uuid.New()
	if lr.CreatedAt.IsZero() {
		lr.CreatedAt = time.Now().UTC()
	}
	results, err := json.Marshal(lr.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lab_report (id, source_name, summary, results, line_count,
			exact_count, fuzzy_count, config_version, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		lr.ID.String(), lr.SourceName, lr.Summary, string(results), lr.LineCount,
		lr.ExactCount, lr.FuzzyCount, lr.ConfigVersion, lr.CreatedAt.UTC().Format(sqliteTime))
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteReport(row rowScanner) (*LabReport, error) {
	var lr LabReport
	var id, results, created string
	err := row.Scan(&id, &lr.SourceName, &lr.Summary, &results, &lr.LineCount,
		&lr.ExactCount, &lr.FuzzyCount, &lr.ConfigVersion, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lr.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	if lr.CreatedAt, err = time.Parse(sqliteTime, created); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(results), &lr.Results); err != nil {
		return nil, fmt.Errorf("decode results of %s: %w", id, err)
	}
	return &lr, nil
}

func (r *SQLiteRepo) GetByID(ctx context.Context, id uuid.UUID) (*LabReport, error) {
	return scanSQLiteReport(r.db.QueryRowContext(ctx, `SELECT `+reportCols+` FROM lab_report WHERE id = ?`, id.String()))
}

func (r *SQLiteRepo) List(ctx context.Context, limit, offset int) ([]*LabReport, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lab_report`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+reportCols+` FROM lab_report ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*LabReport
	for rows.Next() {
		lr, err := scanSQLiteReport(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lr)
	}
	return items, total, rows.Err()
}

func (r *SQLiteRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lab_report WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
