package labreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ conn queryable }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{conn: pool}
}

const reportCols = `id, source_name, summary, results, line_count,
	exact_count, fuzzy_count, config_version, created_at`

func scanReport(row pgx.Row) (*LabReport, error) {
	var lr LabReport
	var results []byte
	err := row.Scan(&lr.ID, &lr.SourceName, &lr.Summary, &results, &lr.LineCount,
		&lr.ExactCount, &lr.FuzzyCount, &lr.ConfigVersion, &lr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(results, &lr.Results); err != nil {
		return nil, fmt.Errorf("decode results of %s: %w", lr.ID, err)
	}
	return &lr, nil
}

func (r *repoPG) Create(ctx context.Context, lr *LabReport) error {
	lr.ID = uuid.New()
	if lr.CreatedAt.IsZero() {
		lr.CreatedAt = time.Now().UTC()
	}
	results, err := json.Marshal(lr.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = r.conn.Exec(ctx, `
		INSERT INTO lab_report (id, source_name, summary, results, line_count,
			exact_count, fuzzy_count, config_version, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		lr.ID, lr.SourceName, lr.Summary, results, lr.LineCount,
		lr.ExactCount, lr.FuzzyCount, lr.ConfigVersion, lr.CreatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabReport, error) {
	return scanReport(r.conn.QueryRow(ctx, `SELECT `+reportCols+` FROM lab_report WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*LabReport, int, error) {
	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM lab_report`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn.Query(ctx, `SELECT `+reportCols+` FROM lab_report ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*LabReport
	for rows.Next() {
		lr, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lr)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM lab_report WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
