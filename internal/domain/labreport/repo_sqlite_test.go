package labreport

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestSQLite(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(MemoryDSN)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepo_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := openTestSQLite(t)

	lr := sampleReport()
	if err := repo.Create(ctx, lr); err != nil {
		t.Fatalf("create: %v", err)
	}
	if lr.ID == uuid.Nil {
		t.Fatal("expected an id to be assigned")
	}

	got, err := repo.GetByID(ctx, lr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SourceName != lr.SourceName || got.Summary != lr.Summary || got.ConfigVersion != 3 {
		t.Errorf("unexpected report %+v", got)
	}
	if !got.CreatedAt.Equal(lr.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, lr.CreatedAt)
	}
	if len(got.Results) != 2 || got.Results[1] != lr.Results[1] {
		t.Errorf("results did not round-trip: %+v", got.Results)
	}

	if err := repo.Delete(ctx, lr.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, lr.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, lr.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestSQLiteRepo_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := openTestSQLite(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		lr := sampleReport()
		lr.SourceName = name
		lr.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := repo.Create(ctx, lr); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	items, total, err := repo.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(items) != 2 || items[0].SourceName != "c.txt" || items[1].SourceName != "b.txt" {
		t.Errorf("unexpected page %v", names(items))
	}

	items, _, err = repo.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(items) != 1 || items[0].SourceName != "a.txt" {
		t.Errorf("unexpected second page %v", names(items))
	}
}

func TestOpenSQLite_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reports.db")
	repo, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func names(items []*LabReport) []string {
	out := make([]string, len(items))
	for i, lr := range items {
		out[i] = lr.SourceName
	}
	return out
}
