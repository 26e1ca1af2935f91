package labreport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("lab report not found")

type Repository interface {
	Create(ctx context.Context, lr *LabReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabReport, error)
	List(ctx context.Context, limit, offset int) ([]*LabReport, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
