package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kyc-verifier/internal/model"
)

// BatchRepository stores upload batches.
type BatchRepository interface {
	// Get loads one batch of the owner.
	Get(ctx context.Context, ownerID, id uuid.UUID) (*model.UploadBatch, error)
	// List pages through the owner's batches, newest first.
	List(ctx context.Context, ownerID uuid.UUID, page model.Page) ([]model.UploadBatch, int, error)
	// Counts groups the batch's records by state.
	Counts(ctx context.Context, id uuid.UUID) (model.StateCounts, error)
	// SetStatus overwrites the batch status.
	SetStatus(ctx context.Context, id uuid.UUID, status model.BatchStatus) error
	// RefreshCounts recomputes per-state counts from records and completes
	// the batch once nothing is pending or processing.
	RefreshCounts(ctx context.Context, id uuid.UUID) (*model.UploadBatch, error)
	// Delete removes the batch and, by cascade, its records.
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}
