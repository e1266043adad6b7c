// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"encoding/json"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kyc-verifier/internal/model"
)

// RecordRepository stores verification records. The natural-key uniqueness per
// owner and type is enforced by the store itself.
type RecordRepository interface {
	// ExistingKeys returns which of keys the owner already has for type t, in one query.
	ExistingKeys(ctx context.Context, ownerID uuid.UUID, t model.VerificationType, keys []string) (map[string]struct{}, error)

	// Ingest inserts batch (when non-nil) and all recs atomically.
	// A natural-key collision fails the whole call with errs.ErrAlreadyExists.
	Ingest(ctx context.Context, batch *model.UploadBatch, recs []model.Record) error

	// Get loads one record of the owner.
	Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Record, error)

	// MarkProcessing moves a pending record to processing; errs.ErrInvalidState otherwise.
	MarkProcessing(ctx context.Context, id uuid.UUID) error

	// Resolve moves a processing record to verified or failed.
	Resolve(ctx context.Context, id uuid.UUID, state model.State, payload json.RawMessage, reason string) error

	// RetryFailed moves every failed record of the batch back to pending and returns their ids in row order.
	RetryFailed(ctx context.Context, ownerID, batchID uuid.UUID) ([]uuid.UUID, error)

	// ListByOwner pages through all records of the owner, newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, page model.Page) ([]model.Record, int, error)

	// ListByBatch pages through a batch in row order; an empty state means all states.
	ListByBatch(ctx context.Context, ownerID, batchID uuid.UUID, state model.State, page model.Page) ([]model.Record, int, error)

	// CountByType groups the owner's records of type t by state.
	CountByType(ctx context.Context, ownerID uuid.UUID, t model.VerificationType) (model.StateCounts, error)

	// ListPending returns every pending record, oldest first.
	ListPending(ctx context.Context) ([]model.RecordRef, error)
}
