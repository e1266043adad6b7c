package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/model"
)

// BatchRepo implements BatchRepository using PostgreSQL.
type BatchRepo struct{ db *DB }

// NewBatchRepo constructs a batch repository.
func NewBatchRepo(db *DB) *BatchRepo { return &BatchRepo{db: db} }

const batchCols = `id, owner_id, verification_type, original_filename, size_bytes, total_records,
verified_count, failed_count, pending_count, status, created_at, updated_at`

func scanBatch(row pgx.Row) (*model.UploadBatch, error) {
	var (
		b      model.UploadBatch
		vt, st string
	)
	err := row.Scan(&b.ID, &b.OwnerID, &vt, &b.OriginalFilename, &b.SizeBytes, &b.TotalRecords,
		&b.VerifiedCount, &b.FailedCount, &b.PendingCount, &st, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Type = model.VerificationType(vt)
	b.Status = model.BatchStatus(st)
	return &b, nil
}

// Get loads one batch of the owner.
func (r *BatchRepo) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.UploadBatch, error) {
	q := `SELECT ` + batchCols + ` FROM upload_batches WHERE owner_id=$1 AND id=$2`
	return scanBatch(r.db.Pool.QueryRow(ctx, q, ownerID, id))
}

// List pages through the owner's batches, newest first.
func (r *BatchRepo) List(ctx context.Context, ownerID uuid.UUID, page model.Page) ([]model.UploadBatch, int, error) {
	var total int
	const cnt = `SELECT count(*) FROM upload_batches WHERE owner_id=$1`
	if err := r.db.Pool.QueryRow(ctx, cnt, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + batchCols + ` FROM upload_batches WHERE owner_id=$1
ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.UploadBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}

// Counts groups the batch's records by state.
func (r *BatchRepo) Counts(ctx context.Context, id uuid.UUID) (model.StateCounts, error) {
	const q = `SELECT status, count(*) FROM verification_records WHERE batch_id=$1 GROUP BY status`
	rows, err := r.db.Pool.Query(ctx, q, id)
	if err != nil {
		return model.StateCounts{}, err
	}
	return collectCounts(rows)
}

// SetStatus overwrites the batch status.
func (r *BatchRepo) SetStatus(ctx context.Context, id uuid.UUID, status model.BatchStatus) error {
	const q = `UPDATE upload_batches SET status=$2, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RefreshCounts recomputes the per-state counts in one statement.
func (r *BatchRepo) RefreshCounts(ctx context.Context, id uuid.UUID) (*model.UploadBatch, error) {
	const q = `
WITH c AS (
    SELECT
        count(*) FILTER (WHERE status='verified')                   AS verified,
        count(*) FILTER (WHERE status='failed')                     AS failed,
        count(*) FILTER (WHERE status IN ('pending','processing'))  AS pending
    FROM verification_records WHERE batch_id=$1
)
UPDATE upload_batches b
SET verified_count=c.verified, failed_count=c.failed, pending_count=c.pending,
    status = CASE WHEN c.pending = 0 THEN 'completed' ELSE b.status END,
    updated_at=now()
FROM c
WHERE b.id=$1
RETURNING b.id, b.owner_id, b.verification_type, b.original_filename, b.size_bytes, b.total_records,
    b.verified_count, b.failed_count, b.pending_count, b.status, b.created_at, b.updated_at`
	return scanBatch(r.db.Pool.QueryRow(ctx, q, id))
}

// Delete removes the batch; records go with it through the foreign key.
func (r *BatchRepo) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	const q = `DELETE FROM upload_batches WHERE owner_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, ownerID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
