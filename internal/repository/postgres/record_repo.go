package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/model"
)

// RecordRepo implements RecordRepository using PostgreSQL.
type RecordRepo struct{ db *DB }

// NewRecordRepo constructs a record repository.
func NewRecordRepo(db *DB) *RecordRepo { return &RecordRepo{db: db} }

const recordCols = `id, owner_id, batch_id, verification_type, national_id, tax_id, display_name, guardian_name,
date_of_birth, row_index, status, payload, failure_reason, retry_count, created_at, updated_at`

var copyCols = []string{
	"id", "owner_id", "batch_id", "verification_type", "natural_key", "national_id", "tax_id",
	"display_name", "guardian_name", "date_of_birth", "row_index", "status",
}

func scanRecord(row pgx.Row) (*model.Record, error) {
	var (
		r      model.Record
		vt, st string
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.BatchID, &vt, &r.NationalID, &r.TaxID, &r.DisplayName, &r.GuardianName,
		&r.DateOfBirth, &r.RowIndex, &st, &r.Payload, &r.FailureReason, &r.RetryCount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Type = model.VerificationType(vt)
	r.State = model.State(st)
	return &r, nil
}

func collectRecords(rows pgx.Rows) ([]model.Record, error) {
	defer rows.Close()
	var out []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ExistingKeys returns the subset of keys already stored for the owner and type.
func (r *RecordRepo) ExistingKeys(
	ctx context.Context, ownerID uuid.UUID, t model.VerificationType, keys []string,
) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(keys) == 0 {
		return found, nil
	}
	const q = `
SELECT natural_key FROM verification_records
WHERE owner_id=$1 AND verification_type=$2 AND natural_key = ANY($3)`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, string(t), keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		found[k] = struct{}{}
	}
	return found, rows.Err()
}

// Ingest writes the batch row and bulk-copies the records in one transaction.
func (r *RecordRepo) Ingest(ctx context.Context, batch *model.UploadBatch, recs []model.Record) error {
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		if batch != nil {
			const ins = `
INSERT INTO upload_batches (id, owner_id, verification_type, original_filename, size_bytes, total_records, pending_count, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
			if _, err := tx.Exec(ctx, ins, batch.ID, batch.OwnerID, string(batch.Type), batch.OriginalFilename,
				batch.SizeBytes, batch.TotalRecords, batch.PendingCount, string(batch.Status)); err != nil {
				return fmt.Errorf("insert batch: %w", err)
			}
		}
		if len(recs) == 0 {
			return nil
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"verification_records"}, copyCols,
			pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
				rec := recs[i]
				return []any{
					rec.ID, rec.OwnerID, nullUUID(rec.BatchID), string(rec.Type), rec.NaturalKey(), rec.NationalID, rec.TaxID,
					rec.DisplayName, rec.GuardianName, rec.DateOfBirth, rec.RowIndex, string(rec.State),
				}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy records: %w", err)
		}
		if int(n) != len(recs) {
			return fmt.Errorf("copy records: wrote %d of %d", n, len(recs))
		}
		return nil
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("ingest: %w", errs.ErrAlreadyExists)
	}
	return err
}

// Get loads one record of the owner.
func (r *RecordRepo) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Record, error) {
	q := `SELECT ` + recordCols + ` FROM verification_records WHERE owner_id=$1 AND id=$2`
	rec, err := scanRecord(r.db.Pool.QueryRow(ctx, q, ownerID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return rec, err
}

// MarkProcessing moves a pending record to processing.
func (r *RecordRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE verification_records SET status='processing', updated_at=now()
WHERE id=$1 AND status='pending'`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrInvalidState
	}
	return nil
}

// Resolve stores the outcome of a processing record.
func (r *RecordRepo) Resolve(
	ctx context.Context, id uuid.UUID, state model.State, payload json.RawMessage, reason string,
) error {
	if state != model.StateVerified && state != model.StateFailed {
		return fmt.Errorf("resolve to %q: %w", state, errs.ErrInvalidState)
	}
	var p []byte
	if len(payload) > 0 {
		p = payload
	}
	const q = `
UPDATE verification_records SET status=$2, payload=$3, failure_reason=$4, updated_at=now()
WHERE id=$1 AND status='processing'`
	tag, err := r.db.Pool.Exec(ctx, q, id, string(state), p, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrInvalidState
	}
	return nil
}

// RetryFailed re-enters failed records of the batch into pending.
func (r *RecordRepo) RetryFailed(ctx context.Context, ownerID, batchID uuid.UUID) ([]uuid.UUID, error) {
	const q = `
WITH moved AS (
    UPDATE verification_records
    SET status='pending', retry_count=retry_count+1, failure_reason='', payload=NULL, updated_at=now()
    WHERE owner_id=$1 AND batch_id=$2 AND status='failed'
    RETURNING id, row_index
)
SELECT id FROM moved ORDER BY row_index`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByOwner pages through the owner's records, newest first.
func (r *RecordRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, page model.Page) ([]model.Record, int, error) {
	var total int
	const cnt = `SELECT count(*) FROM verification_records WHERE owner_id=$1`
	if err := r.db.Pool.QueryRow(ctx, cnt, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := `SELECT ` + recordCols + ` FROM verification_records WHERE owner_id=$1
ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	recs, err := collectRecords(rows)
	return recs, total, err
}

// ListByBatch pages through a batch in row order, optionally filtered by state.
func (r *RecordRepo) ListByBatch(
	ctx context.Context, ownerID, batchID uuid.UUID, state model.State, page model.Page,
) ([]model.Record, int, error) {
	var total int
	const cnt = `
SELECT count(*) FROM verification_records
WHERE owner_id=$1 AND batch_id=$2 AND ($3 = '' OR status = $3)`
	if err := r.db.Pool.QueryRow(ctx, cnt, ownerID, batchID, string(state)).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := `SELECT ` + recordCols + ` FROM verification_records
WHERE owner_id=$1 AND batch_id=$2 AND ($3 = '' OR status = $3)
ORDER BY row_index, id LIMIT $4 OFFSET $5`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, batchID, string(state), page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	recs, err := collectRecords(rows)
	return recs, total, err
}

// CountByType runs one grouped aggregation for the owner and type.
func (r *RecordRepo) CountByType(ctx context.Context, ownerID uuid.UUID, t model.VerificationType) (model.StateCounts, error) {
	const q = `
SELECT status, count(*) FROM verification_records
WHERE owner_id=$1 AND verification_type=$2
GROUP BY status`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, string(t))
	if err != nil {
		return model.StateCounts{}, err
	}
	return collectCounts(rows)
}

// ListPending returns every pending record, oldest first, in row order within a batch.
func (r *RecordRepo) ListPending(ctx context.Context) ([]model.RecordRef, error) {
	const q = `
SELECT id, owner_id, batch_id FROM verification_records
WHERE status='pending'
ORDER BY created_at, row_index`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RecordRef
	for rows.Next() {
		var ref model.RecordRef
		if err := rows.Scan(&ref.ID, &ref.OwnerID, &ref.BatchID); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// nullUUID maps an invalid NullUUID to SQL NULL.
func nullUUID(n uuid.NullUUID) any {
	if !n.Valid {
		return nil
	}
	return n.UUID
}

func collectCounts(rows pgx.Rows) (model.StateCounts, error) {
	defer rows.Close()
	var c model.StateCounts
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return model.StateCounts{}, err
		}
		c.Set(model.State(st), n)
	}
	return c, rows.Err()
}
