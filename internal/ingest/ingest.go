// Package ingest maps, validates and deduplicates uploaded rows and persists
// the survivors as pending records.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/kyc-verifier/internal/columnmap"
	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/metrics"
	"github.com/and161185/kyc-verifier/internal/model"
	"github.com/and161185/kyc-verifier/internal/sheet"
	"github.com/and161185/kyc-verifier/internal/validate"
)

// Store is the record-store surface ingestion needs.
type Store interface {
	ExistingKeys(ctx context.Context, ownerID uuid.UUID, t model.VerificationType, keys []string) (map[string]struct{}, error)
	Ingest(ctx context.Context, batch *model.UploadBatch, recs []model.Record) error
}

// Engine is the dedup and ingest stage.
type Engine struct {
	store   Store
	newID   func() (uuid.UUID, error)
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New constructs an engine. m may be nil.
func New(store Store, m *metrics.Metrics, log *zap.Logger) *Engine {
	return &Engine{store: store, newID: uuid.NewV4, metrics: m, log: log}
}

// Upload describes an accepted file.
type Upload struct {
	OwnerID  uuid.UUID
	Type     model.VerificationType
	Filename string
	Size     int64
}

// IngestTable runs the column mapping, row validation and dedup stages over
// one parsed file. Missing required columns reject the whole file before any
// row is looked at. Rows are numbered from 2, the header being row 1.
func (e *Engine) IngestTable(ctx context.Context, up Upload, tbl sheet.Table) (model.UploadReport, []model.Record, error) {
	profile, ok := columnmap.ProfileFor(up.Type)
	if !ok {
		return model.UploadReport{}, nil, fmt.Errorf("verification type %q: %w", up.Type, errs.ErrInvalidArgument)
	}

	mapping := columnmap.Resolve(tbl.Headers, profile.Table)
	if missing := mapping.Missing(profile.Required); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		return model.UploadReport{}, nil, &errs.FileError{
			Reason:   "cannot map required columns",
			Missing:  names,
			Detected: tbl.DetectedHeaders(),
		}
	}

	report := model.UploadReport{TotalRows: len(tbl.Rows)}
	drafts := make([]model.Record, 0, len(tbl.Rows))
	for i, row := range tbl.Rows {
		rec, rej := validate.Row(profile, validate.RowNumber(i), mapping.Apply(row))
		if rej != nil {
			report.Rejections = append(report.Rejections, *rej)
			continue
		}
		drafts = append(drafts, rec)
	}
	e.metrics.IngestRow(string(up.Type), "rejected", len(report.Rejections))

	batchID, err := e.newID()
	if err != nil {
		return model.UploadReport{}, nil, err
	}
	batch := &model.UploadBatch{
		ID:               batchID,
		OwnerID:          up.OwnerID,
		Type:             up.Type,
		OriginalFilename: up.Filename,
		SizeBytes:        up.Size,
		TotalRecords:     len(tbl.Rows),
		Status:           model.BatchUploaded,
	}

	res, err := e.Ingest(ctx, up.OwnerID, batch, drafts)
	if err != nil {
		return model.UploadReport{}, nil, err
	}

	report.BatchID = batchID
	report.Rejections = mergeByRow(report.Rejections, res.Duplicates)
	for _, r := range res.Accepted {
		report.Accepted = append(report.Accepted, model.AcceptedRow{Row: r.RowIndex, RecordID: r.ID, TaxID: r.TaxID})
	}

	e.log.Info("upload ingested",
		zap.Stringer("owner_id", up.OwnerID),
		zap.Stringer("batch_id", batchID),
		zap.String("type", string(up.Type)),
		zap.Int("total_rows", report.TotalRows),
		zap.Int("accepted", len(report.Accepted)),
		zap.Int("rejected", len(report.Rejections)))
	return report, res.Accepted, nil
}

// Result splits validated drafts into persisted records and duplicate rejections.
type Result struct {
	Accepted   []model.Record
	Duplicates []model.RowRejection
}

// Ingest deduplicates drafts against each other and against stored records in a
// single existence query, then persists the new ones (and batch, when non-nil)
// in one all-or-nothing write. A lost race on the natural key surfaces as
// errs.ErrAlreadyExists for the whole call.
func (e *Engine) Ingest(ctx context.Context, ownerID uuid.UUID, batch *model.UploadBatch, drafts []model.Record) (Result, error) {
	var res Result
	if len(drafts) == 0 && batch == nil {
		return res, nil
	}

	keys := make([]string, 0, len(drafts))
	seen := make(map[string]struct{}, len(drafts))
	var t model.VerificationType
	for _, d := range drafts {
		t = d.Type
		k := d.NaturalKey()
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	existing := map[string]struct{}{}
	if len(keys) > 0 {
		var err error
		if existing, err = e.store.ExistingKeys(ctx, ownerID, t, keys); err != nil {
			return Result{}, fmt.Errorf("existence check: %w", err)
		}
	}

	taken := make(map[string]struct{}, len(drafts))
	for _, d := range drafts {
		k := d.NaturalKey()
		_, stored := existing[k]
		_, inFile := taken[k]
		if stored || inFile {
			res.Duplicates = append(res.Duplicates, model.RowRejection{
				Row:        d.RowIndex,
				NationalID: d.NationalID,
				TaxID:      d.TaxID,
				Reason:     validate.ReasonDuplicate,
			})
			continue
		}
		taken[k] = struct{}{}

		id, err := e.newID()
		if err != nil {
			return Result{}, err
		}
		d.ID = id
		d.OwnerID = ownerID
		d.State = model.StatePending
		if batch != nil {
			d.BatchID = uuid.NullUUID{UUID: batch.ID, Valid: true}
		}
		res.Accepted = append(res.Accepted, d)
	}

	if batch != nil {
		batch.PendingCount = len(res.Accepted)
		if len(res.Accepted) == 0 {
			batch.Status = model.BatchCompleted
		}
	}

	if batch == nil && len(res.Accepted) == 0 {
		return res, nil
	}
	if err := e.store.Ingest(ctx, batch, res.Accepted); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) && batch != nil {
			return Result{}, &errs.FileError{Reason: "records were submitted concurrently, nothing was ingested; retry the upload"}
		}
		return Result{}, fmt.Errorf("persist records: %w", err)
	}

	vt := string(t)
	if batch != nil {
		vt = string(batch.Type)
	}
	e.metrics.IngestRow(vt, "accepted", len(res.Accepted))
	e.metrics.IngestRow(vt, "duplicate", len(res.Duplicates))
	return res, nil
}

// mergeByRow merges two row-ordered rejection lists.
func mergeByRow(a, b []model.RowRejection) []model.RowRejection {
	out := make([]model.RowRejection, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Row <= b[j].Row {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
