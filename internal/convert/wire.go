// Package convert maps domain values to kyc.v1 wire messages and back.
package convert

import (
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/kyc-verifier/internal/api"
	"github.com/and161185/kyc-verifier/internal/model"
)

// --- requests (client -> server) ---

// ParseID parses a wire UUID; name labels the error.
func ParseID(name, s string) (uuid.UUID, error) {
	id, err := uuid.FromString(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", name, s)
	}
	return id, nil
}

// FromWirePage converts a wire page selector.
func FromWirePage(p api.Page) model.Page {
	return model.Page{Page: p.Page, Limit: p.Limit}
}

// FromWireSingle converts a single-verification request into validator input.
func FromWireSingle(in *api.VerifySingleRequest) (model.VerificationType, map[model.Field]string, error) {
	t, err := model.ParseVerificationType(in.Type)
	if err != nil {
		return "", nil, err
	}
	return t, map[model.Field]string{
		model.FieldNationalID:  in.NationalID,
		model.FieldTaxID:       in.TaxID,
		model.FieldName:        in.Name,
		model.FieldGuardian:    in.GuardianName,
		model.FieldDateOfBirth: in.DateOfBirth,
	}, nil
}

// --- responses (server -> client) ---

// ToWireUploadReport converts the result of an upload.
func ToWireUploadReport(r model.UploadReport) *api.UploadResponse {
	out := &api.UploadResponse{
		BatchID:    r.BatchID.String(),
		TotalRows:  r.TotalRows,
		Accepted:   make([]api.AcceptedRow, 0, len(r.Accepted)),
		Rejections: ToWireRejections(r.Rejections),
	}
	for _, a := range r.Accepted {
		out.Accepted = append(out.Accepted, api.AcceptedRow{Row: a.Row, RecordID: a.RecordID.String(), TaxID: a.TaxID})
	}
	return out
}

// ToWireRejections converts row rejections, keeping their order.
func ToWireRejections(rs []model.RowRejection) []api.Rejection {
	out := make([]api.Rejection, 0, len(rs))
	for _, r := range rs {
		out = append(out, api.Rejection{
			Row:        r.Row,
			NationalID: r.NationalID,
			TaxID:      r.TaxID,
			Field:      string(r.Field),
			Reason:     r.Reason,
		})
	}
	return out
}

// ToWireRecord converts one record. Dates of birth travel as YYYY-MM-DD.
func ToWireRecord(r model.Record) api.Record {
	out := api.Record{
		ID:            r.ID.String(),
		Type:          string(r.Type),
		NationalID:    r.NationalID,
		TaxID:         r.TaxID,
		Name:          r.DisplayName,
		GuardianName:  r.GuardianName,
		DateOfBirth:   r.DateOfBirth.Format("2006-01-02"),
		Row:           r.RowIndex,
		Status:        string(r.State),
		Result:        r.Payload,
		FailureReason: r.FailureReason,
		RetryCount:    r.RetryCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.BatchID.Valid {
		out.BatchID = r.BatchID.UUID.String()
	}
	return out
}

// ToWireRecords converts a page of records.
func ToWireRecords(rs []model.Record, total int) *api.ListRecordsResponse {
	out := &api.ListRecordsResponse{Records: make([]api.Record, 0, len(rs)), Total: total}
	for _, r := range rs {
		out.Records = append(out.Records, ToWireRecord(r))
	}
	return out
}

// ToWireBatch converts one batch.
func ToWireBatch(b model.UploadBatch) api.Batch {
	return api.Batch{
		ID:            b.ID.String(),
		Type:          string(b.Type),
		Filename:      b.OriginalFilename,
		SizeBytes:     b.SizeBytes,
		TotalRecords:  b.TotalRecords,
		VerifiedCount: b.VerifiedCount,
		FailedCount:   b.FailedCount,
		PendingCount:  b.PendingCount,
		Status:        string(b.Status),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

// ToWireBatches converts a page of batches.
func ToWireBatches(bs []model.UploadBatch, total int) *api.ListBatchesResponse {
	out := &api.ListBatchesResponse{Batches: make([]api.Batch, 0, len(bs)), Total: total}
	for _, b := range bs {
		out.Batches = append(out.Batches, ToWireBatch(b))
	}
	return out
}

// ToWireCounts converts state counts and fills the total.
func ToWireCounts(c model.StateCounts) api.Counts {
	return api.Counts{
		Pending:    c.Pending,
		Processing: c.Processing,
		Verified:   c.Verified,
		Failed:     c.Failed,
		Total:      c.Total(),
	}
}

// ToWireStats converts an owner's aggregate. Every known type is present.
func ToWireStats(s *model.UserStats) *api.StatsResponse {
	out := &api.StatsResponse{
		ByType:     make(map[string]api.Counts, len(model.VerificationTypes)),
		Totals:     ToWireCounts(s.Totals),
		ComputedAt: s.ComputedAt,
	}
	for _, t := range model.VerificationTypes {
		out.ByType[string(t)] = ToWireCounts(s.ByType[t])
	}
	return out
}

// ToWireUsage converts provider usage counters.
func ToWireUsage(us []model.APIUsage) *api.UsageResponse {
	out := &api.UsageResponse{Usage: make([]api.Usage, 0, len(us))}
	for _, u := range us {
		out.Usage = append(out.Usage, api.Usage{Provider: u.Provider, Calls: u.Calls, UpdatedAt: u.UpdatedAt})
	}
	return out
}
