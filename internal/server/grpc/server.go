// Package grpcserver exposes the kyc.v1.Verification gRPC handlers.
package grpcserver

import (
	"bytes"
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/kyc-verifier/internal/api"
	"github.com/and161185/kyc-verifier/internal/convert"
	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/model"
	"github.com/and161185/kyc-verifier/internal/service"
)

// Server wires the verification service into gRPC handlers.
type Server struct {
	api.UnimplementedVerificationServer
	svc service.VerificationService
}

var _ api.VerificationServer = (*Server)(nil)

// New constructs a gRPC server with the injected service.
func New(svc service.VerificationService) *Server {
	return &Server{svc: svc}
}

// Upload ingests a spreadsheet and returns the per-row report.
func (s *Server) Upload(ctx context.Context, req *api.UploadRequest) (*api.UploadResponse, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	t, err := model.ParseVerificationType(req.Type)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Filename == "" {
		return nil, status.Error(codes.InvalidArgument, "empty filename")
	}
	rep, err := s.svc.Upload(ctx, owner, t, req.Filename, bytes.NewReader(req.Content), int64(len(req.Content)))
	if err != nil {
		return nil, toStatus("upload", err)
	}
	return convert.ToWireUploadReport(rep), nil
}

// VerifySingle verifies one record synchronously.
func (s *Server) VerifySingle(ctx context.Context, req *api.VerifySingleRequest) (*api.Record, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	t, fields, err := convert.FromWireSingle(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rec, err := s.svc.VerifySingle(ctx, owner, t, fields)
	if err != nil {
		return nil, toStatus("verify", err)
	}
	out := convert.ToWireRecord(*rec)
	return &out, nil
}

// ListRecords pages through the caller's records.
func (s *Server) ListRecords(ctx context.Context, req *api.ListRecordsRequest) (*api.ListRecordsResponse, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	recs, total, err := s.svc.ListRecords(ctx, owner, convert.FromWirePage(req.Page))
	if err != nil {
		return nil, toStatus("list records", err)
	}
	return convert.ToWireRecords(recs, total), nil
}

// ListBatchRecords pages through one batch, optionally filtered by status.
func (s *Server) ListBatchRecords(ctx context.Context, req *api.ListBatchRecordsRequest) (*api.ListRecordsResponse, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	batchID, err := convert.ParseID("batch_id", req.BatchID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	recs, total, err := s.svc.ListBatchRecords(ctx, owner, batchID, req.Status, convert.FromWirePage(req.Page))
	if err != nil {
		return nil, toStatus("list batch records", err)
	}
	return convert.ToWireRecords(recs, total), nil
}

// ListBatches pages through the caller's uploads.
func (s *Server) ListBatches(ctx context.Context, req *api.ListBatchesRequest) (*api.ListBatchesResponse, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	bs, total, err := s.svc.ListBatches(ctx, owner, convert.FromWirePage(req.Page))
	if err != nil {
		return nil, toStatus("list batches", err)
	}
	return convert.ToWireBatches(bs, total), nil
}

// BatchStats returns a batch with live per-state counts.
func (s *Server) BatchStats(ctx context.Context, req *api.BatchRequest) (*api.BatchStatsResponse, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	batchID, err := convert.ParseID("batch_id", req.BatchID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	b, counts, err := s.svc.BatchStats(ctx, owner, batchID)
	if err != nil {
		return nil, toStatus("batch stats", err)
	}
	return &api.BatchStatsResponse{Batch: convert.ToWireBatch(*b), Counts: convert.ToWireCounts(counts)}, nil
}

// RetryFailed requeues the failed records of a batch.
func (s *Server) RetryFailed(ctx context.Context, req *api.BatchRequest) (*api.RetryFailedResponse, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	batchID, err := convert.ParseID("batch_id", req.BatchID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	n, err := s.svc.RetryFailed(ctx, owner, batchID)
	if err != nil {
		return nil, toStatus("retry failed", err)
	}
	return &api.RetryFailedResponse{Requeued: n}, nil
}

// DeleteBatch removes a batch and its records.
func (s *Server) DeleteBatch(ctx context.Context, req *api.BatchRequest) (*api.DeleteBatchResponse, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	batchID, err := convert.ParseID("batch_id", req.BatchID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.svc.DeleteBatch(ctx, owner, batchID); err != nil {
		return nil, toStatus("delete batch", err)
	}
	return &api.DeleteBatchResponse{}, nil
}

// GetStats returns the caller's aggregate, possibly cached.
func (s *Server) GetStats(ctx context.Context, _ *api.StatsRequest) (*api.StatsResponse, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	st, err := s.svc.GetStats(ctx, owner)
	if err != nil {
		return nil, toStatus("get stats", err)
	}
	return convert.ToWireStats(st), nil
}

// RefreshStats recomputes the caller's aggregate.
func (s *Server) RefreshStats(ctx context.Context, _ *api.StatsRequest) (*api.StatsResponse, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	st, err := s.svc.RefreshStats(ctx, owner)
	if err != nil {
		return nil, toStatus("refresh stats", err)
	}
	return convert.ToWireStats(st), nil
}

// Usage returns the caller's provider call counters.
func (s *Server) Usage(ctx context.Context, _ *api.UsageRequest) (*api.UsageResponse, error) {
	owner, ok := OwnerIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	us, err := s.svc.Usage(ctx, owner)
	if err != nil {
		return nil, toStatus("usage", err)
	}
	return convert.ToWireUsage(us), nil
}

// toStatus maps domain errors to gRPC codes.
func toStatus(op string, err error) error {
	var fe *errs.FileError
	switch {
	case errors.As(err, &fe):
		return status.Error(codes.InvalidArgument, fe.Error())
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, errs.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "no auth")
	case errors.Is(err, errs.ErrQueueFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}
