package grpcserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/kyc-verifier/internal/api"
	"github.com/and161185/kyc-verifier/internal/errs"
	"github.com/and161185/kyc-verifier/internal/model"
	"github.com/and161185/kyc-verifier/internal/service"
)

type fakeService struct {
	service.VerificationService

	uploadOwner   uuid.UUID
	uploadContent []byte
	uploadErr     error
	singleFields  map[model.Field]string
	singleErr     error
	batchStatus   string
	batchPage     model.Page
	retryErr      error
	deleteErr     error
}

func (f *fakeService) Upload(_ context.Context, owner uuid.UUID, _ model.VerificationType, _ string, r io.Reader, _ int64) (model.UploadReport, error) {
	if f.uploadErr != nil {
		return model.UploadReport{}, f.uploadErr
	}
	f.uploadOwner = owner
	f.uploadContent, _ = io.ReadAll(r)
	id := uuid.Must(uuid.NewV4())
	return model.UploadReport{
		BatchID:    id,
		TotalRows:  2,
		Accepted:   []model.AcceptedRow{{Row: 2, RecordID: uuid.Must(uuid.NewV4()), TaxID: "ABCDE1234F"}},
		Rejections: []model.RowRejection{{Row: 3, Field: model.FieldTaxID, Reason: "invalid"}},
	}, nil
}

func (f *fakeService) VerifySingle(_ context.Context, owner uuid.UUID, t model.VerificationType, fields map[model.Field]string) (*model.Record, error) {
	if f.singleErr != nil {
		return nil, f.singleErr
	}
	f.singleFields = fields
	return &model.Record{ID: uuid.Must(uuid.NewV4()), OwnerID: owner, Type: t, TaxID: fields[model.FieldTaxID], State: model.StateVerified}, nil
}

func (f *fakeService) ListBatchRecords(_ context.Context, _, _ uuid.UUID, st string, page model.Page) ([]model.Record, int, error) {
	f.batchStatus, f.batchPage = st, page
	return []model.Record{{ID: uuid.Must(uuid.NewV4()), State: model.StateFailed}}, 11, nil
}

func (f *fakeService) RetryFailed(context.Context, uuid.UUID, uuid.UUID) (int, error) {
	return 3, f.retryErr
}

func (f *fakeService) DeleteBatch(context.Context, uuid.UUID, uuid.UUID) error { return f.deleteErr }

func (f *fakeService) GetStats(_ context.Context, owner uuid.UUID) (*model.UserStats, error) {
	return &model.UserStats{OwnerID: owner, Totals: model.StateCounts{Verified: 2}}, nil
}

const bufSize = 1 << 20

func startBufGRPC(t *testing.T, svc service.VerificationService, tokens service.TokenService) *api.VerificationClient {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(zaptest.NewLogger(t)),
		AuthUnary(tokens),
	))
	api.RegisterVerificationServer(gs, New(svc))
	go func() { _ = gs.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return api.NewVerificationClient(cc)
}

func authed(t *testing.T, tokens service.TokenService, owner uuid.UUID) context.Context {
	t.Helper()
	tok, _, err := tokens.Issue(owner)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
}

func TestServer_UploadAndList(t *testing.T) {
	t.Parallel()
	tokens := service.NewTokenService([]byte("test-secret"), time.Minute)
	svc := &fakeService{}
	cl := startBufGRPC(t, svc, tokens)
	owner := uuid.Must(uuid.NewV4())
	ctx := authed(t, tokens, owner)

	rep, err := cl.Upload(ctx, &api.UploadRequest{Type: "pan_kyc", Filename: "a.csv", Content: []byte("pan\n")})
	require.NoError(t, err)
	require.Equal(t, 2, rep.TotalRows)
	require.Len(t, rep.Accepted, 1)
	require.Equal(t, "tax_id", rep.Rejections[0].Field)
	require.Equal(t, owner, svc.uploadOwner)
	require.Equal(t, "pan\n", string(svc.uploadContent))

	list, err := cl.ListBatchRecords(ctx, &api.ListBatchRecordsRequest{
		BatchID: uuid.Must(uuid.NewV4()).String(),
		Status:  "failed",
		Page:    api.Page{Page: 2, Limit: 5},
	})
	require.NoError(t, err)
	require.Equal(t, 11, list.Total)
	require.Equal(t, "failed", list.Records[0].Status)
	require.Equal(t, "failed", svc.batchStatus)
	require.Equal(t, model.Page{Page: 2, Limit: 5}, svc.batchPage)

	st, err := cl.GetStats(ctx, &api.StatsRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, st.Totals.Total)
	require.Contains(t, st.ByType, "aadhaar_pan")
}

func TestServer_VerifySingle(t *testing.T) {
	t.Parallel()
	tokens := service.NewTokenService([]byte("test-secret"), time.Minute)
	svc := &fakeService{}
	cl := startBufGRPC(t, svc, tokens)
	ctx := authed(t, tokens, uuid.Must(uuid.NewV4()))

	rec, err := cl.VerifySingle(ctx, &api.VerifySingleRequest{Type: "pan_kyc", TaxID: "ABCDE1234F", Name: "R", DateOfBirth: "1990-01-15"})
	require.NoError(t, err)
	require.Equal(t, "verified", rec.Status)
	require.Equal(t, "R", svc.singleFields[model.FieldName])

	_, err = cl.VerifySingle(ctx, &api.VerifySingleRequest{Type: "passport"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_Unauthenticated(t *testing.T) {
	t.Parallel()
	tokens := service.NewTokenService([]byte("test-secret"), time.Minute)
	cl := startBufGRPC(t, &fakeService{}, tokens)

	_, err := cl.GetStats(context.Background(), &api.StatsRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	other := service.NewTokenService([]byte("other"), time.Minute)
	_, err = cl.GetStats(authed(t, other, uuid.Must(uuid.NewV4())), &api.StatsRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_ErrorMapping(t *testing.T) {
	t.Parallel()
	tokens := service.NewTokenService([]byte("test-secret"), time.Minute)
	batch := uuid.Must(uuid.NewV4()).String()

	cases := []struct {
		name string
		svc  *fakeService
		call func(context.Context, *api.VerificationClient) error
		want codes.Code
	}{
		{
			name: "file rejected",
			svc:  &fakeService{uploadErr: &errs.FileError{Reason: "cannot map required columns", Missing: []string{"tax_id"}}},
			call: func(ctx context.Context, cl *api.VerificationClient) error {
				_, err := cl.Upload(ctx, &api.UploadRequest{Type: "pan_kyc", Filename: "a.csv"})
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "duplicate single",
			svc:  &fakeService{singleErr: fmt.Errorf("combination already exists: %w", errs.ErrAlreadyExists)},
			call: func(ctx context.Context, cl *api.VerificationClient) error {
				_, err := cl.VerifySingle(ctx, &api.VerifySingleRequest{Type: "pan_kyc"})
				return err
			},
			want: codes.AlreadyExists,
		},
		{
			name: "missing batch",
			svc:  &fakeService{deleteErr: errs.ErrNotFound},
			call: func(ctx context.Context, cl *api.VerificationClient) error {
				_, err := cl.DeleteBatch(ctx, &api.BatchRequest{BatchID: batch})
				return err
			},
			want: codes.NotFound,
		},
		{
			name: "queue full",
			svc:  &fakeService{retryErr: fmt.Errorf("queue retried records: %w", errs.ErrQueueFull)},
			call: func(ctx context.Context, cl *api.VerificationClient) error {
				_, err := cl.RetryFailed(ctx, &api.BatchRequest{BatchID: batch})
				return err
			},
			want: codes.ResourceExhausted,
		},
		{
			name: "bad batch id",
			svc:  &fakeService{},
			call: func(ctx context.Context, cl *api.VerificationClient) error {
				_, err := cl.RetryFailed(ctx, &api.BatchRequest{BatchID: "nope"})
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "store failure",
			svc:  &fakeService{deleteErr: fmt.Errorf("delete batch: connection reset")},
			call: func(ctx context.Context, cl *api.VerificationClient) error {
				_, err := cl.DeleteBatch(ctx, &api.BatchRequest{BatchID: batch})
				return err
			},
			want: codes.Internal,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cl := startBufGRPC(t, tc.svc, tokens)
			err := tc.call(authed(t, tokens, uuid.Must(uuid.NewV4())), cl)
			require.Equal(t, tc.want, status.Code(err), "err: %v", err)
		})
	}
}

func TestToStatus_FileErrorMessage(t *testing.T) {
	t.Parallel()
	err := toStatus("upload", &errs.FileError{Reason: "cannot map required columns", Missing: []string{"tax_id"}, Detected: []string{"Name"}})
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Contains(t, st.Message(), "tax_id")
	require.Contains(t, st.Message(), "Name")
}
