package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/and161185/kyc-verifier/internal/api"
	"github.com/and161185/kyc-verifier/internal/service"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("KYC_TOKEN", "")
	return filepath.Join(dir, "kycctl")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	require.Equal(t, base, cfgDir())
	require.Equal(t, filepath.Join(base, "token.json"), tokenPath())
}

func Test_token_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	_, err := loadToken()
	require.Error(t, err)

	require.NoError(t, saveToken("tok", time.Now().Add(time.Minute)))
	tok, err := loadToken()
	require.NoError(t, err)
	require.Equal(t, "tok", tok)

	require.NoError(t, saveToken("tok2", time.Now().Add(-time.Minute)))
	_, err = loadToken()
	require.ErrorContains(t, err, "expired")

	t.Setenv("KYC_TOKEN", "from-env")
	tok, err = loadToken()
	require.NoError(t, err)
	require.Equal(t, "from-env", tok)
}

func Test_issueToken(t *testing.T) {
	_ = withTmpConfig(t)
	owner := uuid.Must(uuid.NewV4())

	var out bytes.Buffer
	require.NoError(t, issueToken([]string{"-owner", owner.String(), "-jwt-key", "k", "-ttl", "10m"}, &out))
	require.Contains(t, out.String(), owner.String())

	tok, err := loadToken()
	require.NoError(t, err)
	got, err := service.NewTokenService([]byte("k"), time.Minute).Owner(tok)
	require.NoError(t, err)
	require.Equal(t, owner, got)

	t.Setenv("KYC_JWT_KEY", "")
	require.Error(t, issueToken([]string{"-owner", owner.String()}, &out))
	require.Error(t, issueToken([]string{"-owner", "nope", "-jwt-key", "k"}, &out))
}

type fakeClient struct {
	client

	upload     *api.UploadRequest
	batchReq   *api.ListBatchRecordsRequest
	refreshed  bool
	retryBatch string
	deleteErr  error
}

func (f *fakeClient) Upload(_ context.Context, in *api.UploadRequest, _ ...grpc.CallOption) (*api.UploadResponse, error) {
	f.upload = in
	return &api.UploadResponse{
		BatchID:    "b-1",
		TotalRows:  3,
		Accepted:   []api.AcceptedRow{{Row: 2, RecordID: "r-1"}},
		Rejections: []api.Rejection{{Row: 3, Field: "tax_id", Reason: "invalid tax ID"}, {Row: 4, Reason: "combination already exists"}},
	}, nil
}

func (f *fakeClient) ListBatchRecords(_ context.Context, in *api.ListBatchRecordsRequest, _ ...grpc.CallOption) (*api.ListRecordsResponse, error) {
	f.batchReq = in
	return &api.ListRecordsResponse{Records: []api.Record{{ID: "r-1", Type: "pan_kyc", TaxID: "ABCDE1234F", Status: "failed", FailureReason: "SERVER_ERROR: boom"}}, Total: 1}, nil
}

func (f *fakeClient) RetryFailed(_ context.Context, in *api.BatchRequest, _ ...grpc.CallOption) (*api.RetryFailedResponse, error) {
	f.retryBatch = in.BatchID
	return &api.RetryFailedResponse{Requeued: 4}, nil
}

func (f *fakeClient) DeleteBatch(context.Context, *api.BatchRequest, ...grpc.CallOption) (*api.DeleteBatchResponse, error) {
	return &api.DeleteBatchResponse{}, f.deleteErr
}

func (f *fakeClient) GetStats(context.Context, *api.StatsRequest, ...grpc.CallOption) (*api.StatsResponse, error) {
	return &api.StatsResponse{ByType: map[string]api.Counts{"pan_kyc": {Verified: 1, Total: 1}}, Totals: api.Counts{Verified: 1, Total: 1}}, nil
}

func (f *fakeClient) RefreshStats(ctx context.Context, in *api.StatsRequest, opts ...grpc.CallOption) (*api.StatsResponse, error) {
	f.refreshed = true
	return f.GetStats(ctx, in, opts...)
}

func Test_run_Upload(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "kyc.csv")
	require.NoError(t, os.WriteFile(file, []byte("pan_number,name,dob\n"), 0o600))

	cl := &fakeClient{}
	var buf bytes.Buffer
	err := run(context.Background(), cl, "upload", []string{"-type", "aadhaar_pan", "-file", file}, &printer{w: &buf})
	require.NoError(t, err)
	require.Equal(t, "kyc.csv", cl.upload.Filename)
	require.Equal(t, "aadhaar_pan", cl.upload.Type)
	require.Equal(t, "pan_number,name,dob\n", string(cl.upload.Content))

	out := buf.String()
	require.Contains(t, out, "batch b-1: 3 rows, 1 accepted, 2 rejected")
	require.Contains(t, out, "invalid tax ID")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[3], "4 "))

	require.Error(t, run(context.Background(), cl, "upload", nil, &printer{w: &buf}))
}

func Test_run_BatchRecordsJSON(t *testing.T) {
	cl := &fakeClient{}
	var buf bytes.Buffer
	err := run(context.Background(), cl, "batch-records", []string{"-batch", "b-1", "-status", "failed", "-limit", "5"}, &printer{w: &buf, json: true})
	require.NoError(t, err)
	require.Equal(t, "failed", cl.batchReq.Status)
	require.Equal(t, api.Page{Page: 1, Limit: 5}, cl.batchReq.Page)

	var resp api.ListRecordsResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	require.Equal(t, "SERVER_ERROR: boom", resp.Records[0].FailureReason)

	err = run(context.Background(), cl, "batch-records", nil, &printer{w: &buf})
	require.ErrorContains(t, err, "need -batch")
}

func Test_run_RetryDeleteStats(t *testing.T) {
	cl := &fakeClient{}
	var buf bytes.Buffer
	p := &printer{w: &buf}
	ctx := context.Background()

	require.NoError(t, run(ctx, cl, "retry", []string{"-batch", "b-9"}, p))
	require.Equal(t, "b-9", cl.retryBatch)
	require.Contains(t, buf.String(), "requeued 4 failed records")

	cl.deleteErr = errors.New("rpc failed")
	require.ErrorContains(t, run(ctx, cl, "rm-batch", []string{"-batch", "b-9"}, p), "rpc failed")

	buf.Reset()
	require.NoError(t, run(ctx, cl, "stats", []string{"-refresh"}, p))
	require.True(t, cl.refreshed)
	require.Contains(t, buf.String(), "pan_kyc")
	require.Contains(t, buf.String(), "total")

	require.ErrorIs(t, run(ctx, cl, "frobnicate", nil, p), errUnknownCommand)
}
