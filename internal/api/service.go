package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "kyc.v1.Verification"

const (
	Verification_Upload_FullMethodName           = "/kyc.v1.Verification/Upload"
	Verification_VerifySingle_FullMethodName     = "/kyc.v1.Verification/VerifySingle"
	Verification_ListRecords_FullMethodName      = "/kyc.v1.Verification/ListRecords"
	Verification_ListBatchRecords_FullMethodName = "/kyc.v1.Verification/ListBatchRecords"
	Verification_ListBatches_FullMethodName      = "/kyc.v1.Verification/ListBatches"
	Verification_BatchStats_FullMethodName       = "/kyc.v1.Verification/BatchStats"
	Verification_RetryFailed_FullMethodName      = "/kyc.v1.Verification/RetryFailed"
	Verification_DeleteBatch_FullMethodName      = "/kyc.v1.Verification/DeleteBatch"
	Verification_GetStats_FullMethodName         = "/kyc.v1.Verification/GetStats"
	Verification_RefreshStats_FullMethodName     = "/kyc.v1.Verification/RefreshStats"
	Verification_Usage_FullMethodName            = "/kyc.v1.Verification/Usage"
)

// VerificationServer is the server API of kyc.v1.Verification.
type VerificationServer interface {
	Upload(context.Context, *UploadRequest) (*UploadResponse, error)
	VerifySingle(context.Context, *VerifySingleRequest) (*Record, error)
	ListRecords(context.Context, *ListRecordsRequest) (*ListRecordsResponse, error)
	ListBatchRecords(context.Context, *ListBatchRecordsRequest) (*ListRecordsResponse, error)
	ListBatches(context.Context, *ListBatchesRequest) (*ListBatchesResponse, error)
	BatchStats(context.Context, *BatchRequest) (*BatchStatsResponse, error)
	RetryFailed(context.Context, *BatchRequest) (*RetryFailedResponse, error)
	DeleteBatch(context.Context, *BatchRequest) (*DeleteBatchResponse, error)
	GetStats(context.Context, *StatsRequest) (*StatsResponse, error)
	RefreshStats(context.Context, *StatsRequest) (*StatsResponse, error)
	Usage(context.Context, *UsageRequest) (*UsageResponse, error)
}

// UnimplementedVerificationServer answers Unimplemented for every method.
type UnimplementedVerificationServer struct{}

func (UnimplementedVerificationServer) Upload(context.Context, *UploadRequest) (*UploadResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Upload not implemented")
}
func (UnimplementedVerificationServer) VerifySingle(context.Context, *VerifySingleRequest) (*Record, error) {
	return nil, status.Error(codes.Unimplemented, "method VerifySingle not implemented")
}
func (UnimplementedVerificationServer) ListRecords(context.Context, *ListRecordsRequest) (*ListRecordsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListRecords not implemented")
}
func (UnimplementedVerificationServer) ListBatchRecords(context.Context, *ListBatchRecordsRequest) (*ListRecordsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListBatchRecords not implemented")
}
func (UnimplementedVerificationServer) ListBatches(context.Context, *ListBatchesRequest) (*ListBatchesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListBatches not implemented")
}
func (UnimplementedVerificationServer) BatchStats(context.Context, *BatchRequest) (*BatchStatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method BatchStats not implemented")
}
func (UnimplementedVerificationServer) RetryFailed(context.Context, *BatchRequest) (*RetryFailedResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RetryFailed not implemented")
}
func (UnimplementedVerificationServer) DeleteBatch(context.Context, *BatchRequest) (*DeleteBatchResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteBatch not implemented")
}
func (UnimplementedVerificationServer) GetStats(context.Context, *StatsRequest) (*StatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStats not implemented")
}
func (UnimplementedVerificationServer) RefreshStats(context.Context, *StatsRequest) (*StatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RefreshStats not implemented")
}
func (UnimplementedVerificationServer) Usage(context.Context, *UsageRequest) (*UsageResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Usage not implemented")
}

// RegisterVerificationServer registers srv on s.
func RegisterVerificationServer(s grpc.ServiceRegistrar, srv VerificationServer) {
	s.RegisterService(&Verification_ServiceDesc, srv)
}

// unaryHandler adapts one typed server method to a grpc.MethodDesc handler.
func unaryHandler[Req any, Resp any](fullMethod string, call func(VerificationServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VerificationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(VerificationServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Verification_ServiceDesc is the grpc.ServiceDesc for kyc.v1.Verification.
var Verification_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VerificationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Upload", Handler: unaryHandler(Verification_Upload_FullMethodName, VerificationServer.Upload)},
		{MethodName: "VerifySingle", Handler: unaryHandler(Verification_VerifySingle_FullMethodName, VerificationServer.VerifySingle)},
		{MethodName: "ListRecords", Handler: unaryHandler(Verification_ListRecords_FullMethodName, VerificationServer.ListRecords)},
		{MethodName: "ListBatchRecords", Handler: unaryHandler(Verification_ListBatchRecords_FullMethodName, VerificationServer.ListBatchRecords)},
		{MethodName: "ListBatches", Handler: unaryHandler(Verification_ListBatches_FullMethodName, VerificationServer.ListBatches)},
		{MethodName: "BatchStats", Handler: unaryHandler(Verification_BatchStats_FullMethodName, VerificationServer.BatchStats)},
		{MethodName: "RetryFailed", Handler: unaryHandler(Verification_RetryFailed_FullMethodName, VerificationServer.RetryFailed)},
		{MethodName: "DeleteBatch", Handler: unaryHandler(Verification_DeleteBatch_FullMethodName, VerificationServer.DeleteBatch)},
		{MethodName: "GetStats", Handler: unaryHandler(Verification_GetStats_FullMethodName, VerificationServer.GetStats)},
		{MethodName: "RefreshStats", Handler: unaryHandler(Verification_RefreshStats_FullMethodName, VerificationServer.RefreshStats)},
		{MethodName: "Usage", Handler: unaryHandler(Verification_Usage_FullMethodName, VerificationServer.Usage)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kyc/v1/verification",
}

// VerificationClient is a typed client for kyc.v1.Verification. Every call
// carries the JSON content-subtype.
type VerificationClient struct {
	cc grpc.ClientConnInterface
}

// NewVerificationClient wraps cc.
func NewVerificationClient(cc grpc.ClientConnInterface) *VerificationClient {
	return &VerificationClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *VerificationClient) Upload(ctx context.Context, in *UploadRequest, opts ...grpc.CallOption) (*UploadResponse, error) {
	return invoke[UploadResponse](ctx, c.cc, Verification_Upload_FullMethodName, in, opts)
}

func (c *VerificationClient) VerifySingle(ctx context.Context, in *VerifySingleRequest, opts ...grpc.CallOption) (*Record, error) {
	return invoke[Record](ctx, c.cc, Verification_VerifySingle_FullMethodName, in, opts)
}

func (c *VerificationClient) ListRecords(ctx context.Context, in *ListRecordsRequest, opts ...grpc.CallOption) (*ListRecordsResponse, error) {
	return invoke[ListRecordsResponse](ctx, c.cc, Verification_ListRecords_FullMethodName, in, opts)
}

func (c *VerificationClient) ListBatchRecords(ctx context.Context, in *ListBatchRecordsRequest, opts ...grpc.CallOption) (*ListRecordsResponse, error) {
	return invoke[ListRecordsResponse](ctx, c.cc, Verification_ListBatchRecords_FullMethodName, in, opts)
}

func (c *VerificationClient) ListBatches(ctx context.Context, in *ListBatchesRequest, opts ...grpc.CallOption) (*ListBatchesResponse, error) {
	return invoke[ListBatchesResponse](ctx, c.cc, Verification_ListBatches_FullMethodName, in, opts)
}

func (c *VerificationClient) BatchStats(ctx context.Context, in *BatchRequest, opts ...grpc.CallOption) (*BatchStatsResponse, error) {
	return invoke[BatchStatsResponse](ctx, c.cc, Verification_BatchStats_FullMethodName, in, opts)
}

func (c *VerificationClient) RetryFailed(ctx context.Context, in *BatchRequest, opts ...grpc.CallOption) (*RetryFailedResponse, error) {
	return invoke[RetryFailedResponse](ctx, c.cc, Verification_RetryFailed_FullMethodName, in, opts)
}

func (c *VerificationClient) DeleteBatch(ctx context.Context, in *BatchRequest, opts ...grpc.CallOption) (*DeleteBatchResponse, error) {
	return invoke[DeleteBatchResponse](ctx, c.cc, Verification_DeleteBatch_FullMethodName, in, opts)
}

func (c *VerificationClient) GetStats(ctx context.Context, in *StatsRequest, opts ...grpc.CallOption) (*StatsResponse, error) {
	return invoke[StatsResponse](ctx, c.cc, Verification_GetStats_FullMethodName, in, opts)
}

func (c *VerificationClient) RefreshStats(ctx context.Context, in *StatsRequest, opts ...grpc.CallOption) (*StatsResponse, error) {
	return invoke[StatsResponse](ctx, c.cc, Verification_RefreshStats_FullMethodName, in, opts)
}

func (c *VerificationClient) Usage(ctx context.Context, in *UsageRequest, opts ...grpc.CallOption) (*UsageResponse, error) {
	return invoke[UsageResponse](ctx, c.cc, Verification_Usage_FullMethodName, in, opts)
}
