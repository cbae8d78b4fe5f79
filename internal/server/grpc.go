package server

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mundrapranay/oblivious-tree/internal/store"
)

// The service is described by hand over protobuf well-known types, so no
// generated code is needed on either side.
const (
	ServiceName             = "oblivtree.v1.StorageService"
	StoreTreeMethod         = "/" + ServiceName + "/StoreTree"
	GetEncryptedLevelMethod = "/" + ServiceName + "/GetEncryptedLevel"
	GetPublicKeyMethod      = "/" + ServiceName + "/GetPublicKey"
)

// StorageServiceServer is the server API for StorageService.
type StorageServiceServer interface {
	// StoreTree takes an EncodeSnapshot payload.
	StoreTree(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	// GetEncryptedLevel returns an EncodeLevel payload.
	GetEncryptedLevel(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.BytesValue, error)
	GetPublicKey(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// Service implements StorageServiceServer on top of a StorageServer.
type Service struct {
	storage *StorageServer
}

var _ StorageServiceServer = (*Service)(nil)

// NewService wraps storage for gRPC.
func NewService(storage *StorageServer) *Service {
	return &Service{storage: storage}
}

// StoreTree decodes the snapshot and hands it to the replica.
func (s *Service) StoreTree(ctx context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	snap, err := store.DecodeSnapshot(req.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid tree: %v", err)
	}
	if err := s.storage.StoreSnapshot(ctx, snap); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// GetEncryptedLevel returns the buckets of one level.
func (s *Service) GetEncryptedLevel(ctx context.Context, req *wrapperspb.UInt32Value) (*wrapperspb.BytesValue, error) {
	data, err := store.EncodeLevel(s.storage.EncryptedLevel(ctx, int(req.GetValue())))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode level: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}

// GetPublicKey returns the key stored with the tree.
func (s *Service) GetPublicKey(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	pk, ok := s.storage.PublicKey(ctx)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no public key stored")
	}
	return wrapperspb.Bytes(pk), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotLeader):
		return status.Errorf(codes.FailedPrecondition, "%v", err)
	case errors.Is(err, store.ErrMalformedSnapshot):
		return status.Errorf(codes.InvalidArgument, "%v", err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%v", err)
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}

// RegisterStorageServiceServer registers srv with s.
func RegisterStorageServiceServer(s grpc.ServiceRegistrar, srv StorageServiceServer) {
	s.RegisterService(&StorageService_ServiceDesc, srv)
}

func _StorageService_StoreTree_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorageServiceServer).StoreTree(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StoreTreeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StorageServiceServer).StoreTree(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _StorageService_GetEncryptedLevel_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.UInt32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorageServiceServer).GetEncryptedLevel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetEncryptedLevelMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StorageServiceServer).GetEncryptedLevel(ctx, req.(*wrapperspb.UInt32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func _StorageService_GetPublicKey_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorageServiceServer).GetPublicKey(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetPublicKeyMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StorageServiceServer).GetPublicKey(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// StorageService_ServiceDesc is the grpc.ServiceDesc for StorageService.
var StorageService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StorageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StoreTree", Handler: _StorageService_StoreTree_Handler},
		{MethodName: "GetEncryptedLevel", Handler: _StorageService_GetEncryptedLevel_Handler},
		{MethodName: "GetPublicKey", Handler: _StorageService_GetPublicKey_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "oblivtree/v1/storage.proto",
}

// StorageServiceClient is the client API for StorageService.
type StorageServiceClient interface {
	StoreTree(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetEncryptedLevel(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	GetPublicKey(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type storageServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewStorageServiceClient returns a client bound to cc.
func NewStorageServiceClient(cc grpc.ClientConnInterface) StorageServiceClient {
	return &storageServiceClient{cc: cc}
}

func (c *storageServiceClient) StoreTree(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, StoreTreeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storageServiceClient) GetEncryptedLevel(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, GetEncryptedLevelMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storageServiceClient) GetPublicKey(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, GetPublicKeyMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// UnaryLogger logs every unary call at debug level and failures at warn.
func UnaryLogger(logger hclog.Logger) grpc.UnaryServerInterceptor {
	logger = logger.Named("grpc")
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("call failed", "method", info.FullMethod, "code", status.Code(err), "duration", time.Since(start))
		} else {
			logger.Debug("call", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}
