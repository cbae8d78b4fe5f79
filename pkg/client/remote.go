package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mundrapranay/oblivious-tree/internal/crypto"
	"github.com/mundrapranay/oblivious-tree/internal/server"
	"github.com/mundrapranay/oblivious-tree/internal/store"
)

// Remote talks to an oram-server over gRPC.
type Remote struct {
	conn    *grpc.ClientConn
	service server.StorageServiceClient
}

var _ Storage = (*Remote)(nil)

// Dial connects to a storage server. Without options the connection is
// insecure.
func Dial(serverAddr string, opts ...grpc.DialOption) (*Remote, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(serverAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return &Remote{
		conn:    conn,
		service: server.NewStorageServiceClient(conn),
	}, nil
}

// NewRemote uses an existing connection. Close is then a no-op; the caller
// owns cc.
func NewRemote(cc grpc.ClientConnInterface) *Remote {
	return &Remote{service: server.NewStorageServiceClient(cc)}
}

// Close closes the client connection.
func (r *Remote) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// StoreTree replaces the tree held by the server.
func (r *Remote) StoreTree(ctx context.Context, snap *store.TreeSnapshot) error {
	data, err := store.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if _, err := r.service.StoreTree(ctx, wrapperspb.Bytes(data)); err != nil {
		return fmt.Errorf("failed to store tree: %w", err)
	}
	return nil
}

// EncryptedLevel fetches the buckets of one level.
func (r *Remote) EncryptedLevel(ctx context.Context, level int) ([][]byte, error) {
	if level < 0 {
		return nil, nil
	}
	resp, err := r.service.GetEncryptedLevel(ctx, wrapperspb.UInt32(uint32(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to get level %d: %w", level, err)
	}
	return store.DecodeLevel(resp.GetValue())
}

// PublicKey fetches the key the server holds with the tree.
func (r *Remote) PublicKey(ctx context.Context) (*crypto.PublicKey, error) {
	resp, err := r.service.GetPublicKey(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	return crypto.UnmarshalPublicKey(resp.GetValue())
}
