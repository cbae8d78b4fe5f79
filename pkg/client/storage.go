package client

import (
	"context"

	"github.com/mundrapranay/oblivious-tree/internal/server"
	"github.com/mundrapranay/oblivious-tree/internal/store"
)

// Storage is where a client mirrors its tree.
type Storage interface {
	StoreTree(ctx context.Context, snap *store.TreeSnapshot) error
	EncryptedLevel(ctx context.Context, level int) ([][]byte, error)
}

// Local adapts an in-process StorageServer.
type Local struct {
	srv *server.StorageServer
}

var _ Storage = (*Local)(nil)

// NewLocal wraps srv.
func NewLocal(srv *server.StorageServer) *Local {
	return &Local{srv: srv}
}

func (l *Local) StoreTree(ctx context.Context, snap *store.TreeSnapshot) error {
	return l.srv.StoreSnapshot(ctx, snap)
}

func (l *Local) EncryptedLevel(ctx context.Context, level int) ([][]byte, error) {
	return l.srv.EncryptedLevel(ctx, level), nil
}
