package server

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/mundrapranay/oblivious-tree/internal/crypto"
	"github.com/mundrapranay/oblivious-tree/internal/oram"
	"github.com/mundrapranay/oblivious-tree/internal/store"
)

// StorageServer is the passive holder of a client's tree. It replaces the
// whole tree on request and hands out encrypted levels; it never decrypts and
// has no other write path.
type StorageServer struct {
	replica store.Replica
	logger  hclog.Logger
}

// NewStorageServer serves the tree held by replica. A nil logger discards
// output.
func NewStorageServer(replica store.Replica, logger hclog.Logger) *StorageServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &StorageServer{
		replica: replica,
		logger:  logger.Named("storage"),
	}
}

// StoreTree replaces the held tree and public key.
func (s *StorageServer) StoreTree(ctx context.Context, tree *oram.Tree, pk *crypto.PublicKey) error {
	snap, err := store.NewTreeSnapshot(tree, pk)
	if err != nil {
		return err
	}
	return s.StoreSnapshot(ctx, snap)
}

// StoreSnapshot replaces the held tree with an already encoded one.
func (s *StorageServer) StoreSnapshot(ctx context.Context, snap *store.TreeSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.replica.StoreTree(snap); err != nil {
		return fmt.Errorf("failed to store tree: %w", err)
	}
	s.logger.Debug("stored tree", "depth", snap.Depth)
	return nil
}

// EncryptedLevel returns a copy of every bucket on level, in index order. It
// returns nil when no tree is held or the level is out of range.
func (s *StorageServer) EncryptedLevel(ctx context.Context, level int) [][]byte {
	snap, ok := s.replica.Tree()
	if !ok {
		return nil
	}
	return snap.Buckets(level)
}

// PublicKey returns the encoded key stored with the tree.
func (s *StorageServer) PublicKey(ctx context.Context) ([]byte, bool) {
	snap, ok := s.replica.Tree()
	if !ok || snap.PublicKey == nil {
		return nil, false
	}
	return append([]byte(nil), snap.PublicKey...), true
}
