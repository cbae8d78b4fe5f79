package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mundrapranay/oblivious-tree/internal/crypto"
	"github.com/mundrapranay/oblivious-tree/internal/oram"
	"github.com/mundrapranay/oblivious-tree/internal/store"
)

// testTree returns a depth-2 tree with one bucket at (1,0).
func testTree(t *testing.T, tag byte) *oram.Tree {
	t.Helper()
	tree, err := oram.NewTree(2)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	if err := tree.SetNode(oram.Location{Level: 1, Index: 0}, oram.Bucket{crypto.Ciphertext{tag}}); err != nil {
		t.Fatalf("SetNode failed: %v", err)
	}
	return tree
}

func setupRaftStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(store.Config{
		NodeID:           "test-node",
		ListenAddr:       "127.0.0.1:0",
		DataDir:          t.TempDir(),
		Bootstrap:        true,
		HeartbeatTimeout: 500 * time.Millisecond,
		ElectionTimeout:  500 * time.Millisecond,
		CommitTimeout:    50 * time.Millisecond,
		Logger:           hclog.NewNullLogger(),
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	timeout := time.After(5 * time.Second)
	tick := time.Tick(100 * time.Millisecond)
	for !s.IsLeader() {
		select {
		case <-timeout:
			t.Fatal("Timeout waiting for leadership")
		case <-tick:
		}
	}
	return s
}

func TestStorageServer_NoTree(t *testing.T) {
	srv := NewStorageServer(store.NewFSM(), nil)
	ctx := context.Background()

	if got := srv.EncryptedLevel(ctx, 0); len(got) != 0 {
		t.Fatalf("Expected no buckets before a tree is stored, got %d", len(got))
	}
	if _, ok := srv.PublicKey(ctx); ok {
		t.Fatal("No public key should be held yet")
	}
}

func TestStorageServer_StoreTree(t *testing.T) {
	srv := NewStorageServer(store.NewFSM(), nil)
	ctx := context.Background()

	pk, _, err := crypto.GenerateKeys(0, 1, 1)
	if err != nil {
		t.Fatalf("GenerateKeys failed: %v", err)
	}
	if err := srv.StoreTree(ctx, testTree(t, 1), pk); err != nil {
		t.Fatalf("StoreTree failed: %v", err)
	}

	level := srv.EncryptedLevel(ctx, 1)
	if len(level) != 2 {
		t.Fatalf("Expected 2 buckets on level 1, got %d", len(level))
	}
	if len(level[0]) != crypto.CiphertextSize || level[0][0] != 1 {
		t.Fatalf("Unexpected bucket (1,0): %v", level[0])
	}
	if len(level[1]) != 0 {
		t.Fatal("Bucket (1,1) should be empty")
	}

	for _, l := range []int{-1, 3} {
		if got := srv.EncryptedLevel(ctx, l); len(got) != 0 {
			t.Fatalf("Level %d should be empty, got %d buckets", l, len(got))
		}
	}

	raw, ok := srv.PublicKey(ctx)
	if !ok {
		t.Fatal("Public key should be held")
	}
	got, err := crypto.UnmarshalPublicKey(raw)
	if err != nil || !got.Equal(pk) {
		t.Fatalf("Stored key differs: %v", err)
	}

	// Storing again replaces the tree.
	if err := srv.StoreTree(ctx, testTree(t, 2), nil); err != nil {
		t.Fatalf("StoreTree failed: %v", err)
	}
	if level := srv.EncryptedLevel(ctx, 1); level[0][0] != 2 {
		t.Fatal("Second StoreTree did not replace the tree")
	}
	if _, ok := srv.PublicKey(ctx); ok {
		t.Fatal("Replacing the tree without a key should drop the old key")
	}
}

func TestStorageServer_LevelIsACopy(t *testing.T) {
	srv := NewStorageServer(store.NewFSM(), nil)
	ctx := context.Background()
	if err := srv.StoreTree(ctx, testTree(t, 1), nil); err != nil {
		t.Fatalf("StoreTree failed: %v", err)
	}

	level := srv.EncryptedLevel(ctx, 1)
	level[0][0] = 0xff
	if again := srv.EncryptedLevel(ctx, 1); again[0][0] != 1 {
		t.Fatal("Caller mutation reached the held tree")
	}
}

func TestStorageServer_CanceledContext(t *testing.T) {
	srv := NewStorageServer(store.NewFSM(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := srv.StoreTree(ctx, testTree(t, 1), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestStorageServer_RaftReplica(t *testing.T) {
	s := setupRaftStore(t)
	defer s.Shutdown()

	srv := NewStorageServer(s, hclog.NewNullLogger())
	ctx := context.Background()
	if err := srv.StoreTree(ctx, testTree(t, 5), nil); err != nil {
		t.Fatalf("StoreTree failed: %v", err)
	}
	level := srv.EncryptedLevel(ctx, 1)
	if len(level) != 2 || level[0][0] != 5 {
		t.Fatal("Raft-backed server did not serve the stored tree")
	}
}
