package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/mundrapranay/oblivious-tree/internal/crypto"
	"github.com/mundrapranay/oblivious-tree/internal/oram"
)

// testSnapshot builds a snapshot of a depth-2 tree with a marked bucket at
// (1,1) and (2,3). tag distinguishes snapshots from one another.
func testSnapshot(t testing.TB, tag byte) *TreeSnapshot {
	t.Helper()
	tree, err := oram.NewTree(2)
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	if err := tree.SetNode(oram.Location{Level: 1, Index: 1}, oram.Bucket{crypto.Ciphertext{tag}}); err != nil {
		t.Fatalf("SetNode failed: %v", err)
	}
	if err := tree.SetNode(oram.Location{Level: 2, Index: 3}, oram.Bucket{crypto.Ciphertext{tag, 1}, crypto.Ciphertext{tag, 2}}); err != nil {
		t.Fatalf("SetNode failed: %v", err)
	}
	snap, err := NewTreeSnapshot(tree, nil)
	if err != nil {
		t.Fatalf("NewTreeSnapshot failed: %v", err)
	}
	return snap
}

// sameLevels compares snapshots node by node, treating nil and empty as equal.
func sameLevels(a, b *TreeSnapshot) bool {
	if a.Depth != b.Depth || len(a.Levels) != len(b.Levels) {
		return false
	}
	for l := range a.Levels {
		if len(a.Levels[l]) != len(b.Levels[l]) {
			return false
		}
		for i := range a.Levels[l] {
			if !bytes.Equal(a.Levels[l][i], b.Levels[l][i]) {
				return false
			}
		}
	}
	return true
}

// waitForTree polls r until it holds a tree equal to want.
func waitForTree(t *testing.T, r Replica, want *TreeSnapshot, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	tick := time.Tick(50 * time.Millisecond)
	for {
		if got, ok := r.Tree(); ok && sameLevels(got, want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("Timeout waiting for tree to replicate")
		}
		<-tick
	}
}
