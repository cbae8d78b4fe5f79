package store

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"github.com/vmihailenco/msgpack"
)

const (
	OpStoreTree = "STORE_TREE"
	OpDropTree  = "DROP_TREE"
)

// Command represents a single operation to be applied to the FSM.
type Command struct {
	Op string `json:"op"`
	// Tree is an EncodeSnapshot payload for OpStoreTree.
	Tree []byte `json:"tree,omitempty"`
}

// Replica is a passive holder of one client tree. It never decrypts and has
// no write path other than replacing the whole tree.
type Replica interface {
	StoreTree(snap *TreeSnapshot) error
	Tree() (*TreeSnapshot, bool)
}

// FSM is the replicated state machine: the most recently stored tree.
// Used on its own it is also a single-node Replica.
type FSM struct {
	mu   sync.RWMutex
	tree *TreeSnapshot
}

var _ Replica = (*FSM)(nil)

// NewFSM creates an FSM holding no tree.
func NewFSM() *FSM {
	return &FSM{}
}

// Apply applies a Raft log entry to the FSM.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to deserialize command: %w", err)
	}

	switch cmd.Op {
	case OpStoreTree:
		snap, err := DecodeSnapshot(cmd.Tree)
		if err != nil {
			return err
		}
		f.mu.Lock()
		f.tree = snap
		f.mu.Unlock()
		return nil
	case OpDropTree:
		f.mu.Lock()
		f.tree = nil
		f.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("unrecognized command op: %s", cmd.Op)
	}
}

// StoreTree replaces the held tree without going through Raft.
func (f *FSM) StoreTree(snap *TreeSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree = snap
	return nil
}

// Tree returns the held tree, if any. The snapshot is shared and must not be
// modified.
func (f *FSM) Tree() (*TreeSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tree, f.tree != nil
}

type fsmState struct {
	Tree *TreeSnapshot `msgpack:"tree"`
}

// Snapshot captures the held tree for log compaction. Stored snapshots are
// never mutated in place, so sharing the pointer is safe.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &FSMSnapshot{state: fsmState{Tree: f.tree}}, nil
}

// Restore replaces the FSM state with a persisted snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var st fsmState
	if err := msgpack.NewDecoder(rc).Decode(&st); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if st.Tree != nil {
		if err := st.Tree.Validate(); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree = st.Tree
	return nil
}

// FSMSnapshot represents a snapshot of the FSM state.
type FSMSnapshot struct {
	state fsmState
}

// Persist writes the snapshot to the given sink.
func (s *FSMSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := msgpack.NewEncoder(sink).Encode(&s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return sink.Close()
}

// Release is called when the snapshot is no longer needed.
func (s *FSMSnapshot) Release() {}
