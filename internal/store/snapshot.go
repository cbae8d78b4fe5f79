package store

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack"

	"github.com/mundrapranay/oblivious-tree/internal/crypto"
	"github.com/mundrapranay/oblivious-tree/internal/oram"
)

// ErrMalformedSnapshot is returned when a snapshot does not describe a full
// binary tree of ciphertext buckets.
var ErrMalformedSnapshot = errors.New("malformed tree snapshot")

// TreeSnapshot is the server's copy of a client tree: every bucket in its
// wire form, together with the public key it was encrypted under.
type TreeSnapshot struct {
	Depth     int        `msgpack:"depth"`
	PublicKey []byte     `msgpack:"pk"`
	Levels    [][][]byte `msgpack:"levels"`
}

// NewTreeSnapshot copies every bucket of t. pk may be nil.
func NewTreeSnapshot(t *oram.Tree, pk *crypto.PublicKey) (*TreeSnapshot, error) {
	snap := &TreeSnapshot{
		Depth:  t.Depth(),
		Levels: make([][][]byte, t.Depth()+1),
	}
	if pk != nil {
		raw, err := pk.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode public key: %w", err)
		}
		snap.PublicKey = raw
	}
	for l := range snap.Levels {
		buckets, err := t.Level(l)
		if err != nil {
			return nil, err
		}
		nodes := make([][]byte, len(buckets))
		for i, b := range buckets {
			raw, err := b.MarshalBinary()
			if err != nil {
				return nil, err
			}
			nodes[i] = raw
		}
		snap.Levels[l] = nodes
	}
	return snap, nil
}

// Validate checks the shape of the snapshot.
func (s *TreeSnapshot) Validate() error {
	if s.Depth < 0 || s.Depth > oram.MaxDepth {
		return fmt.Errorf("%w: depth %d", ErrMalformedSnapshot, s.Depth)
	}
	if len(s.Levels) != s.Depth+1 {
		return fmt.Errorf("%w: %d levels for depth %d", ErrMalformedSnapshot, len(s.Levels), s.Depth)
	}
	for l, nodes := range s.Levels {
		if len(nodes) != 1<<l {
			return fmt.Errorf("%w: level %d has %d nodes", ErrMalformedSnapshot, l, len(nodes))
		}
		for i, raw := range nodes {
			if len(raw)%crypto.CiphertextSize != 0 {
				return fmt.Errorf("%w: bucket (%d,%d) is %d bytes", ErrMalformedSnapshot, l, i, len(raw))
			}
		}
	}
	if s.PublicKey != nil {
		if _, err := crypto.UnmarshalPublicKey(s.PublicKey); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
		}
	}
	return nil
}

// Buckets returns copies of the encoded buckets on a level, or nil when the
// level does not exist.
func (s *TreeSnapshot) Buckets(level int) [][]byte {
	if level < 0 || level >= len(s.Levels) {
		return nil
	}
	out := make([][]byte, len(s.Levels[level]))
	for i, raw := range s.Levels[level] {
		out[i] = append([]byte(nil), raw...)
	}
	return out
}

// Tree decodes the snapshot back into a tree.
func (s *TreeSnapshot) Tree() (*oram.Tree, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	t, err := oram.NewTree(s.Depth)
	if err != nil {
		return nil, err
	}
	for l, nodes := range s.Levels {
		for i, raw := range nodes {
			b, err := oram.UnmarshalBucket(raw)
			if err != nil {
				return nil, err
			}
			if err := t.SetNode(oram.Location{Level: l, Index: i}, b); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// Key decodes the stored public key, if any.
func (s *TreeSnapshot) Key() (*crypto.PublicKey, bool, error) {
	if s.PublicKey == nil {
		return nil, false, nil
	}
	pk, err := crypto.UnmarshalPublicKey(s.PublicKey)
	if err != nil {
		return nil, false, err
	}
	return pk, true, nil
}

// EncodeSnapshot serializes s with msgpack.
func EncodeSnapshot(s *TreeSnapshot) ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses and validates data produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*TreeSnapshot, error) {
	var s TreeSnapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// EncodeLevel serializes the buckets of one level for transport.
func EncodeLevel(buckets [][]byte) ([]byte, error) {
	if buckets == nil {
		buckets = [][]byte{}
	}
	return msgpack.Marshal(buckets)
}

// DecodeLevel is the inverse of EncodeLevel.
func DecodeLevel(data []byte) ([][]byte, error) {
	var buckets [][]byte
	if err := msgpack.Unmarshal(data, &buckets); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	return buckets, nil
}
