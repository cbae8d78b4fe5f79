package oram

import (
	"fmt"
	"iter"
)

// MaxDepth bounds the tree so that construction cannot exhaust memory by
// accident.
const MaxDepth = 24

// Tree is a full binary tree of buckets with a fixed depth. Every node holds
// exactly one bucket for the tree's lifetime; buckets are replaced wholesale.
type Tree struct {
	depth  int
	levels [][]Bucket
}

// NewTree builds a tree with depth+1 levels, all buckets empty.
func NewTree(depth int) (*Tree, error) {
	if depth < 0 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d (must be in [0,%d])", ErrInvalidDepth, depth, MaxDepth)
	}
	levels := make([][]Bucket, depth+1)
	for l := range levels {
		levels[l] = make([]Bucket, 1<<l)
	}
	return &Tree{depth: depth, levels: levels}, nil
}

// Depth returns L, the index of the deepest level.
func (t *Tree) Depth() int {
	return t.depth
}

// Size returns the number of nodes, 2^(L+1) - 1.
func (t *Tree) Size() int {
	return (1 << (t.depth + 1)) - 1
}

// Contains reports whether loc addresses a node of this tree.
func (t *Tree) Contains(loc Location) bool {
	return loc.Level >= 0 && loc.Level <= t.depth && loc.Index >= 0 && loc.Index < 1<<loc.Level
}

func (t *Tree) check(loc Location) error {
	if !t.Contains(loc) {
		return fmt.Errorf("%w: %s in tree of depth %d", ErrOutOfRange, loc, t.depth)
	}
	return nil
}

// Node returns the bucket at loc. The returned bucket must not be modified.
func (t *Tree) Node(loc Location) (Bucket, error) {
	if err := t.check(loc); err != nil {
		return nil, err
	}
	return t.levels[loc.Level][loc.Index], nil
}

// SetNode replaces the bucket at loc with a copy of b.
func (t *Tree) SetNode(loc Location, b Bucket) error {
	if err := t.check(loc); err != nil {
		return err
	}
	t.levels[loc.Level][loc.Index] = b.Clone()
	return nil
}

// Level returns copies of every bucket on the given level.
func (t *Tree) Level(level int) ([]Bucket, error) {
	if level < 0 || level > t.depth {
		return nil, fmt.Errorf("%w: level %d in tree of depth %d", ErrOutOfRange, level, t.depth)
	}
	out := make([]Bucket, len(t.levels[level]))
	for i, b := range t.levels[level] {
		out[i] = b.Clone()
	}
	return out, nil
}

// AllLocations yields every location, level by level from the root.
func (t *Tree) AllLocations() iter.Seq[Location] {
	return func(yield func(Location) bool) {
		for l := range t.levels {
			for i := range t.levels[l] {
				if !yield(Location{Level: l, Index: i}) {
					return
				}
			}
		}
	}
}

// EmptyLocations yields the locations whose buckets are currently empty, in
// AllLocations order.
func (t *Tree) EmptyLocations() iter.Seq[Location] {
	return func(yield func(Location) bool) {
		for loc := range t.AllLocations() {
			if t.levels[loc.Level][loc.Index].Empty() {
				if !yield(loc) {
					return
				}
			}
		}
	}
}
