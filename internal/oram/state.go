package oram

import "fmt"

// State is everything a client owns: the tree, the position map and the
// stash. Protocol functions take it explicitly so tests can build and inspect
// it without a client.
type State struct {
	Tree  *Tree
	Map   PositionMap
	Stash *Stash
}

// NewState builds an empty state with an in-memory position map.
func NewState(depth, stashCapacity int) (*State, error) {
	return NewStateWithMap(depth, stashCapacity, NewMemoryPositionMap())
}

// NewStateWithMap builds an empty state around an existing position map.
func NewStateWithMap(depth, stashCapacity int, pm PositionMap) (*State, error) {
	t, err := NewTree(depth)
	if err != nil {
		return nil, err
	}
	if pm == nil {
		pm = NewMemoryPositionMap()
	}
	return &State{
		Tree:  t,
		Map:   pm,
		Stash: NewStash(stashCapacity),
	}, nil
}

// Check verifies that every mapped key points at a distinct, non-empty node
// and that no stashed key is also mapped.
func (st *State) Check() error {
	seen := make(map[Location]Key, st.Map.Len())
	for _, k := range st.Map.Keys() {
		loc, _ := st.Map.Get(k)
		if other, ok := seen[loc]; ok {
			return fmt.Errorf("%w: %q and %q both at %s", ErrLocationInUse, other, k, loc)
		}
		seen[loc] = k
		b, err := st.Tree.Node(loc)
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		if b.Empty() {
			return fmt.Errorf("key %q maps to empty bucket at %s", k, loc)
		}
	}
	for _, e := range st.Stash.Entries() {
		if loc, ok := st.Map.Get(e.Key); ok {
			return fmt.Errorf("key %q is both stashed and mapped to %s", e.Key, loc)
		}
	}
	return nil
}
