package oram

import (
	"fmt"
	"slices"
)

// Op is the logical operation an access performs.
type Op int

const (
	OpGet Op = iota
	OpPut
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpPut:
		return "put"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Result is what an access observed.
type Result struct {
	// Value is the plaintext for a get of a present key.
	Value []byte
	// Found reports whether the key was present before the access.
	Found bool
	// Touched lists the nodes the access read or wrote, in order.
	Touched []Location
}

// Initialize places items at uniformly shuffled locations, one bucket each,
// and empties every other node. Anything the state held before is replaced.
// Validation and encryption happen before the first write, so a failure
// leaves st untouched.
func Initialize(st *State, c Cipher, rng Rand, items []Item) error {
	if len(items) > st.Tree.Size() {
		return fmt.Errorf("%w: %d items for %d locations", ErrCapacityExceeded, len(items), st.Tree.Size())
	}
	seen := make(map[Key]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.Key]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, it.Key)
		}
		seen[it.Key] = struct{}{}
	}

	sealed := make([]Bucket, len(items))
	for i, it := range items {
		b, err := seal(c, it.Value)
		if err != nil {
			return fmt.Errorf("item %q: %w", it.Key, err)
		}
		sealed[i] = b
	}

	locs := slices.Collect(st.Tree.AllLocations())
	rng.Shuffle(len(locs), func(i, j int) {
		locs[i], locs[j] = locs[j], locs[i]
	})

	tx := newTx(st)
	for _, k := range st.Map.Keys() {
		if err := tx.remove(k); err != nil {
			return tx.abort(err)
		}
	}
	for i, it := range items {
		loc := locs[len(locs)-1]
		locs = locs[:len(locs)-1]
		if err := tx.setNode(loc, sealed[i]); err != nil {
			return tx.abort(err)
		}
		if err := tx.update(it.Key, loc); err != nil {
			return tx.abort(err)
		}
	}
	for _, loc := range locs {
		if err := tx.setNode(loc, nil); err != nil {
			return tx.abort(err)
		}
	}
	tx.Commit()
	st.Stash.clear()
	return nil
}

// Access runs one get, put or remove against st and commits it.
func Access(st *State, c Cipher, rng Rand, op Op, key Key, value []byte) (Result, error) {
	tx, res, err := Prepare(st, c, rng, op, key, value)
	if err != nil {
		return Result{}, err
	}
	tx.Commit()
	return res, nil
}

// Prepare applies one access to st and returns the transaction so the caller
// can still roll it back, for example when pushing the tree to storage fails.
//
// The access reads at most the key's current node and writes at most one
// freshly drawn empty node plus the old one; it does not touch a whole
// root-to-leaf path, so the set of touched nodes still depends on whether the
// key existed.
func Prepare(st *State, c Cipher, rng Rand, op Op, key Key, value []byte) (*Tx, Result, error) {
	var res Result
	if op < OpGet || op > OpRemove {
		return nil, res, fmt.Errorf("%w: %s", ErrInvalidOp, op)
	}

	orig, found := st.Map.Get(key)
	newLoc, err := pickEmpty(st.Tree, rng)
	if err != nil {
		return nil, res, err
	}

	tx := newTx(st)

	if !found {
		if stashed, ok := st.Stash.Get(key); ok {
			if err := fromStash(tx, c, op, key, stashed, value, newLoc, &res); err != nil {
				return nil, Result{}, tx.abort(err)
			}
			return tx, res, nil
		}
		if op == OpPut {
			sealed, err := seal(c, value)
			if err != nil {
				return nil, res, err
			}
			if err := place(tx, key, sealed, newLoc, &res); err != nil {
				return nil, Result{}, tx.abort(err)
			}
		}
		return tx, res, nil
	}

	// Everything fallible that does not mutate runs first.
	old, err := st.Tree.Node(orig)
	if err != nil {
		return nil, res, fmt.Errorf("key %q: %w", key, err)
	}
	plain, err := open(c, old)
	if err != nil {
		return nil, res, err
	}
	var sealed Bucket
	if op == OpPut {
		if sealed, err = seal(c, value); err != nil {
			return nil, res, err
		}
	}

	tx.park(key, plain, orig)
	res.Found = true
	res.Touched = append(res.Touched, orig)

	switch op {
	case OpGet:
		res.Value = plain
	case OpPut:
		if err := place(tx, key, sealed, newLoc, &res); err != nil {
			return nil, Result{}, tx.abort(err)
		}
		if err := tx.setNode(orig, nil); err != nil {
			return nil, Result{}, tx.abort(err)
		}
		res.Touched = append(res.Touched, orig)
	case OpRemove:
		if err := tx.setNode(orig, nil); err != nil {
			return nil, Result{}, tx.abort(err)
		}
		if err := tx.remove(key); err != nil {
			return nil, Result{}, tx.abort(err)
		}
		res.Touched = append(res.Touched, orig)
	}
	return tx, res, nil
}

// Evict moves stashed blocks back into random empty nodes. It returns how
// many blocks were placed; it stops at the first failure.
func Evict(st *State, c Cipher, rng Rand) (int, error) {
	placed := 0
	for _, e := range st.Stash.Entries() {
		if _, ok := st.Map.Get(e.Key); ok {
			continue
		}
		tx, _, err := Prepare(st, c, rng, OpPut, e.Key, e.Value)
		if err != nil {
			return placed, fmt.Errorf("failed to evict %q: %w", e.Key, err)
		}
		tx.Commit()
		placed++
	}
	return placed, nil
}

// fromStash serves a key whose only copy is in the stash.
func fromStash(tx *Tx, c Cipher, op Op, key Key, stashed, value []byte, newLoc Location, res *Result) error {
	res.Found = true
	switch op {
	case OpGet:
		res.Value = stashed
	case OpPut:
		sealed, err := seal(c, value)
		if err != nil {
			return err
		}
		if err := place(tx, key, sealed, newLoc, res); err != nil {
			return err
		}
		tx.residue, tx.hasResidue = key, true
	case OpRemove:
		tx.residue, tx.hasResidue = key, true
	}
	return nil
}

func place(tx *Tx, key Key, sealed Bucket, loc Location, res *Result) error {
	if err := tx.setNode(loc, sealed); err != nil {
		return err
	}
	if err := tx.update(key, loc); err != nil {
		return err
	}
	res.Touched = append(res.Touched, loc)
	return nil
}

func pickEmpty(t *Tree, rng Rand) (Location, error) {
	empties := slices.Collect(t.EmptyLocations())
	if len(empties) == 0 {
		return Location{}, ErrNoCapacity
	}
	return empties[rng.IntN(len(empties))], nil
}
