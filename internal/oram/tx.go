package oram

import (
	"errors"
	"fmt"
)

// Tx is an access that has been applied to a State but can still be undone.
// Every node write and map change is journaled so Rollback can restore the
// state as it was before the access began.
type Tx struct {
	st   *State
	undo []func() error
	done bool

	// parked is the decrypted block of the accessed key. It only reaches
	// the stash if Rollback cannot restore the key's old placement.
	parked      Key
	parkedValue []byte
	hasParked   bool
	orig        Location

	// residue is a stashed key that this access has placed or removed.
	residue    Key
	hasResidue bool
}

func newTx(st *State) *Tx {
	return &Tx{st: st}
}

func (tx *Tx) setNode(loc Location, b Bucket) error {
	prev, err := tx.st.Tree.Node(loc)
	if err != nil {
		return err
	}
	prev = prev.Clone()
	if err := tx.st.Tree.SetNode(loc, b); err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() error {
		return tx.st.Tree.SetNode(loc, prev)
	})
	return nil
}

func (tx *Tx) update(key Key, loc Location) error {
	prev, had := tx.st.Map.Get(key)
	if err := tx.st.Map.Update(key, loc); err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() error {
		if had {
			return tx.st.Map.Update(key, prev)
		}
		return tx.st.Map.Remove(key)
	})
	return nil
}

func (tx *Tx) remove(key Key) error {
	prev, had := tx.st.Map.Get(key)
	if !had {
		return nil
	}
	if err := tx.st.Map.Remove(key); err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() error {
		return tx.st.Map.Update(key, prev)
	})
	return nil
}

func (tx *Tx) park(key Key, value []byte, orig Location) {
	tx.parked, tx.parkedValue, tx.hasParked, tx.orig = key, value, true, orig
}

// Commit makes the access final.
func (tx *Tx) Commit() {
	if tx.done {
		return
	}
	tx.done = true
	tx.undo = nil
	tx.parkedValue = nil
	if tx.hasResidue {
		tx.st.Stash.Remove(tx.residue)
	}
}

// Rollback undoes the access. If the journal cannot be replayed the accessed
// block is moved to the stash, its old node is cleared and its map entry
// dropped, so the stash copy is the only one; ErrRollbackFailed is returned
// in that case. When the stash is full as well the block stays where the
// partial undo left it and ErrStashOverflow is joined to the error.
func (tx *Tx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true

	var errs []error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](); err != nil {
			errs = append(errs, err)
		}
	}
	tx.undo = nil

	value := tx.parkedValue
	tx.parkedValue = nil
	if len(errs) == 0 {
		return nil
	}

	if tx.hasParked {
		if err := tx.st.Stash.Add(tx.parked, value); err != nil {
			errs = append(errs, err)
		} else {
			if err := tx.st.Tree.SetNode(tx.orig, nil); err != nil {
				errs = append(errs, err)
			}
			if err := tx.st.Map.Remove(tx.parked); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrRollbackFailed, errors.Join(errs...))
}

// abort rolls tx back and reports cause, together with any rollback failure.
func (tx *Tx) abort(cause error) error {
	if err := tx.Rollback(); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
