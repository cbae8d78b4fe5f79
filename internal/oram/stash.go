package oram

import (
	"crypto/subtle"
	"fmt"
)

// StashEntry is a block held by the client outside the tree.
type StashEntry struct {
	Key   Key
	Value []byte
}

// Stash is a bounded client-side buffer of blocks not currently placed in
// the tree. Adding past capacity is rejected; nothing is dropped silently.
type Stash struct {
	capacity int
	entries  []StashEntry
}

// NewStash creates a stash holding at most capacity entries. A negative
// capacity is treated as zero.
func NewStash(capacity int) *Stash {
	if capacity < 0 {
		capacity = 0
	}
	return &Stash{capacity: capacity}
}

// Add appends key/value, failing with ErrStashOverflow when full.
func (s *Stash) Add(key Key, value []byte) error {
	if len(s.entries) >= s.capacity {
		return fmt.Errorf("%w: capacity %d", ErrStashOverflow, s.capacity)
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.entries = append(s.entries, StashEntry{Key: key, Value: v})
	return nil
}

// Get returns the value stored for key. The scan always covers the whole
// stash and compares keys in constant time.
func (s *Stash) Get(key Key) ([]byte, bool) {
	found := -1
	for i := range s.entries {
		if subtle.ConstantTimeCompare([]byte(s.entries[i].Key), []byte(key)) == 1 && found == -1 {
			found = i
		}
	}
	if found == -1 {
		return nil, false
	}
	v := make([]byte, len(s.entries[found].Value))
	copy(v, s.entries[found].Value)
	return v, true
}

// Remove deletes every entry for key.
func (s *Stash) Remove(key Key) {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Key != key {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = StashEntry{}
	}
	s.entries = kept
}

// Len returns the number of entries.
func (s *Stash) Len() int {
	return len(s.entries)
}

// Cap returns the stash capacity.
func (s *Stash) Cap() int {
	return s.capacity
}

// Entries returns a copy of the stash contents in insertion order.
func (s *Stash) Entries() []StashEntry {
	out := make([]StashEntry, len(s.entries))
	for i, e := range s.entries {
		v := make([]byte, len(e.Value))
		copy(v, e.Value)
		out[i] = StashEntry{Key: e.Key, Value: v}
	}
	return out
}

// clear drops every entry.
func (s *Stash) clear() {
	s.entries = nil
}
