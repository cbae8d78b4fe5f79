package oram

import (
	"fmt"
	"slices"
)

// PositionMap tracks which location currently holds each resident key.
// Keys held only in the stash or never stored have no entry.
type PositionMap interface {
	// Get returns the location for key, or false if the key has no entry.
	Get(key Key) (Location, bool)

	// Update inserts or overwrites the entry for key. It fails only when loc
	// is already held by a different key, which callers must never cause.
	Update(key Key, loc Location) error

	// Remove deletes the entry for key; unknown keys are a no-op.
	Remove(key Key) error

	// Len returns the number of entries.
	Len() int

	// Keys returns every key with an entry, sorted.
	Keys() []Key
}

// MemoryPositionMap implements PositionMap with Go maps.
type MemoryPositionMap struct {
	m     map[Key]Location
	owner map[Location]Key
}

// NewMemoryPositionMap creates an empty position map.
func NewMemoryPositionMap() *MemoryPositionMap {
	return &MemoryPositionMap{
		m:     make(map[Key]Location),
		owner: make(map[Location]Key),
	}
}

// Get returns the location for key.
func (p *MemoryPositionMap) Get(key Key) (Location, bool) {
	loc, ok := p.m[key]
	return loc, ok
}

// Update assigns key to loc.
func (p *MemoryPositionMap) Update(key Key, loc Location) error {
	if other, ok := p.owner[loc]; ok && other != key {
		return fmt.Errorf("%w: %s held by %q", ErrLocationInUse, loc, other)
	}
	if prev, ok := p.m[key]; ok {
		delete(p.owner, prev)
	}
	p.m[key] = loc
	p.owner[loc] = key
	return nil
}

// Remove deletes key.
func (p *MemoryPositionMap) Remove(key Key) error {
	if loc, ok := p.m[key]; ok {
		delete(p.owner, loc)
		delete(p.m, key)
	}
	return nil
}

// Len returns the number of mapped keys.
func (p *MemoryPositionMap) Len() int {
	return len(p.m)
}

// Keys returns the mapped keys in sorted order.
func (p *MemoryPositionMap) Keys() []Key {
	keys := make([]Key, 0, len(p.m))
	for k := range p.m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
