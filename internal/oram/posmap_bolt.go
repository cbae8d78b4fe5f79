package oram

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var positionsBucket = []byte("positions")

// BoltPositionMap is a PositionMap persisted in a bbolt file so that a client
// can recover its index after a restart. Reads are served from memory; every
// change is written through before it becomes visible.
type BoltPositionMap struct {
	db  *bolt.DB
	mem *MemoryPositionMap
}

// OpenBoltPositionMap opens (or creates) the position map stored at path.
func OpenBoltPositionMap(path string) (*BoltPositionMap, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open position map: %w", err)
	}

	mem := NewMemoryPositionMap()
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(positionsBucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			loc, err := decodeLocation(v)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			return mem.Update(Key(k), loc)
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load position map: %w", err)
	}

	return &BoltPositionMap{db: db, mem: mem}, nil
}

// Get returns the location for key.
func (p *BoltPositionMap) Get(key Key) (Location, bool) {
	return p.mem.Get(key)
}

// Update persists and then applies key -> loc.
func (p *BoltPositionMap) Update(key Key, loc Location) error {
	if other, ok := p.mem.owner[loc]; ok && other != key {
		return fmt.Errorf("%w: %s held by %q", ErrLocationInUse, loc, other)
	}
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(positionsBucket).Put([]byte(key), encodeLocation(loc))
	})
	if err != nil {
		return fmt.Errorf("failed to persist position: %w", err)
	}
	return p.mem.Update(key, loc)
}

// Remove persists and then applies the removal of key.
func (p *BoltPositionMap) Remove(key Key) error {
	if _, ok := p.mem.Get(key); !ok {
		return nil
	}
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(positionsBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return p.mem.Remove(key)
}

// Len returns the number of mapped keys.
func (p *BoltPositionMap) Len() int {
	return p.mem.Len()
}

// Keys returns the mapped keys in sorted order.
func (p *BoltPositionMap) Keys() []Key {
	return p.mem.Keys()
}

// Close releases the underlying file.
func (p *BoltPositionMap) Close() error {
	return p.db.Close()
}

func encodeLocation(loc Location) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(loc.Level))
	binary.BigEndian.PutUint64(buf[8:], uint64(loc.Index))
	return buf
}

func decodeLocation(data []byte) (Location, error) {
	if len(data) != 16 {
		return Location{}, fmt.Errorf("%w: location record is %d bytes", ErrMalformedPayload, len(data))
	}
	return Location{
		Level: int(binary.BigEndian.Uint64(data[:8])),
		Index: int(binary.BigEndian.Uint64(data[8:])),
	}, nil
}
