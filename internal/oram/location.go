package oram

import "fmt"

// Key identifies a logical value stored in the tree.
type Key string

// Location addresses one bucket: level 0 is the root and level l holds 2^l
// buckets indexed from the left.
type Location struct {
	Level int
	Index int
}

func (l Location) String() string {
	return fmt.Sprintf("(%d,%d)", l.Level, l.Index)
}

// Item is a key/value pair handed to Initialize.
type Item struct {
	Key   Key
	Value []byte
}
