package oram

import (
	"fmt"

	"github.com/mundrapranay/oblivious-tree/internal/crypto"
)

// Bucket is the content of one tree node: zero or more ciphertext blocks. An
// empty bucket marks a dummy location and is visible as such to the server.
type Bucket []crypto.Ciphertext

// Empty reports whether the bucket holds no blocks.
func (b Bucket) Empty() bool {
	return len(b) == 0
}

// Clone returns an independent copy. Empty buckets clone to nil.
func (b Bucket) Clone() Bucket {
	if len(b) == 0 {
		return nil
	}
	out := make(Bucket, len(b))
	copy(out, b)
	return out
}

// MarshalBinary concatenates the ciphertexts.
func (b Bucket) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, len(b)*crypto.CiphertextSize)
	for i := range b {
		buf = append(buf, b[i][:]...)
	}
	return buf, nil
}

// UnmarshalBucket splits data produced by MarshalBinary back into blocks.
func UnmarshalBucket(data []byte) (Bucket, error) {
	if len(data)%crypto.CiphertextSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedBucket, len(data), crypto.CiphertextSize)
	}
	if len(data) == 0 {
		return nil, nil
	}
	b := make(Bucket, len(data)/crypto.CiphertextSize)
	for i := range b {
		copy(b[i][:], data[i*crypto.CiphertextSize:])
	}
	return b, nil
}
