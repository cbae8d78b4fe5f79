package oram

import (
	"encoding/binary"
	"fmt"
	"math"
)

// frameHeader is the size of the length prefix written before a value.
const frameHeader = 4

// maxValueLen is the longest value the length prefix can describe.
var maxValueLen uint64 = math.MaxUint32

// chunk frames value as length || value, pads with zeros to a multiple of
// width and splits it into width-sized blocks. The result is never empty.
func chunk(value []byte, width int) ([][]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockWidth, width)
	}
	if uint64(len(value)) > maxValueLen {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrValueTooLarge, len(value), maxValueLen)
	}
	n := frameHeader + len(value)
	blocks := (n + width - 1) / width

	frame := make([]byte, blocks*width)
	binary.BigEndian.PutUint32(frame, uint32(len(value)))
	copy(frame[frameHeader:], value)

	out := make([][]byte, blocks)
	for i := range out {
		out[i] = frame[i*width : (i+1)*width]
	}
	return out, nil
}

// join reverses chunk.
func join(blocks [][]byte, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockWidth, width)
	}
	frame := make([]byte, 0, len(blocks)*width)
	for i, b := range blocks {
		if len(b) != width {
			return nil, fmt.Errorf("%w: block %d is %d bytes, want %d", ErrMalformedPayload, i, len(b), width)
		}
		frame = append(frame, b...)
	}
	if len(frame) < frameHeader {
		return nil, fmt.Errorf("%w: missing length prefix", ErrMalformedPayload)
	}
	n := int(binary.BigEndian.Uint32(frame))
	if n > len(frame)-frameHeader {
		return nil, fmt.Errorf("%w: length %d exceeds %d payload bytes", ErrMalformedPayload, n, len(frame)-frameHeader)
	}
	value := make([]byte, n)
	copy(value, frame[frameHeader:frameHeader+n])
	return value, nil
}

// seal chunks and encrypts value into a bucket.
func seal(c Cipher, value []byte) (Bucket, error) {
	blocks, err := chunk(value, c.BlockWidth())
	if err != nil {
		return nil, err
	}
	cts, err := c.EncryptMany(blocks)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt bucket: %w", err)
	}
	return Bucket(cts), nil
}

// open decrypts and reassembles a bucket written by seal.
func open(c Cipher, b Bucket) ([]byte, error) {
	blocks, err := c.DecryptMany(b)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt bucket: %w", err)
	}
	return join(blocks, c.BlockWidth())
}
