package oram

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkJoin(t *testing.T) {
	const width = 8
	tests := []struct {
		name       string
		value      []byte
		wantBlocks int
	}{
		{"empty", nil, 1},
		{"fits with header", []byte("abcd"), 1},
		{"one over", []byte("abcde"), 2},
		{"long", bytes.Repeat([]byte{0xab}, 100), 13},
		{"trailing zeros", []byte{1, 0, 0, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, err := chunk(tt.value, width)
			require.NoError(t, err)
			assert.Len(t, blocks, tt.wantBlocks)
			for _, b := range blocks {
				assert.Len(t, b, width)
			}

			got, err := join(blocks, width)
			require.NoError(t, err)
			assert.Equal(t, len(tt.value), len(got))
			assert.True(t, bytes.Equal(tt.value, got))
		})
	}
}

func TestJoin_Malformed(t *testing.T) {
	_, err := join([][]byte{{1, 2, 3}}, 8)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	// Length prefix larger than the payload.
	_, err = join([][]byte{{0, 0, 0, 200, 0, 0, 0, 0}}, 8)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = join(nil, 8)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = chunk([]byte("x"), 0)
	assert.ErrorIs(t, err, ErrInvalidBlockWidth)
}

func TestChunk_ValueTooLarge(t *testing.T) {
	prev := maxValueLen
	maxValueLen = 4
	defer func() { maxValueLen = prev }()

	_, err := chunk([]byte("abcd"), 8)
	require.NoError(t, err)
	_, err = chunk([]byte("abcde"), 8)
	assert.ErrorIs(t, err, ErrValueTooLarge)

	st := newTestState(t, 2, 0)
	_, err = Access(st, newXorCipher(), seeded(1), OpPut, "big", []byte("abcde"))
	assert.ErrorIs(t, err, ErrValueTooLarge)
	assert.Equal(t, 0, st.Map.Len())
}

func TestSealOpen(t *testing.T) {
	c := newXorCipher()
	b, err := seal(c, []byte("hello world"))
	require.NoError(t, err)
	assert.False(t, b.Empty())

	got, err := open(c, b)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)

	empty, err := seal(c, nil)
	require.NoError(t, err)
	assert.False(t, empty.Empty(), "an empty value must not look like a dummy bucket")
}
