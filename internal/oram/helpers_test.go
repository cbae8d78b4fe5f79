package oram

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mundrapranay/oblivious-tree/internal/crypto"
)

var errInjected = errors.New("injected failure")

// xorCipher is a fast stand-in for the real cryptosystem: it copies the block
// into the ciphertext and masks it with a constant.
type xorCipher struct {
	width       int
	failEncrypt bool
	failDecrypt bool
}

func newXorCipher() *xorCipher {
	return &xorCipher{width: 8}
}

func (x *xorCipher) BlockWidth() int { return x.width }

func (x *xorCipher) EncryptMany(blocks [][]byte) ([]crypto.Ciphertext, error) {
	if x.failEncrypt {
		return nil, errInjected
	}
	out := make([]crypto.Ciphertext, len(blocks))
	for i, b := range blocks {
		out[i][0] = byte(len(b))
		for j := range b {
			out[i][j+1] = b[j] ^ 0x5a
		}
	}
	return out, nil
}

func (x *xorCipher) DecryptMany(cts []crypto.Ciphertext) ([][]byte, error) {
	if x.failDecrypt {
		return nil, errInjected
	}
	out := make([][]byte, len(cts))
	for i, ct := range cts {
		n := int(ct[0])
		b := make([]byte, n)
		for j := range b {
			b[j] = ct[j+1] ^ 0x5a
		}
		out[i] = b
	}
	return out, nil
}

// flakyMap wraps a position map and fails writes on demand.
type flakyMap struct {
	*MemoryPositionMap
	failUpdate bool
	failRemove bool
}

func (f *flakyMap) Update(key Key, loc Location) error {
	if f.failUpdate {
		return errInjected
	}
	return f.MemoryPositionMap.Update(key, loc)
}

func (f *flakyMap) Remove(key Key) error {
	if f.failRemove {
		return errInjected
	}
	return f.MemoryPositionMap.Remove(key)
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func newTestState(t *testing.T, depth, stashCap int) *State {
	t.Helper()
	st, err := NewState(depth, stashCap)
	require.NoError(t, err)
	return st
}

// snapshot captures every node so tests can assert nothing changed.
func snapshot(t *testing.T, st *State) [][]Bucket {
	t.Helper()
	out := make([][]Bucket, st.Tree.Depth()+1)
	for l := range out {
		lvl, err := st.Tree.Level(l)
		require.NoError(t, err)
		out[l] = lvl
	}
	return out
}

func positions(st *State) map[Key]Location {
	out := make(map[Key]Location)
	for _, k := range st.Map.Keys() {
		loc, _ := st.Map.Get(k)
		out[k] = loc
	}
	return out
}
