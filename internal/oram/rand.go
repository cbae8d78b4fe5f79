package oram

import (
	crand "crypto/rand"
	"math/rand/v2"

	"github.com/mundrapranay/oblivious-tree/internal/crypto"
)

// Rand is the randomness the protocol draws locations from. *rand.Rand from
// math/rand/v2 satisfies it; tests pass a seeded generator.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// NewRand returns a ChaCha8 generator seeded from the operating system.
func NewRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return rand.New(rand.NewChaCha8(seed))
}

// Cipher seals and opens fixed-width plaintext blocks.
type Cipher interface {
	// BlockWidth is the plaintext size of one block in bytes.
	BlockWidth() int
	EncryptMany(blocks [][]byte) ([]crypto.Ciphertext, error)
	DecryptMany(cts []crypto.Ciphertext) ([][]byte, error)
}
