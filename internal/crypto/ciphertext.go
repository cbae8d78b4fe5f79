package crypto

import (
	"fmt"

	"go.dedis.ch/kyber/v3"
)

// CiphertextSize is the encoded size of one ElGamal ciphertext (K || C).
const CiphertextSize = 64

// Ciphertext is one sealed plaintext block: the ephemeral key K followed by
// the blinded message C, both as marshalled Ed25519 points.
type Ciphertext [CiphertextSize]byte

func (ct *Ciphertext) set(K, C kyber.Point) error {
	k, err := K.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal ephemeral key: %w", err)
	}
	c, err := C.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal blinded message: %w", err)
	}
	if len(k)+len(c) != CiphertextSize {
		return fmt.Errorf("%w: encoded points are %d bytes", ErrMalformed, len(k)+len(c))
	}
	copy(ct[:len(k)], k)
	copy(ct[len(k):], c)
	return nil
}

func (ct *Ciphertext) points() (K, C kyber.Point, err error) {
	K = Suite.Point()
	if err := K.UnmarshalBinary(ct[:pointSize]); err != nil {
		return nil, nil, fmt.Errorf("%w: ephemeral key: %v", ErrMalformed, err)
	}
	C = Suite.Point()
	if err := C.UnmarshalBinary(ct[pointSize:]); err != nil {
		return nil, nil, fmt.Errorf("%w: blinded message: %v", ErrMalformed, err)
	}
	return K, C, nil
}
