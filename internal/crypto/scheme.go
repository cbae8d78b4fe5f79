package crypto

import "fmt"

// Scheme bundles a public key with the key shares a client holds locally,
// giving encryption and threshold decryption behind one value.
type Scheme struct {
	pk     *PublicKey
	shares []*KeyShare
}

// NewScheme generates a fresh key and keeps every share locally. bitLength
// follows GenerateKeys.
func NewScheme(bitLength, threshold, shares int) (*Scheme, error) {
	pk, ks, err := GenerateKeys(bitLength, threshold, shares)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keys: %w", err)
	}
	return &Scheme{pk: pk, shares: ks}, nil
}

// NewSchemeFromKeys wraps an existing key and the shares available to the
// caller. Decryption fails until at least pk.Threshold shares are present.
func NewSchemeFromKeys(pk *PublicKey, shares []*KeyShare) (*Scheme, error) {
	if pk == nil || pk.X == nil {
		return nil, ErrPublicKeyMissing
	}
	return &Scheme{pk: pk, shares: shares}, nil
}

// PublicKey returns the scheme's public key.
func (s *Scheme) PublicKey() *PublicKey {
	return s.pk
}

// BlockWidth returns the plaintext block width in bytes.
func (s *Scheme) BlockWidth() int {
	return BlockWidth()
}

// EncryptMany seals blocks under the scheme's public key.
func (s *Scheme) EncryptMany(blocks [][]byte) ([]Ciphertext, error) {
	return EncryptMany(s.pk, blocks)
}

// DecryptMany opens ciphertexts with the locally held shares.
func (s *Scheme) DecryptMany(cts []Ciphertext) ([][]byte, error) {
	return Decrypt(s.pk, s.shares, cts)
}
