package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, BlockWidth())
}

func TestBlockWidth(t *testing.T) {
	// Ed25519 embeds 29 bytes of data per point.
	assert.Equal(t, 29, BlockWidth())
}

func TestGenerateKeys_InvalidParams(t *testing.T) {
	_, _, err := GenerateKeys(0, 0, 3)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, _, err = GenerateKeys(0, 4, 3)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, _, err = GenerateKeys(1024, 2, 3)
	assert.ErrorIs(t, err, ErrInvalidBitLength)

	pk, shares, err := GenerateKeys(GroupBits, 2, 3)
	require.NoError(t, err)
	assert.Len(t, shares, 3)
	assert.Equal(t, 2, pk.Threshold)
	assert.Equal(t, 3, pk.Shares)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	pk, shares, err := GenerateKeys(0, 3, 3)
	require.NoError(t, err)

	blocks := [][]byte{block(0x00), block(0x11), block(0xff)}
	cts, err := EncryptMany(pk, blocks)
	require.NoError(t, err)
	require.Len(t, cts, 3)

	got, err := Decrypt(pk, shares, cts)
	require.NoError(t, err)
	assert.Equal(t, blocks, got)
}

func TestEncrypt_Randomized(t *testing.T) {
	pk, _, err := GenerateKeys(0, 1, 1)
	require.NoError(t, err)

	a, err := Encrypt(pk, block(0x42))
	require.NoError(t, err)
	b, err := Encrypt(pk, block(0x42))
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "same block must not produce the same ciphertext")
}

func TestEncrypt_WrongWidth(t *testing.T) {
	pk, _, err := GenerateKeys(0, 1, 1)
	require.NoError(t, err)

	_, err = Encrypt(pk, []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidBlock)

	_, err = Encrypt(nil, block(1))
	assert.ErrorIs(t, err, ErrPublicKeyMissing)
}

func TestDecrypt_ThresholdSubset(t *testing.T) {
	pk, shares, err := GenerateKeys(0, 2, 4)
	require.NoError(t, err)

	cts, err := EncryptMany(pk, [][]byte{block(7)})
	require.NoError(t, err)

	// Any two shares reconstruct.
	got, err := Decrypt(pk, []*KeyShare{shares[1], shares[3]}, cts)
	require.NoError(t, err)
	assert.Equal(t, block(7), got[0])

	// One share is not enough.
	_, err = Decrypt(pk, shares[:1], cts)
	assert.ErrorIs(t, err, ErrNotEnoughShares)

	// The same share twice still counts once.
	_, err = Decrypt(pk, []*KeyShare{shares[0], shares[0]}, cts)
	assert.ErrorIs(t, err, ErrNotEnoughShares)
}

func TestDecrypt_SkipsEmptyShares(t *testing.T) {
	pk, shares, err := GenerateKeys(0, 2, 3)
	require.NoError(t, err)
	cts, err := EncryptMany(pk, [][]byte{block(0x33)})
	require.NoError(t, err)

	withEmpty := []*KeyShare{shares[0], nil, {I: shares[1].I}, shares[2]}
	got, err := Decrypt(pk, withEmpty, cts)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{block(0x33)}, got)

	_, err = Decrypt(pk, []*KeyShare{shares[0], {I: shares[1].I}}, cts)
	assert.ErrorIs(t, err, ErrNotEnoughShares)
}

func TestDecrypt_WrongKey(t *testing.T) {
	pk, _, err := GenerateKeys(0, 2, 2)
	require.NoError(t, err)
	_, otherShares, err := GenerateKeys(0, 2, 2)
	require.NoError(t, err)

	cts, err := EncryptMany(pk, [][]byte{block(9)})
	require.NoError(t, err)

	got, err := Decrypt(pk, otherShares, cts)
	if err == nil {
		assert.NotEqual(t, block(9), got[0])
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	pk, shares, err := GenerateKeys(0, 1, 1)
	require.NoError(t, err)

	// Find an encoding that is not a curve point.
	var ct Ciphertext
	found := false
	for i := 2; i < 256 && !found; i++ {
		var enc [32]byte
		enc[0] = byte(i)
		if Suite.Point().UnmarshalBinary(enc[:]) != nil {
			copy(ct[:32], enc[:])
			found = true
		}
	}
	require.True(t, found)

	_, err = Decrypt(pk, shares, []Ciphertext{ct})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPublicKey_MarshalRoundTrip(t *testing.T) {
	pk, _, err := GenerateKeys(0, 2, 3)
	require.NoError(t, err)

	data, err := pk.MarshalBinary()
	require.NoError(t, err)

	decoded, err := UnmarshalPublicKey(data)
	require.NoError(t, err)
	assert.True(t, pk.Equal(decoded))

	_, err = UnmarshalPublicKey(data[:10])
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestScheme(t *testing.T) {
	s, err := NewScheme(GroupBits, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, BlockWidth(), s.BlockWidth())

	cts, err := s.EncryptMany([][]byte{block(1), block(2)})
	require.NoError(t, err)
	got, err := s.DecryptMany(cts)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{block(1), block(2)}, got)

	_, err = NewScheme(512, 3, 3)
	assert.ErrorIs(t, err, ErrInvalidBitLength)

	_, err = NewSchemeFromKeys(nil, nil)
	assert.ErrorIs(t, err, ErrPublicKeyMissing)
}
