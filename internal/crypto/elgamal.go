// Package crypto provides the threshold cryptosystem used to seal tree buckets.
//
// Blocks are embedded into Ed25519 points and ElGamal-encrypted under a public
// key whose secret is Shamir-shared between a fixed number of holders. Any
// threshold-sized subset of the shares can decrypt; the storage server never
// holds any share.
package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/util/random"
)

// GroupBits is the bit length of the Ed25519 group order representation.
const GroupBits = 256

var (
	ErrInvalidThreshold   = errors.New("invalid threshold parameters")
	ErrInvalidBitLength   = errors.New("unsupported key bit length")
	ErrInvalidBlock       = errors.New("plaintext block does not match block width")
	ErrMalformed          = errors.New("malformed ciphertext")
	ErrNotEnoughShares    = errors.New("not enough key shares to decrypt")
	ErrInvalidPublicKey   = errors.New("invalid public key encoding")
	ErrDecryptionFailed   = errors.New("block decryption failed")
	ErrPublicKeyMissing   = errors.New("public key is required")
	errUnexpectedEmbedLen = errors.New("decrypted point carries a short block")
)

// Suite is the group every key and ciphertext of this package lives in.
var Suite = edwards25519.NewBlakeSHA256Ed25519()

// pointSize is the marshalled size of one group element.
var pointSize = Suite.PointLen()

// KeyShare is one holder's share of the private key.
type KeyShare = share.PriShare

// PublicKey is the ElGamal public key together with its sharing parameters.
type PublicKey struct {
	X         kyber.Point
	Threshold int
	Shares    int
}

// BlockWidth returns how many plaintext bytes fit into one ciphertext.
func BlockWidth() int {
	return Suite.Point().EmbedLen()
}

// GenerateKeys creates a fresh key pair and splits the private key into
// shares, any threshold of which can decrypt. bitLength may be 0 to select the
// group default; any other value must equal GroupBits.
func GenerateKeys(bitLength, threshold, shares int) (*PublicKey, []*KeyShare, error) {
	if bitLength != 0 && bitLength != GroupBits {
		return nil, nil, fmt.Errorf("%w: %d (group uses %d)", ErrInvalidBitLength, bitLength, GroupBits)
	}
	if threshold < 1 || shares < threshold {
		return nil, nil, fmt.Errorf("%w: threshold=%d shares=%d", ErrInvalidThreshold, threshold, shares)
	}

	stream := random.New()
	secret := Suite.Scalar().Pick(stream)
	poly := share.NewPriPoly(Suite, threshold, secret, stream)

	pk := &PublicKey{
		X:         Suite.Point().Mul(secret, nil),
		Threshold: threshold,
		Shares:    shares,
	}
	return pk, poly.Shares(shares), nil
}

// Encrypt seals a single plaintext block of exactly BlockWidth bytes.
func Encrypt(pk *PublicKey, block []byte) (Ciphertext, error) {
	var ct Ciphertext
	if pk == nil || pk.X == nil {
		return ct, ErrPublicKeyMissing
	}
	if len(block) != BlockWidth() {
		return ct, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidBlock, len(block), BlockWidth())
	}

	stream := random.New()
	M := Suite.Point().Embed(block, stream)

	k := Suite.Scalar().Pick(stream) // ephemeral private key
	K := Suite.Point().Mul(k, nil)   // ephemeral DH public key
	S := Suite.Point().Mul(k, pk.X)  // ephemeral DH shared secret
	C := S.Add(S, M)                 // message blinded with secret

	if err := ct.set(K, C); err != nil {
		return ct, err
	}
	return ct, nil
}

// EncryptMany seals every block in order.
func EncryptMany(pk *PublicKey, blocks [][]byte) ([]Ciphertext, error) {
	out := make([]Ciphertext, len(blocks))
	for i, b := range blocks {
		ct, err := Encrypt(pk, b)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt block %d: %w", i, err)
		}
		out[i] = ct
	}
	return out, nil
}

// Decrypt opens every ciphertext with the given key shares. At least
// pk.Threshold distinct shares are required; nil shares and shares without a
// value are ignored.
func Decrypt(pk *PublicKey, shares []*KeyShare, cts []Ciphertext) ([][]byte, error) {
	if pk == nil || pk.X == nil {
		return nil, ErrPublicKeyMissing
	}
	if countShares(shares) < pk.Threshold {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughShares, countShares(shares), pk.Threshold)
	}

	out := make([][]byte, len(cts))
	for i := range cts {
		block, err := decryptOne(pk, shares, cts[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt block %d: %w", i, err)
		}
		out[i] = block
	}
	return out, nil
}

func decryptOne(pk *PublicKey, shares []*KeyShare, ct Ciphertext) ([]byte, error) {
	K, C, err := ct.points()
	if err != nil {
		return nil, err
	}

	// Each holder contributes x_i*K; interpolating them yields x*K.
	partials := make([]*share.PubShare, 0, len(shares))
	for _, s := range shares {
		if s == nil || s.V == nil {
			continue
		}
		partials = append(partials, &share.PubShare{
			I: s.I,
			V: Suite.Point().Mul(s.V, K),
		})
	}
	S, err := share.RecoverCommit(Suite, partials, pk.Threshold, pk.Shares)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	M := Suite.Point().Sub(C, S)
	block, err := M.Data()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(block) != BlockWidth() {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, errUnexpectedEmbedLen)
	}
	return block, nil
}

func countShares(shares []*KeyShare) int {
	seen := make(map[int]struct{}, len(shares))
	for _, s := range shares {
		if s != nil && s.V != nil {
			seen[s.I] = struct{}{}
		}
	}
	return len(seen)
}

// MarshalBinary encodes the key as X || threshold || shares.
func (pk *PublicKey) MarshalBinary() ([]byte, error) {
	if pk == nil || pk.X == nil {
		return nil, ErrPublicKeyMissing
	}
	x, err := pk.X.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public point: %w", err)
	}
	buf := make([]byte, len(x)+8)
	copy(buf, x)
	binary.BigEndian.PutUint32(buf[len(x):], uint32(pk.Threshold))
	binary.BigEndian.PutUint32(buf[len(x)+4:], uint32(pk.Shares))
	return buf, nil
}

// UnmarshalPublicKey decodes a key produced by MarshalBinary.
func UnmarshalPublicKey(data []byte) (*PublicKey, error) {
	if len(data) != pointSize+8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPublicKey, len(data))
	}
	X := Suite.Point()
	if err := X.UnmarshalBinary(data[:pointSize]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	pk := &PublicKey{
		X:         X,
		Threshold: int(binary.BigEndian.Uint32(data[pointSize:])),
		Shares:    int(binary.BigEndian.Uint32(data[pointSize+4:])),
	}
	if pk.Threshold < 1 || pk.Shares < pk.Threshold {
		return nil, fmt.Errorf("%w: threshold=%d shares=%d", ErrInvalidPublicKey, pk.Threshold, pk.Shares)
	}
	return pk, nil
}

// Equal reports whether both keys encode the same point and parameters.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	return pk.Threshold == other.Threshold && pk.Shares == other.Shares && pk.X.Equal(other.X)
}
