package crypto

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/monte1s/tokengate/pkg/types"
)

// SignatureLength is the exact length of a recoverable signature:
// r(32) || s(32) || v(1).
const SignatureLength = 65

// compactRecoveryBase is the legacy offset for the recovery id byte.
// Signatures carrying v < 27 use the modern 0-based encoding and are
// normalized by adding this offset.
const compactRecoveryBase = 27

// ErrInvalidSignatureLength is returned when a signature is not exactly
// SignatureLength bytes.
var ErrInvalidSignatureLength = errors.New("signature must be 65 bytes")

// PrivateKey wraps a secp256k1 private key for recoverable ECDSA signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// Sign produces a recoverable signature over a digest in r || s || v layout,
// with v in the legacy 27/28 encoding.
func (pk *PrivateKey) Sign(digest types.Hash) []byte {
	// SignCompact returns [v, r, s]; reorder to the wire layout [r, s, v].
	compact := secpecdsa.SignCompact(pk.key, digest[:], false)
	sig := make([]byte, SignatureLength)
	copy(sig[:64], compact[1:])
	sig[64] = compact[0]
	return sig
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Address derives the signing identity's address.
func (pk *PrivateKey) Address() types.Address {
	return AddressFromPubKey(pk.PublicKey())
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// Recover returns the identity that signed the given digest.
//
// The signature must be exactly 65 bytes in r(32) || s(32) || v(1) layout.
// A recovery id v below 27 is treated as the modern 0-based encoding and
// normalized by adding 27, so both legacy and modern signers are accepted.
// Recover is pure and deterministic; it is safe to call from read paths.
func Recover(digest types.Hash, signature []byte) (types.Address, error) {
	if len(signature) != SignatureLength {
		return types.Address{}, fmt.Errorf("%w: got %d", ErrInvalidSignatureLength, len(signature))
	}

	v := signature[64]
	if v < compactRecoveryBase {
		v += compactRecoveryBase
	}

	// RecoverCompact expects [v, r, s].
	compact := make([]byte, SignatureLength)
	compact[0] = v
	copy(compact[1:], signature[:64])

	pubKey, _, err := secpecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return types.Address{}, fmt.Errorf("recover pubkey: %w", err)
	}
	return AddressFromPubKey(pubKey.SerializeCompressed()), nil
}
