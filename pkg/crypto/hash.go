// Package crypto provides cryptographic primitives for the tokengate engine:
// BLAKE3 digests, domain-separated message hashing, and recoverable
// secp256k1 ECDSA signatures used as the ownership-proof gate.
package crypto

import (
	"github.com/monte1s/tokengate/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
