package crypto

import "github.com/monte1s/tokengate/pkg/types"

// SignedMessagePrefix is the domain-separation string prepended to every
// message before hashing. A signature over a prefixed digest cannot be
// replayed in a context that uses a different prefix.
const SignedMessagePrefix = "\x19Tokengate Signed Message:\n32"

// MessageDigest computes the domain-separated digest of a raw message:
// BLAKE3(SignedMessagePrefix || message).
func MessageDigest(message []byte) types.Hash {
	buf := make([]byte, 0, len(SignedMessagePrefix)+len(message))
	buf = append(buf, SignedMessagePrefix...)
	buf = append(buf, message...)
	return Hash(buf)
}

// KeyDigest computes the domain-separated digest of a registered key.
// Both the registration proof (signed by the identity itself) and the
// KYC attestation (signed by the KYC authority) sign this digest.
func KeyDigest(key types.Key) types.Hash {
	return MessageDigest(key[:])
}

// RequestDigest computes the digest an RPC caller signs to authenticate a
// mutating request: BLAKE3 over the method name, a separator, and the raw
// params bytes exactly as transmitted. The separator keeps a method name
// from bleeding into the params, and the message prefix keeps request
// signatures out of the key-digest domain.
func RequestDigest(method string, params []byte) types.Hash {
	buf := make([]byte, 0, len(method)+1+len(params))
	buf = append(buf, method...)
	buf = append(buf, 0x00)
	buf = append(buf, params...)
	return MessageDigest(buf)
}
