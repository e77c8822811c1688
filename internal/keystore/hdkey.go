// Package keystore manages encrypted identity keys on disk. An identity
// is a BIP-39 mnemonic whose derived seed is sealed under a password; the
// signing key lives at a fixed BIP-44 path.
package keystore

import (
	"fmt"

	"github.com/monte1s/tokengate/pkg/crypto"
	"github.com/monte1s/tokengate/pkg/types"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the entropy size for 24-word mnemonics.
const MnemonicEntropyBits = 256

// SeedSize is the length of a BIP-39 derived seed in bytes.
const SeedSize = 64

// Identity key derivation path: m/44'/7361'/0'/0/index.
// TODO: register a coin type instead of the 7361 placeholder.
const (
	purposeBIP44 = bip32.FirstHardenedChild + 44
	coinType     = bip32.FirstHardenedChild + 7361
)

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks word count, word list membership and checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// SeedFromMnemonic derives the 512-bit seed from a mnemonic and optional
// passphrase per BIP-39.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}

// DeriveIdentityKey derives the signing key at m/44'/7361'/0'/0/index
// from a seed.
func DeriveIdentityKey(seed []byte, index uint32) (*crypto.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	key := master
	for _, idx := range []uint32{purposeBIP44, coinType, bip32.FirstHardenedChild, 0, index} {
		if key, err = key.NewChildKey(idx); err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
	}

	// bip32 private key material is 33 bytes with a leading zero.
	raw := key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// IdentityAddress derives the address for an identity seed at the given
// key index without keeping the private key around.
func IdentityAddress(seed []byte, index uint32) (types.Address, error) {
	priv, err := DeriveIdentityKey(seed, index)
	if err != nil {
		return types.Address{}, err
	}
	defer priv.Zero()
	return priv.Address(), nil
}
