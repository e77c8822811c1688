package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// KeySize is the length of a registered key in bytes.
const KeySize = 32

// Key is the fixed-width opaque value an identity registers against itself.
// The zero value is the absence sentinel: a lookup that returns a zero key
// means no registration exists.
type Key [KeySize]byte

// IsZero returns true if the key is all zeros (the absence sentinel).
func (k Key) IsZero() bool {
	return k == Key{}
}

// String returns the hex-encoded key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Bytes returns a copy of the key as a byte slice.
func (k Key) Bytes() []byte {
	b := make([]byte, KeySize)
	copy(b, k[:])
	return b
}

// MarshalJSON encodes the key as a hex string.
func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a hex string into a key.
func (k *Key) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*k = Key{}
		return nil
	}
	parsed, err := ParseKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey parses a hex key string.
func ParseKey(s string) (Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("invalid key hex: %w", err)
	}
	if len(b) != KeySize {
		return Key{}, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(b))
	}
	var k Key
	copy(k[:], b)
	return k, nil
}
