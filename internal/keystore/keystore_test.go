package keystore

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestGenerateMnemonic(t *testing.T) {
	m1, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	if words := strings.Fields(m1); len(words) != 24 {
		t.Errorf("word count = %d, want 24", len(words))
	}
	if !ValidateMnemonic(m1) {
		t.Error("generated mnemonic should validate")
	}

	m2, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	if m1 == m2 {
		t.Error("two generated mnemonics should not be identical")
	}
}

func TestValidateMnemonic(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		valid    bool
	}{
		{
			name:     "valid 12-word BIP-39",
			mnemonic: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
			valid:    true,
		},
		{name: "empty string", mnemonic: "", valid: false},
		{name: "random words", mnemonic: "not a valid mnemonic phrase at all", valid: false},
		{name: "single word", mnemonic: "abandon", valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateMnemonic(tt.mnemonic); got != tt.valid {
				t.Errorf("ValidateMnemonic() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestDeriveIdentityKeyDeterministic(t *testing.T) {
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	if len(seed) != SeedSize {
		t.Fatalf("seed length = %d, want %d", len(seed), SeedSize)
	}

	k1, err := DeriveIdentityKey(seed, 0)
	if err != nil {
		t.Fatalf("DeriveIdentityKey() error: %v", err)
	}
	k2, err := DeriveIdentityKey(seed, 0)
	if err != nil {
		t.Fatalf("DeriveIdentityKey() error: %v", err)
	}
	if k1.Address() != k2.Address() {
		t.Error("same seed and index should derive the same key")
	}

	k3, err := DeriveIdentityKey(seed, 1)
	if err != nil {
		t.Fatalf("DeriveIdentityKey() error: %v", err)
	}
	if k1.Address() == k3.Address() {
		t.Error("different indices should derive different keys")
	}

	if _, err := DeriveIdentityKey(seed[:32], 0); err == nil {
		t.Error("short seed should be rejected")
	}
}

func TestSealRoundtrip(t *testing.T) {
	plaintext := []byte("the identity seed material")
	password := []byte("correct horse battery staple")

	sealed, err := seal(plaintext, password, DefaultKDFParams())
	if err != nil {
		t.Fatalf("seal() error: %v", err)
	}
	got, err := open(sealed, password)
	if err != nil {
		t.Fatalf("open() error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("open() = %q, want %q", got, plaintext)
	}

	if _, err := open(sealed, []byte("wrong password")); err == nil {
		t.Fatal("open() with wrong password should fail")
	}
	if _, err := open(sealed[:10], password); err == nil {
		t.Fatal("open() on truncated data should fail")
	}

	// Tampering with the ciphertext must break authentication.
	sealed[len(sealed)-1] ^= 0x01
	if _, err := open(sealed, password); err == nil {
		t.Fatal("open() on tampered data should fail")
	}
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	password := []byte("hunter2hunter2")

	// Fast KDF parameters keep the test quick.
	params := KDFParams{Memory: 64, Iterations: 1, Parallelism: 1}

	addr, err := store.Create("alice", seed, password, params)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if addr.IsZero() {
		t.Fatal("Create() returned a zero address")
	}

	if _, err := store.Create("alice", seed, password, params); !errors.Is(err, ErrIdentityExists) {
		t.Fatalf("duplicate Create() error = %v, want ErrIdentityExists", err)
	}

	names, err := store.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(names) != 1 || names[0] != "alice" {
		t.Fatalf("List() = %v, want [alice]", names)
	}

	recorded, err := store.Address("alice")
	if err != nil {
		t.Fatalf("Address() error: %v", err)
	}
	if recorded != addr {
		t.Fatalf("Address() = %s, want %s", recorded, addr)
	}

	priv, err := store.Unlock("alice", password)
	if err != nil {
		t.Fatalf("Unlock() error: %v", err)
	}
	if priv.Address() != addr {
		t.Fatalf("unlocked key address = %s, want %s", priv.Address(), addr)
	}

	if _, err := store.Unlock("alice", []byte("wrong")); err == nil {
		t.Fatal("Unlock() with wrong password should fail")
	}
	if _, err := store.Unlock("bob", password); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("Unlock() missing identity error = %v, want ErrIdentityNotFound", err)
	}

	if err := store.Delete("alice"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := store.Delete("alice"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrIdentityNotFound", err)
	}
}
