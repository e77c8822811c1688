package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	klog "github.com/monte1s/tokengate/internal/log"
	"github.com/monte1s/tokengate/pkg/crypto"
	"github.com/monte1s/tokengate/pkg/types"
)

var (
	ErrIdentityExists   = errors.New("identity already exists")
	ErrIdentityNotFound = errors.New("identity not found")
)

// identityFile is the on-disk JSON format for a sealed identity.
type identityFile struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	SealedSeed []byte    `json:"sealed_seed"`
	KeyIndex   uint32    `json:"key_index"`
	Address    string    `json:"address"` // advisory; re-derived on unlock
}

// Store manages sealed identity files in a directory, one file per
// identity name.
type Store struct {
	dir string
}

// NewStore opens a keystore directory, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) identityPath(name string) string {
	return filepath.Join(s.dir, name+".key")
}

// Create seals the seed under the password and writes a new identity
// file. The derived address is recorded for display; unlock always
// re-derives it from the seed.
func (s *Store) Create(name string, seed, password []byte, params KDFParams) (types.Address, error) {
	path := s.identityPath(name)
	if _, err := os.Stat(path); err == nil {
		return types.Address{}, fmt.Errorf("%w: %q", ErrIdentityExists, name)
	}

	addr, err := IdentityAddress(seed, 0)
	if err != nil {
		return types.Address{}, err
	}
	sealed, err := seal(seed, password, params)
	if err != nil {
		return types.Address{}, fmt.Errorf("seal seed: %w", err)
	}

	f := identityFile{
		Version:    1,
		CreatedAt:  time.Now().UTC(),
		SealedSeed: sealed,
		KeyIndex:   0,
		Address:    addr.String(),
	}
	if err := s.write(path, &f); err != nil {
		return types.Address{}, err
	}
	klog.Keystore.Info().Str("identity", name).Str("address", addr.String()).Msg("identity created")
	return addr, nil
}

// Unlock decrypts an identity and returns its signing key. The caller
// should Zero the key when done with it.
func (s *Store) Unlock(name string, password []byte) (*crypto.PrivateKey, error) {
	f, err := s.read(s.identityPath(name))
	if err != nil {
		return nil, err
	}
	seed, err := open(f.SealedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("unlock identity %q: %w", name, err)
	}
	defer zero(seed)
	return DeriveIdentityKey(seed, f.KeyIndex)
}

// Address returns the recorded address of an identity without unlocking it.
func (s *Store) Address(name string) (types.Address, error) {
	f, err := s.read(s.identityPath(name))
	if err != nil {
		return types.Address{}, err
	}
	return types.ParseAddress(f.Address)
}

// List returns the names of all identities in the store.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".key" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes an identity file. The seed is unrecoverable afterwards
// unless the mnemonic was kept elsewhere.
func (s *Store) Delete(name string) error {
	path := s.identityPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrIdentityNotFound, name)
	}
	return os.Remove(path)
}

func (s *Store) write(path string, f *identityFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

func (s *Store) read(path string) (*identityFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	if f.Version != 1 {
		return nil, fmt.Errorf("unsupported identity file version: %d", f.Version)
	}
	return &f, nil
}
