// Package registry implements the registration ledger: the one-shot
// identity-to-key mapping every restricted transfer and sale purchase is
// gated on. An identity registers a key exactly once, proving possession
// of its signing credential via a recoverable signature over the key's
// domain-separated digest.
package registry

import (
	"errors"
	"fmt"

	"github.com/monte1s/tokengate/internal/events"
	klog "github.com/monte1s/tokengate/internal/log"
	"github.com/monte1s/tokengate/internal/storage"
	"github.com/monte1s/tokengate/pkg/crypto"
	"github.com/monte1s/tokengate/pkg/types"
	"github.com/rs/zerolog"
)

// Registration errors.
var (
	ErrAlreadyRegistered = errors.New("identity already registered")
	ErrInvalidSignature  = errors.New("signature does not prove key ownership")
)

var prefixEntry = []byte("r/") // r/<identity(20)> -> key(32)

// Ledger maps identities to their registered keys.
type Ledger struct {
	db     storage.DB
	feed   events.Emitter
	logger zerolog.Logger
}

// New creates a registration ledger.
func New(db storage.DB, feed events.Emitter) *Ledger {
	return &Ledger{db: db, feed: feed, logger: klog.Registry}
}

// Register stores key as id's registered key. The signature must be a
// recoverable signature over the domain-separated digest of key, produced
// by id's own credential. An identity can register at most once; the
// stored key is never overwritten.
func (l *Ledger) Register(id types.Address, key types.Key, signature []byte) error {
	registered, err := l.IsRegistered(id)
	if err != nil {
		return err
	}
	if registered {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	signer, err := crypto.Recover(crypto.KeyDigest(key), signature)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidSignatureLength) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != id {
		return fmt.Errorf("%w: recovered %s, want %s", ErrInvalidSignature, signer, id)
	}

	if err := l.db.Put(entryKey(id), key.Bytes()); err != nil {
		return fmt.Errorf("store registration: %w", err)
	}

	l.logger.Info().Str("identity", id.String()).Msg("registration set")
	l.feed.Emit(events.TypeRegistrationSet, map[string]string{
		"identity": id.String(),
		"key":      key.String(),
	})
	return nil
}

// IsRegistered reports whether id has a registered key.
func (l *Ledger) IsRegistered(id types.Address) (bool, error) {
	ok, err := l.db.Has(entryKey(id))
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return ok, nil
}

// Lookup returns id's registered key, or the zero key if id has no
// registration. Callers must treat the zero key as "absent".
func (l *Ledger) Lookup(id types.Address) (types.Key, error) {
	raw, err := l.db.Get(entryKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return types.Key{}, nil
	}
	if err != nil {
		return types.Key{}, fmt.Errorf("lookup registration: %w", err)
	}
	var key types.Key
	if len(raw) != types.KeySize {
		return types.Key{}, fmt.Errorf("corrupt registration entry for %s: %d bytes", id, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func entryKey(id types.Address) []byte {
	key := make([]byte, len(prefixEntry)+types.AddressSize)
	copy(key, prefixEntry)
	copy(key[len(prefixEntry):], id[:])
	return key
}
