// Package bank tracks native-currency balances and forwards sale payments
// to the deposit address.
package bank

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	klog "github.com/monte1s/tokengate/internal/log"
	"github.com/monte1s/tokengate/internal/storage"
	"github.com/monte1s/tokengate/pkg/types"
	"github.com/rs/zerolog"
)

var (
	ErrInsufficientFunds = errors.New("insufficient native funds")
	ErrZeroAmount        = errors.New("amount must be non-zero")
)

// Ledger is a persistent native-currency balance book. It has no notion
// of authorization on its own: callers gate access before moving funds.
type Ledger struct {
	mu     sync.Mutex
	db     storage.DB
	logger zerolog.Logger
}

func New(db storage.DB) *Ledger {
	return &Ledger{db: db, logger: klog.Sale}
}

// Balance returns the native balance of addr. Unknown accounts hold zero.
func (l *Ledger) Balance(addr types.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(addr)
}

// Credit adds amount to addr's balance. Used when a payment arrives.
func (l *Ledger) Credit(addr types.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, err := l.load(addr)
	if err != nil {
		return err
	}
	if _, overflow := bal.AddOverflow(bal, amount); overflow {
		return fmt.Errorf("balance overflow for %s", addr)
	}
	return l.store(addr, bal)
}

// Forward moves amount from one account to another. It satisfies the sale
// engine's payment forwarding hook.
func (l *Ledger) Forward(from, to types.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal, err := l.load(from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, need %s",
			ErrInsufficientFunds, from, fromBal.Dec(), amount.Dec())
	}
	toBal, err := l.load(to)
	if err != nil {
		return err
	}

	fromBal.Sub(fromBal, amount)
	toBal.Add(toBal, amount)
	if err := l.store(from, fromBal); err != nil {
		return err
	}
	if err := l.store(to, toBal); err != nil {
		return err
	}

	l.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("amount", amount.Dec()).
		Msg("native funds forwarded")
	return nil
}

func (l *Ledger) load(addr types.Address) (*uint256.Int, error) {
	raw, err := l.db.Get(balanceKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load native balance: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("corrupt native balance record: %d bytes", len(raw))
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (l *Ledger) store(addr types.Address, bal *uint256.Int) error {
	b := bal.Bytes32()
	if err := l.db.Put(balanceKey(addr), b[:]); err != nil {
		return fmt.Errorf("store native balance: %w", err)
	}
	return nil
}

func balanceKey(addr types.Address) []byte {
	key := make([]byte, 2+types.AddressSize)
	copy(key, "n/")
	copy(key[2:], addr[:])
	return key
}
