// Package token implements the registration-gated fungible token.
//
// Balances and allowances are 256-bit unsigned amounts persisted as
// fixed-width big-endian records. Every transfer entry point evaluates the
// transfer gate against the effective originating party: the sender for
// direct transfers, the token owner (not the delegate) for delegated ones.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/monte1s/tokengate/internal/events"
	klog "github.com/monte1s/tokengate/internal/log"
	"github.com/monte1s/tokengate/internal/registry"
	"github.com/monte1s/tokengate/internal/roles"
	"github.com/monte1s/tokengate/internal/storage"
	"github.com/monte1s/tokengate/pkg/types"
	"github.com/rs/zerolog"
)

// Token errors.
var (
	ErrZeroAddress           = errors.New("zero address")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSupplyOverflow        = errors.New("total supply overflow")
)

// Storage key layout.
var (
	prefixBalance   = []byte("b/") // b/<addr(20)> -> amount(32)
	prefixAllowance = []byte("a/") // a/<owner(20)><spender(20)> -> amount(32)
	keySupply       = []byte("supply")
	keyRestricted   = []byte("restricted")
)

// Ledger is the token's balance and allowance store plus its transfer gate.
type Ledger struct {
	mu       sync.Mutex
	db       storage.DB
	registry *registry.Ledger
	roles    *roles.Store
	feed     events.Emitter
	logger   zerolog.Logger

	// Identities that bypass the gate while transfers are restricted.
	treasury types.Address
	sale     types.Address
	vesting  types.Address
}

// New creates a token ledger. Transfers start restricted; the restriction
// is a one-way valve cleared by RemoveTransferRestriction.
func New(db storage.DB, reg *registry.Ledger, rl *roles.Store, feed events.Emitter,
	treasury, sale, vesting types.Address) (*Ledger, error) {

	if treasury.IsZero() {
		return nil, fmt.Errorf("%w: treasury", ErrZeroAddress)
	}

	l := &Ledger{
		db:       db,
		registry: reg,
		roles:    rl,
		feed:     feed,
		logger:   klog.Token,
		treasury: treasury,
		sale:     sale,
		vesting:  vesting,
	}

	// First boot: persist the initial restricted state explicitly so a
	// cleared valve survives restarts.
	has, err := db.Has(keyRestricted)
	if err != nil {
		return nil, fmt.Errorf("read restriction state: %w", err)
	}
	if !has {
		if err := db.Put(keyRestricted, []byte{1}); err != nil {
			return nil, fmt.Errorf("init restriction state: %w", err)
		}
	}
	return l, nil
}

// BalanceOf returns addr's balance.
func (l *Ledger) BalanceOf(addr types.Address) (*uint256.Int, error) {
	return l.loadAmount(balanceKey(addr))
}

// TotalSupply returns the total minted supply.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	return l.loadAmount(keySupply)
}

// Allowance returns how much spender may move from owner's balance.
func (l *Ledger) Allowance(owner, spender types.Address) (*uint256.Int, error) {
	return l.loadAmount(allowanceKey(owner, spender))
}

// Mint creates amount new tokens on to's balance. Restricted to identities
// authorized for the mint operation.
func (l *Ledger) Mint(caller, to types.Address, amount *uint256.Int) error {
	if err := l.roles.Authorize(roles.OpMint, caller); err != nil {
		return err
	}
	if to.IsZero() {
		return fmt.Errorf("%w: mint recipient", ErrZeroAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	supply, err := l.loadAmount(keySupply)
	if err != nil {
		return err
	}
	newSupply := new(uint256.Int)
	if _, overflow := newSupply.AddOverflow(supply, amount); overflow {
		return ErrSupplyOverflow
	}

	balance, err := l.loadAmount(balanceKey(to))
	if err != nil {
		return err
	}
	// Balance cannot overflow if supply did not.
	newBalance := new(uint256.Int).Add(balance, amount)

	if err := l.storeAmount(balanceKey(to), newBalance); err != nil {
		return err
	}
	if err := l.storeAmount(keySupply, newSupply); err != nil {
		return err
	}

	l.logger.Info().Str("to", to.String()).Str("amount", amount.Dec()).Msg("mint")
	return nil
}

// Burn destroys amount tokens from the caller's own balance.
func (l *Ledger) Burn(caller types.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, err := l.loadAmount(balanceKey(caller))
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: have %s, burn %s", ErrInsufficientBalance, balance.Dec(), amount.Dec())
	}

	supply, err := l.loadAmount(keySupply)
	if err != nil {
		return err
	}

	if err := l.storeAmount(balanceKey(caller), new(uint256.Int).Sub(balance, amount)); err != nil {
		return err
	}
	if err := l.storeAmount(keySupply, new(uint256.Int).Sub(supply, amount)); err != nil {
		return err
	}

	l.logger.Info().Str("from", caller.String()).Str("amount", amount.Dec()).Msg("burn")
	return nil
}

// Transfer moves amount from the sender's balance to to. The sender is the
// effective originating party and must pass the transfer gate.
func (l *Ledger) Transfer(sender, to types.Address, amount *uint256.Int) error {
	if err := l.Authorize(sender); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(sender, to, amount)
}

// Approve lets spender move up to amount from owner's balance.
func (l *Ledger) Approve(owner, spender types.Address, amount *uint256.Int) error {
	if spender.IsZero() {
		return fmt.Errorf("%w: spender", ErrZeroAddress)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.storeAmount(allowanceKey(owner, spender), amount)
}

// TransferFrom moves amount from owner's balance to to, spending spender's
// allowance. The gate is evaluated against owner — the token owner is the
// effective originating party of a delegated transfer, not the delegate.
func (l *Ledger) TransferFrom(spender, owner, to types.Address, amount *uint256.Int) error {
	if err := l.Authorize(owner); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	allowance, err := l.loadAmount(allowanceKey(owner, spender))
	if err != nil {
		return err
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance.Dec(), amount.Dec())
	}

	if err := l.move(owner, to, amount); err != nil {
		return err
	}
	return l.storeAmount(allowanceKey(owner, spender), new(uint256.Int).Sub(allowance, amount))
}

// Move transfers tokens without gate or allowance checks. It is the
// privileged path used by the treasury hub and the sale engine, which
// enforce their own executive/owner authorization before moving value.
func (l *Ledger) Move(from, to types.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// move performs the raw balance update. Caller holds l.mu.
func (l *Ledger) move(from, to types.Address, amount *uint256.Int) error {
	if to.IsZero() {
		return fmt.Errorf("%w: transfer recipient", ErrZeroAddress)
	}

	fromBal, err := l.loadAmount(balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal.Dec(), amount.Dec())
	}

	toBal, err := l.loadAmount(balanceKey(to))
	if err != nil {
		return err
	}

	if err := l.storeAmount(balanceKey(from), new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.storeAmount(balanceKey(to), new(uint256.Int).Add(toBal, amount)); err != nil {
		return err
	}

	l.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("amount", amount.Dec()).
		Msg("transfer")
	return nil
}

func (l *Ledger) loadAmount(key []byte) (*uint256.Int, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load amount: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("corrupt amount record: %d bytes", len(raw))
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (l *Ledger) storeAmount(key []byte, amount *uint256.Int) error {
	b := amount.Bytes32()
	if err := l.db.Put(key, b[:]); err != nil {
		return fmt.Errorf("store amount: %w", err)
	}
	return nil
}

func balanceKey(addr types.Address) []byte {
	key := make([]byte, len(prefixBalance)+types.AddressSize)
	copy(key, prefixBalance)
	copy(key[len(prefixBalance):], addr[:])
	return key
}

func allowanceKey(owner, spender types.Address) []byte {
	key := make([]byte, len(prefixAllowance)+2*types.AddressSize)
	copy(key, prefixAllowance)
	copy(key[len(prefixAllowance):], owner[:])
	copy(key[len(prefixAllowance)+types.AddressSize:], spender[:])
	return key
}
