// Package sale implements the fixed-price sale engine: KYC-gated purchases
// of the sale token against native currency or a stable asset, under a
// global per-buyer cap.
package sale

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/monte1s/tokengate/internal/events"
	klog "github.com/monte1s/tokengate/internal/log"
	"github.com/monte1s/tokengate/internal/registry"
	"github.com/monte1s/tokengate/internal/roles"
	"github.com/monte1s/tokengate/internal/storage"
	"github.com/monte1s/tokengate/internal/token"
	"github.com/monte1s/tokengate/pkg/crypto"
	"github.com/monte1s/tokengate/pkg/types"
	"github.com/rs/zerolog"
)

// StableDecimals is the decimal count the stable conversion assumes.
//
// The conversion below scales by 10^StableDecimals without reading the
// stable asset's actual decimal configuration. A deployment whose stable
// asset uses a different decimal count will misprice purchases; audit the
// asset against this constant before wiring it in.
const StableDecimals = 18

// Sale errors.
var (
	ErrAlreadyActive         = errors.New("sale already active")
	ErrInvalidStartTime      = errors.New("start time must be in the future")
	ErrSaleNotActive         = errors.New("sale is not active")
	ErrSaleNotStarted        = errors.New("sale has not started yet")
	ErrBuyerMismatch         = errors.New("claimed buyer does not match originating identity")
	ErrInvalidKyc            = errors.New("kyc verification failed")
	ErrPriceNotSet           = errors.New("price not set")
	ErrNoAmountSpecified     = errors.New("no payment amount specified")
	ErrZeroTokens            = errors.New("payment converts to zero tokens")
	ErrConversionOverflow    = errors.New("price conversion overflows")
	ErrExceedsPurchaseLimit  = errors.New("purchase exceeds per-buyer limit")
	ErrPaymentForwardFailed  = errors.New("native payment forwarding failed")
	ErrStableTransferFailed  = errors.New("stable asset transfer failed")
	ErrInsufficientInventory = errors.New("sale engine holds insufficient tokens")
	ErrZeroValue             = errors.New("value must be non-zero")
)

// PaymentMode identifies how a purchase was paid.
type PaymentMode string

const (
	PaymentNative PaymentMode = "native"
	PaymentStable PaymentMode = "stable"
)

// StableAsset is the stable token the engine accepts as payment. A pull
// that returns false without an error is still a failure: non-standard
// tokens that do not signal success explicitly must be treated as failed.
type StableAsset interface {
	TransferFrom(from, to types.Address, amount *uint256.Int) (bool, error)
}

// Bank settles native payments: a purchase pulls the price from the
// buyer's native balance straight to the deposit address. Forward must
// fail (and move nothing) when from holds less than amount.
type Bank interface {
	Forward(from, to types.Address, amount *uint256.Int) error
}

// stableScale is 10^StableDecimals.
var stableScale = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(StableDecimals))

// Storage key layout.
var (
	keyActive       = []byte("active")
	keyStart        = []byte("start")
	keySold         = []byte("sold")
	keyPriceNative  = []byte("price_native")
	keyPriceStable  = []byte("price_stable")
	keyLimit        = []byte("limit")
	keyKycSigner    = []byte("kyc_signer")
	keyDeposit      = []byte("deposit")
	prefixPurchased = []byte("p/") // p/<buyer(20)> -> amount(32)
)

// Engine is the sale contract.
type Engine struct {
	mu sync.Mutex

	db       storage.DB
	roles    *roles.Store
	registry *registry.Ledger
	token    *token.Ledger
	stable   StableAsset
	bank     Bank
	feed     events.Emitter
	logger   zerolog.Logger

	self types.Address // The engine's own address; holds sale inventory.
	now  func() time.Time
}

// Params are the engine's constructor parameters. All identities and
// prices must be non-zero; construction fails otherwise.
type Params struct {
	Self          types.Address
	KycSigner     types.Address
	Deposit       types.Address
	PriceNative   *uint256.Int
	PriceStable   *uint256.Int
	PurchaseLimit *uint256.Int
}

// New creates a sale engine. Persisted administrative settings take
// precedence over the constructor parameters so setter changes survive a
// restart.
func New(db storage.DB, rl *roles.Store, reg *registry.Ledger, tok *token.Ledger,
	stable StableAsset, bank Bank, feed events.Emitter, params Params, now func() time.Time) (*Engine, error) {

	if params.Self.IsZero() {
		return nil, fmt.Errorf("sale address must be non-zero")
	}
	if params.KycSigner.IsZero() {
		return nil, fmt.Errorf("kyc signer must be non-zero")
	}
	if params.Deposit.IsZero() {
		return nil, fmt.Errorf("deposit address must be non-zero")
	}
	if params.PriceNative == nil || params.PriceNative.IsZero() {
		return nil, fmt.Errorf("native price must be non-zero")
	}
	if params.PriceStable == nil || params.PriceStable.IsZero() {
		return nil, fmt.Errorf("stable price must be non-zero")
	}
	if params.PurchaseLimit == nil || params.PurchaseLimit.IsZero() {
		return nil, fmt.Errorf("purchase limit must be non-zero")
	}
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		db:       db,
		roles:    rl,
		registry: reg,
		token:    tok,
		stable:   stable,
		bank:     bank,
		feed:     feed,
		logger:   klog.Sale,
		self:     params.Self,
		now:      now,
	}

	// Seed persisted settings on first boot only.
	seeds := []struct {
		key []byte
		set func() error
	}{
		{keyPriceNative, func() error { return e.storeAmount(keyPriceNative, params.PriceNative) }},
		{keyPriceStable, func() error { return e.storeAmount(keyPriceStable, params.PriceStable) }},
		{keyLimit, func() error { return e.storeAmount(keyLimit, params.PurchaseLimit) }},
		{keyKycSigner, func() error { return e.db.Put(keyKycSigner, params.KycSigner.Bytes()) }},
		{keyDeposit, func() error { return e.db.Put(keyDeposit, params.Deposit.Bytes()) }},
	}
	for _, s := range seeds {
		has, err := db.Has(s.key)
		if err != nil {
			return nil, fmt.Errorf("read sale state: %w", err)
		}
		if !has {
			if err := s.set(); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

// StartSale activates the sale with the given start time. The time must be
// strictly in the future; purchases before it are rejected, not queued.
func (e *Engine) StartSale(caller types.Address, start time.Time) error {
	if err := e.roles.Authorize(roles.OpSaleLifecycle, caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	active, err := e.active()
	if err != nil {
		return err
	}
	if active {
		return ErrAlreadyActive
	}
	if !start.After(e.now()) {
		return fmt.Errorf("%w: %s", ErrInvalidStartTime, start.UTC().Format(time.RFC3339))
	}

	if err := e.db.Put(keyStart, []byte(fmt.Sprintf("%d", start.Unix()))); err != nil {
		return fmt.Errorf("store start time: %w", err)
	}
	if err := e.db.Put(keyActive, []byte{1}); err != nil {
		return fmt.Errorf("store active flag: %w", err)
	}

	e.logger.Info().Time("start", start).Msg("sale started")
	e.feed.Emit(events.TypeSaleStarted, map[string]string{
		"start": fmt.Sprintf("%d", start.Unix()),
	})
	return nil
}

// PauseSale deactivates the sale. Idempotent: pausing an inactive sale is
// a no-op. The start time and accumulated sales are preserved.
func (e *Engine) PauseSale(caller types.Address) error {
	if err := e.roles.Authorize(roles.OpSaleLifecycle, caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	active, err := e.active()
	if err != nil {
		return err
	}
	if !active {
		return nil
	}
	if err := e.db.Put(keyActive, []byte{0}); err != nil {
		return fmt.Errorf("store active flag: %w", err)
	}

	e.logger.Info().Msg("sale paused")
	e.feed.Emit(events.TypeSalePaused, nil)
	return nil
}

// Purchase executes a token purchase for the originating identity.
//
// Exactly one payment mode applies per call: native mode when nativeValue
// is positive, stable mode otherwise. Every precondition — lifecycle,
// buyer identity, KYC, conversion, cap, inventory — is checked before any
// value moves; payment settlement and token delivery happen only after
// all checks pass, because those movements cannot be reversed.
func (e *Engine) Purchase(origin, claimedBuyer types.Address, registeredKey types.Key,
	stableAmount *uint256.Int, signature []byte, nativeValue *uint256.Int) (*uint256.Int, error) {

	e.mu.Lock()
	defer e.mu.Unlock()

	// 1. Lifecycle.
	active, err := e.active()
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrSaleNotActive
	}
	start, err := e.startTime()
	if err != nil {
		return nil, err
	}
	if e.now().Before(start) {
		return nil, ErrSaleNotStarted
	}

	// 2. The claimed buyer must be the true originating identity, so a
	// relayer cannot purchase on someone else's KYC record.
	if origin != claimedBuyer {
		return nil, fmt.Errorf("%w: origin %s, claimed %s", ErrBuyerMismatch, origin, claimedBuyer)
	}

	// 3. KYC: the buyer's registered key must match the claimed key, and
	// the KYC authority must have signed that key's digest.
	storedKey, err := e.registry.Lookup(claimedBuyer)
	if err != nil {
		return nil, err
	}
	if storedKey.IsZero() || storedKey != registeredKey {
		return nil, fmt.Errorf("%w: registered key mismatch", ErrInvalidKyc)
	}
	signer, err := crypto.Recover(crypto.KeyDigest(registeredKey), signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKyc, err)
	}
	kycSigner, err := e.loadAddress(keyKycSigner)
	if err != nil {
		return nil, err
	}
	if signer != kycSigner {
		return nil, fmt.Errorf("%w: signer %s is not the kyc authority", ErrInvalidKyc, signer)
	}

	// 4. Payment mode and conversion.
	mode := PaymentStable
	if nativeValue != nil && !nativeValue.IsZero() {
		mode = PaymentNative
	}
	tokenAmount, err := e.convert(mode, nativeValue, stableAmount)
	if err != nil {
		return nil, err
	}

	// 5. Per-buyer cap.
	purchased, err := e.loadAmount(purchasedKey(claimedBuyer))
	if err != nil {
		return nil, err
	}
	limit, err := e.loadAmount(keyLimit)
	if err != nil {
		return nil, err
	}
	cumulative := new(uint256.Int)
	if _, overflow := cumulative.AddOverflow(purchased, tokenAmount); overflow || cumulative.Gt(limit) {
		return nil, fmt.Errorf("%w: cumulative %s, limit %s",
			ErrExceedsPurchaseLimit, cumulative.Dec(), limit.Dec())
	}

	// 7 (checked before settlement). Inventory.
	inventory, err := e.token.BalanceOf(e.self)
	if err != nil {
		return nil, err
	}
	if inventory.Lt(tokenAmount) {
		return nil, fmt.Errorf("%w: have %s, need %s",
			ErrInsufficientInventory, inventory.Dec(), tokenAmount.Dec())
	}

	// 6. Settle payment.
	deposit, err := e.loadAddress(keyDeposit)
	if err != nil {
		return nil, err
	}
	switch mode {
	case PaymentNative:
		// The payment comes out of the buyer's own native balance, like
		// the stable path pulls from the buyer's stable balance.
		if err := e.bank.Forward(claimedBuyer, deposit, nativeValue); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentForwardFailed, err)
		}
	case PaymentStable:
		ok, err := e.stable.TransferFrom(claimedBuyer, deposit, stableAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStableTransferFailed, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: transfer returned false", ErrStableTransferFailed)
		}
	}

	// 8. Deliver and record.
	if err := e.token.Move(e.self, claimedBuyer, tokenAmount); err != nil {
		return nil, fmt.Errorf("deliver tokens: %w", err)
	}
	if err := e.storeAmount(purchasedKey(claimedBuyer), cumulative); err != nil {
		return nil, err
	}
	sold, err := e.loadAmount(keySold)
	if err != nil {
		return nil, err
	}
	if err := e.storeAmount(keySold, new(uint256.Int).Add(sold, tokenAmount)); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("buyer", claimedBuyer.String()).
		Str("amount", tokenAmount.Dec()).
		Str("mode", string(mode)).
		Msg("tokens purchased")
	e.feed.Emit(events.TypePurchase, map[string]string{
		"buyer":  claimedBuyer.String(),
		"amount": tokenAmount.Dec(),
		"mode":   string(mode),
	})
	return tokenAmount, nil
}

// convert computes the token amount for the given payment. Both divisions
// truncate toward zero: fractional remainders are dropped, never rounded.
func (e *Engine) convert(mode PaymentMode, nativeValue, stableAmount *uint256.Int) (*uint256.Int, error) {
	switch mode {
	case PaymentNative:
		price, err := e.loadAmount(keyPriceNative)
		if err != nil {
			return nil, err
		}
		if price.IsZero() {
			return nil, fmt.Errorf("%w: native", ErrPriceNotSet)
		}
		tokenAmount := new(uint256.Int).Div(nativeValue, price)
		if tokenAmount.IsZero() {
			return nil, ErrZeroTokens
		}
		return tokenAmount, nil

	default:
		if stableAmount == nil || stableAmount.IsZero() {
			return nil, ErrNoAmountSpecified
		}
		price, err := e.loadAmount(keyPriceStable)
		if err != nil {
			return nil, err
		}
		if price.IsZero() {
			return nil, fmt.Errorf("%w: stable", ErrPriceNotSet)
		}
		tokenAmount, overflow := new(uint256.Int).MulDivOverflow(stableAmount, stableScale, price)
		if overflow {
			return nil, ErrConversionOverflow
		}
		if tokenAmount.IsZero() {
			return nil, ErrZeroTokens
		}
		return tokenAmount, nil
	}
}

// State is a snapshot of the sale lifecycle for observers.
type State struct {
	Active        bool          `json:"active"`
	Start         int64         `json:"start,omitempty"`
	TotalSold     *uint256.Int  `json:"total_sold"`
	PriceNative   *uint256.Int  `json:"price_native"`
	PriceStable   *uint256.Int  `json:"price_stable"`
	PurchaseLimit *uint256.Int  `json:"purchase_limit"`
	KycSigner     types.Address `json:"kyc_signer"`
	Deposit       types.Address `json:"deposit"`
}

// Snapshot returns the current sale state.
func (e *Engine) Snapshot() (*State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := &State{}
	var err error
	if s.Active, err = e.active(); err != nil {
		return nil, err
	}
	start, err := e.startTime()
	if err == nil {
		s.Start = start.Unix()
	}
	if s.TotalSold, err = e.loadAmount(keySold); err != nil {
		return nil, err
	}
	if s.PriceNative, err = e.loadAmount(keyPriceNative); err != nil {
		return nil, err
	}
	if s.PriceStable, err = e.loadAmount(keyPriceStable); err != nil {
		return nil, err
	}
	if s.PurchaseLimit, err = e.loadAmount(keyLimit); err != nil {
		return nil, err
	}
	if s.KycSigner, err = e.loadAddress(keyKycSigner); err != nil {
		return nil, err
	}
	if s.Deposit, err = e.loadAddress(keyDeposit); err != nil {
		return nil, err
	}
	return s, nil
}

// Purchased returns buyer's cumulative purchased amount.
func (e *Engine) Purchased(buyer types.Address) (*uint256.Int, error) {
	return e.loadAmount(purchasedKey(buyer))
}

func (e *Engine) active() (bool, error) {
	raw, err := e.db.Get(keyActive)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read active flag: %w", err)
	}
	return len(raw) == 1 && raw[0] == 1, nil
}

func (e *Engine) startTime() (time.Time, error) {
	raw, err := e.db.Get(keyStart)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, fmt.Errorf("start time not set")
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read start time: %w", err)
	}
	var unix int64
	if _, err := fmt.Sscanf(string(raw), "%d", &unix); err != nil {
		return time.Time{}, fmt.Errorf("corrupt start time: %w", err)
	}
	return time.Unix(unix, 0), nil
}

func (e *Engine) loadAmount(key []byte) (*uint256.Int, error) {
	raw, err := e.db.Get(key)
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

func (e *Engine) storeAmount(key []byte, amount *uint256.Int) error {
	b := amount.Bytes32()
	if err := e.db.Put(key, b[:]); err != nil {
		return fmt.Errorf("store amount: %w", err)
	}
	return nil
}

func (e *Engine) loadAddress(key []byte) (types.Address, error) {
	raw, err := e.db.Get(key)
	if err != nil {
		return types.Address{}, fmt.Errorf("load address: %w", err)
	}
	return types.BytesToAddress(raw)
}

func purchasedKey(buyer types.Address) []byte {
	key := make([]byte, len(prefixPurchased)+types.AddressSize)
	copy(key, prefixPurchased)
	copy(key[len(prefixPurchased):], buyer[:])
	return key
}
