package sale

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/monte1s/tokengate/internal/events"
	"github.com/monte1s/tokengate/internal/registry"
	"github.com/monte1s/tokengate/internal/roles"
	"github.com/monte1s/tokengate/internal/storage"
	"github.com/monte1s/tokengate/internal/token"
	"github.com/monte1s/tokengate/pkg/crypto"
	"github.com/monte1s/tokengate/pkg/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func amount(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// e18 returns v scaled by 10^18.
func e18(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), stableScale)
}

type stableCall struct {
	from, to types.Address
	amount   *uint256.Int
}

type stubStable struct {
	ok    bool
	err   error
	calls []stableCall
}

func (s *stubStable) TransferFrom(from, to types.Address, amount *uint256.Int) (bool, error) {
	s.calls = append(s.calls, stableCall{from, to, amount.Clone()})
	return s.ok, s.err
}

type stubBank struct {
	err   error
	calls []stableCall
}

func (b *stubBank) Forward(from, to types.Address, amount *uint256.Int) error {
	b.calls = append(b.calls, stableCall{from, to, amount.Clone()})
	return b.err
}

type fixture struct {
	engine   *Engine
	token    *token.Ledger
	registry *registry.Ledger
	roles    *roles.Store
	feed     *events.Feed
	stable   *stubStable
	bank     *stubBank

	owner    types.Address
	treasury types.Address
	sale     types.Address
	vesting  types.Address
	deposit  types.Address

	kycPriv *crypto.PrivateKey

	clock time.Time
}

func defaultParams(f *fixture) Params {
	return Params{
		Self:          f.sale,
		KycSigner:     f.kycPriv.Address(),
		Deposit:       f.deposit,
		PriceNative:   uint256.MustFromDecimal("100000000000000"), // 1e14
		PriceStable:   e18(2),
		PurchaseLimit: e18(425000),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemory()
	feed, err := events.NewFeed(storage.NewPrefixDB(db, []byte("ev/")))
	if err != nil {
		t.Fatalf("NewFeed() error: %v", err)
	}

	kycPriv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	f := &fixture{
		feed:     feed,
		stable:   &stubStable{ok: true},
		bank:     &stubBank{},
		owner:    addr(0x01),
		treasury: addr(0x02),
		sale:     addr(0x03),
		vesting:  addr(0x04),
		deposit:  addr(0x05),
		kycPriv:  kycPriv,
		clock:    time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
	f.roles = roles.New(storage.NewPrefixDB(db, []byte("rl/")), feed)
	if err := f.roles.Bootstrap(f.owner); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	f.registry = registry.New(storage.NewPrefixDB(db, []byte("rg/")), feed)
	f.token, err = token.New(storage.NewPrefixDB(db, []byte("tk/")), f.registry, f.roles, feed,
		f.treasury, f.sale, f.vesting)
	if err != nil {
		t.Fatalf("token.New() error: %v", err)
	}

	f.engine, err = New(storage.NewPrefixDB(db, []byte("sl/")), f.roles, f.registry, f.token,
		f.stable, f.bank, feed, defaultParams(f), func() time.Time { return f.clock })
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Sale inventory.
	if err := f.token.Mint(f.owner, f.sale, e18(1000000)); err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	return f
}

// start activates the sale and advances the clock past the start time.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.engine.StartSale(f.owner, f.clock.Add(time.Hour)); err != nil {
		t.Fatalf("StartSale() error: %v", err)
	}
	f.clock = f.clock.Add(2 * time.Hour)
}

// buyer is a registered identity with a key signed by the kyc authority.
type buyer struct {
	addr types.Address
	key  types.Key
	sig  []byte
}

func (f *fixture) newBuyer(t *testing.T) *buyer {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	key := types.Key{0x22}
	if err := f.registry.Register(priv.Address(), key, priv.Sign(crypto.KeyDigest(key))); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	return &buyer{
		addr: priv.Address(),
		key:  key,
		sig:  f.kycPriv.Sign(crypto.KeyDigest(key)),
	}
}

func (f *fixture) balance(t *testing.T, a types.Address) *uint256.Int {
	t.Helper()
	bal, err := f.token.BalanceOf(a)
	if err != nil {
		t.Fatalf("BalanceOf() error: %v", err)
	}
	return bal
}

func TestStartSale(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.StartSale(addr(0x66), f.clock.Add(time.Hour)); !errors.Is(err, roles.ErrNotAuthorized) {
		t.Fatalf("StartSale() by stranger error = %v, want ErrNotAuthorized", err)
	}
	if err := f.engine.StartSale(f.owner, f.clock.Add(-time.Hour)); !errors.Is(err, ErrInvalidStartTime) {
		t.Fatalf("StartSale() in the past error = %v, want ErrInvalidStartTime", err)
	}
	if err := f.engine.StartSale(f.owner, f.clock); !errors.Is(err, ErrInvalidStartTime) {
		t.Fatalf("StartSale() at now error = %v, want ErrInvalidStartTime", err)
	}

	if err := f.engine.StartSale(f.owner, f.clock.Add(time.Hour)); err != nil {
		t.Fatalf("StartSale() error: %v", err)
	}
	if err := f.engine.StartSale(f.owner, f.clock.Add(2*time.Hour)); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second StartSale() error = %v, want ErrAlreadyActive", err)
	}
}

func TestPurchaseBeforeStart(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.StartSale(f.owner, f.clock.Add(time.Hour)); err != nil {
		t.Fatalf("StartSale() error: %v", err)
	}
	b := f.newBuyer(t)

	_, err := f.engine.Purchase(b.addr, b.addr, b.key, nil, b.sig, e18(1))
	if !errors.Is(err, ErrSaleNotStarted) {
		t.Fatalf("Purchase() before start error = %v, want ErrSaleNotStarted", err)
	}
}

func TestPurchaseInactive(t *testing.T) {
	f := newFixture(t)
	b := f.newBuyer(t)

	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, nil, b.sig, e18(1)); !errors.Is(err, ErrSaleNotActive) {
		t.Fatalf("Purchase() on inactive sale error = %v, want ErrSaleNotActive", err)
	}
}

func TestPauseIdempotent(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	if err := f.engine.PauseSale(f.owner); err != nil {
		t.Fatalf("PauseSale() error: %v", err)
	}
	before := f.feed.Len()
	if err := f.engine.PauseSale(f.owner); err != nil {
		t.Fatalf("second PauseSale() error: %v", err)
	}
	if got := f.feed.Len(); got != before {
		t.Fatalf("second PauseSale() emitted an event: feed length %d, want %d", got, before)
	}

	b := f.newBuyer(t)
	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, nil, b.sig, e18(1)); !errors.Is(err, ErrSaleNotActive) {
		t.Fatalf("Purchase() after pause error = %v, want ErrSaleNotActive", err)
	}

	// Resuming preserves the original start time: no wait is required.
	if err := f.engine.StartSale(f.owner, f.clock.Add(time.Hour)); err != nil {
		t.Fatalf("StartSale() after pause error: %v", err)
	}
}

func TestPurchaseNative(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	// 1e17 native at a price of 1e14 per token buys 1000 tokens.
	paid := uint256.MustFromDecimal("100000000000000000")
	got, err := f.engine.Purchase(b.addr, b.addr, b.key, nil, b.sig, paid)
	if err != nil {
		t.Fatalf("Purchase() error: %v", err)
	}
	if want := amount(1000); !got.Eq(want) {
		t.Fatalf("Purchase() = %s tokens, want %s", got.Dec(), want.Dec())
	}
	if bal := f.balance(t, b.addr); !bal.Eq(amount(1000)) {
		t.Fatalf("buyer balance = %s, want 1000", bal.Dec())
	}
	if len(f.bank.calls) != 1 {
		t.Fatalf("bank.Forward called %d times, want 1", len(f.bank.calls))
	}
	// The payment is pulled out of the buyer's balance, not the engine's.
	fwd := f.bank.calls[0]
	if fwd.from != b.addr || fwd.to != f.deposit || !fwd.amount.Eq(paid) {
		t.Fatalf("native settlement = %s -> %s amount %s, want %s -> %s amount %s",
			fwd.from, fwd.to, fwd.amount.Dec(), b.addr, f.deposit, paid.Dec())
	}
	if len(f.stable.calls) != 0 {
		t.Fatalf("stable asset touched on a native purchase")
	}

	rec, err := f.engine.Purchased(b.addr)
	if err != nil {
		t.Fatalf("Purchased() error: %v", err)
	}
	if !rec.Eq(amount(1000)) {
		t.Fatalf("Purchased() = %s, want 1000", rec.Dec())
	}
}

func TestPurchaseNativeTruncates(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	// 1.5x the price: the fractional half token is dropped.
	paid := uint256.MustFromDecimal("150000000000000")
	got, err := f.engine.Purchase(b.addr, b.addr, b.key, nil, b.sig, paid)
	if err != nil {
		t.Fatalf("Purchase() error: %v", err)
	}
	if !got.Eq(amount(1)) {
		t.Fatalf("Purchase() = %s tokens, want 1", got.Dec())
	}
}

func TestPurchaseNativeZeroTokens(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, nil, b.sig, amount(1)); !errors.Is(err, ErrZeroTokens) {
		t.Fatalf("Purchase() below price error = %v, want ErrZeroTokens", err)
	}
	if len(f.bank.calls) != 0 {
		t.Fatalf("bank.Forward called on a rejected purchase")
	}
}

func TestPurchaseStable(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	// 10 stable at 2 stable per token buys 5 whole tokens.
	got, err := f.engine.Purchase(b.addr, b.addr, b.key, e18(10), b.sig, nil)
	if err != nil {
		t.Fatalf("Purchase() error: %v", err)
	}
	if !got.Eq(e18(5)) {
		t.Fatalf("Purchase() = %s tokens, want %s", got.Dec(), e18(5).Dec())
	}
	if len(f.stable.calls) != 1 {
		t.Fatalf("stable.TransferFrom called %d times, want 1", len(f.stable.calls))
	}
	call := f.stable.calls[0]
	if call.from != b.addr || call.to != f.deposit || !call.amount.Eq(e18(10)) {
		t.Fatalf("stable pull = %s -> %s amount %s, want %s -> %s amount %s",
			call.from, call.to, call.amount.Dec(), b.addr, f.deposit, e18(10).Dec())
	}
	if len(f.bank.calls) != 0 {
		t.Fatalf("bank.Forward called on a stable purchase")
	}
}

func TestPurchaseStableNoAmount(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, nil, b.sig, nil); !errors.Is(err, ErrNoAmountSpecified) {
		t.Fatalf("Purchase() with no amounts error = %v, want ErrNoAmountSpecified", err)
	}
	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, amount(0), b.sig, amount(0)); !errors.Is(err, ErrNoAmountSpecified) {
		t.Fatalf("Purchase() with zero amounts error = %v, want ErrNoAmountSpecified", err)
	}
}

func TestPurchaseStableFailure(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	// A false return without an error is still a failed settlement.
	f.stable.ok = false
	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, e18(10), b.sig, nil); !errors.Is(err, ErrStableTransferFailed) {
		t.Fatalf("Purchase() error = %v, want ErrStableTransferFailed", err)
	}
	if bal := f.balance(t, b.addr); !bal.IsZero() {
		t.Fatalf("buyer received tokens from a failed settlement: %s", bal.Dec())
	}

	f.stable.ok = true
	f.stable.err = errors.New("asset reverted")
	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, e18(10), b.sig, nil); !errors.Is(err, ErrStableTransferFailed) {
		t.Fatalf("Purchase() error = %v, want ErrStableTransferFailed", err)
	}
}

func TestPurchaseBuyerMismatch(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	if _, err := f.engine.Purchase(addr(0x77), b.addr, b.key, e18(10), b.sig, nil); !errors.Is(err, ErrBuyerMismatch) {
		t.Fatalf("Purchase() via relayer error = %v, want ErrBuyerMismatch", err)
	}
}

func TestPurchaseKyc(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	// Unregistered identity.
	stranger, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if _, err := f.engine.Purchase(stranger.Address(), stranger.Address(), b.key, e18(10), b.sig, nil); !errors.Is(err, ErrInvalidKyc) {
		t.Fatalf("Purchase() by unregistered buyer error = %v, want ErrInvalidKyc", err)
	}

	// Claimed key differs from the registered one.
	other := types.Key{0x99}
	if _, err := f.engine.Purchase(b.addr, b.addr, other, e18(10), f.kycPriv.Sign(crypto.KeyDigest(other)), nil); !errors.Is(err, ErrInvalidKyc) {
		t.Fatalf("Purchase() with mismatched key error = %v, want ErrInvalidKyc", err)
	}

	// Approval signed by someone who is not the kyc authority.
	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, e18(10), stranger.Sign(crypto.KeyDigest(b.key)), nil); !errors.Is(err, ErrInvalidKyc) {
		t.Fatalf("Purchase() with forged approval error = %v, want ErrInvalidKyc", err)
	}

	// Garbage signature bytes.
	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, e18(10), []byte{0x01}, nil); !errors.Is(err, ErrInvalidKyc) {
		t.Fatalf("Purchase() with malformed signature error = %v, want ErrInvalidKyc", err)
	}
}

func TestPurchaseLimit(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	// Price the token at exactly one stable unit so amounts map one to one.
	if err := f.engine.SetPriceStable(f.owner, e18(1)); err != nil {
		t.Fatalf("SetPriceStable() error: %v", err)
	}

	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, e18(424999), b.sig, nil); err != nil {
		t.Fatalf("Purchase() error: %v", err)
	}

	// One token of headroom left against a 425000 cap: two is over, one
	// lands exactly on the limit.
	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, e18(2), b.sig, nil); !errors.Is(err, ErrExceedsPurchaseLimit) {
		t.Fatalf("Purchase() over the cap error = %v, want ErrExceedsPurchaseLimit", err)
	}
	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, e18(1), b.sig, nil); err != nil {
		t.Fatalf("Purchase() at the cap error: %v", err)
	}

	rec, err := f.engine.Purchased(b.addr)
	if err != nil {
		t.Fatalf("Purchased() error: %v", err)
	}
	if !rec.Eq(e18(425000)) {
		t.Fatalf("Purchased() = %s, want %s", rec.Dec(), e18(425000).Dec())
	}

	// The cap is per buyer: a second identity starts fresh.
	b2 := f.newBuyer(t)
	if _, err := f.engine.Purchase(b2.addr, b2.addr, b2.key, e18(100), b2.sig, nil); err != nil {
		t.Fatalf("Purchase() by second buyer error: %v", err)
	}
}

func TestPurchaseInventoryCheckedBeforePayment(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	// Raise the cap beyond the minted inventory, then ask for more tokens
	// than the engine holds. The buyer's payment must not be touched.
	if err := f.engine.SetPurchaseLimit(f.owner, e18(10000000)); err != nil {
		t.Fatalf("SetPurchaseLimit() error: %v", err)
	}
	if err := f.engine.SetPriceStable(f.owner, e18(1)); err != nil {
		t.Fatalf("SetPriceStable() error: %v", err)
	}

	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, e18(2000000), b.sig, nil); !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("Purchase() beyond inventory error = %v, want ErrInsufficientInventory", err)
	}
	if len(f.stable.calls) != 0 {
		t.Fatalf("stable asset pulled before the inventory check")
	}
}

func TestPurchaseNativeForwardFailure(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	b := f.newBuyer(t)

	f.bank.err = errors.New("deposit unreachable")
	paid := uint256.MustFromDecimal("100000000000000000")
	if _, err := f.engine.Purchase(b.addr, b.addr, b.key, nil, b.sig, paid); !errors.Is(err, ErrPaymentForwardFailed) {
		t.Fatalf("Purchase() error = %v, want ErrPaymentForwardFailed", err)
	}
	if bal := f.balance(t, b.addr); !bal.IsZero() {
		t.Fatalf("buyer received tokens despite failed forwarding: %s", bal.Dec())
	}
}

func TestSetters(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.SetPriceNative(addr(0x66), amount(5)); !errors.Is(err, roles.ErrNotAuthorized) {
		t.Fatalf("SetPriceNative() by stranger error = %v, want ErrNotAuthorized", err)
	}
	if err := f.engine.SetPriceNative(f.owner, amount(0)); !errors.Is(err, ErrZeroValue) {
		t.Fatalf("SetPriceNative(0) error = %v, want ErrZeroValue", err)
	}
	if err := f.engine.SetKycSigner(f.owner, types.Address{}); !errors.Is(err, ErrZeroValue) {
		t.Fatalf("SetKycSigner(zero) error = %v, want ErrZeroValue", err)
	}
	if err := f.engine.SetDepositAddress(f.owner, types.Address{}); !errors.Is(err, ErrZeroValue) {
		t.Fatalf("SetDepositAddress(zero) error = %v, want ErrZeroValue", err)
	}
	if err := f.engine.SetPurchaseLimit(f.owner, nil); !errors.Is(err, ErrZeroValue) {
		t.Fatalf("SetPurchaseLimit(nil) error = %v, want ErrZeroValue", err)
	}

	if err := f.engine.SetPriceNative(f.owner, amount(5)); err != nil {
		t.Fatalf("SetPriceNative() error: %v", err)
	}
	snap, err := f.engine.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if !snap.PriceNative.Eq(amount(5)) {
		t.Fatalf("PriceNative = %s, want 5", snap.PriceNative.Dec())
	}
}

func TestSettingsSurviveRestart(t *testing.T) {
	db := storage.NewMemory()
	feed, err := events.NewFeed(storage.NewPrefixDB(db, []byte("ev/")))
	if err != nil {
		t.Fatalf("NewFeed() error: %v", err)
	}
	f := &fixture{
		feed: feed, stable: &stubStable{ok: true}, bank: &stubBank{},
		owner: addr(0x01), treasury: addr(0x02), sale: addr(0x03),
		vesting: addr(0x04), deposit: addr(0x05),
		clock: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
	f.kycPriv, err = crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	f.roles = roles.New(storage.NewPrefixDB(db, []byte("rl/")), feed)
	if err := f.roles.Bootstrap(f.owner); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	f.registry = registry.New(storage.NewPrefixDB(db, []byte("rg/")), feed)
	f.token, err = token.New(storage.NewPrefixDB(db, []byte("tk/")), f.registry, f.roles, feed,
		f.treasury, f.sale, f.vesting)
	if err != nil {
		t.Fatalf("token.New() error: %v", err)
	}

	saleDB := storage.NewPrefixDB(db, []byte("sl/"))
	engine, err := New(saleDB, f.roles, f.registry, f.token, f.stable, f.bank, feed,
		defaultParams(f), func() time.Time { return f.clock })
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := engine.SetPriceNative(f.owner, amount(42)); err != nil {
		t.Fatalf("SetPriceNative() error: %v", err)
	}

	// A restart reconstructs the engine with the original constructor
	// parameters; the persisted setter value must win.
	reopened, err := New(saleDB, f.roles, f.registry, f.token, f.stable, f.bank, feed,
		defaultParams(f), func() time.Time { return f.clock })
	if err != nil {
		t.Fatalf("New() after restart error: %v", err)
	}
	snap, err := reopened.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if !snap.PriceNative.Eq(amount(42)) {
		t.Fatalf("PriceNative after restart = %s, want 42", snap.PriceNative.Dec())
	}
}
