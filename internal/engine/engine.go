// Package engine provides the fully-wired issuance engine that can be
// embedded in any binary (daemon, CLI tooling, tests).
package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"
	"github.com/monte1s/tokengate/config"
	"github.com/monte1s/tokengate/internal/bank"
	"github.com/monte1s/tokengate/internal/events"
	"github.com/monte1s/tokengate/internal/keystore"
	klog "github.com/monte1s/tokengate/internal/log"
	"github.com/monte1s/tokengate/internal/registry"
	"github.com/monte1s/tokengate/internal/roles"
	"github.com/monte1s/tokengate/internal/sale"
	"github.com/monte1s/tokengate/internal/storage"
	"github.com/monte1s/tokengate/internal/token"
	"github.com/monte1s/tokengate/internal/treasury"
	"github.com/monte1s/tokengate/pkg/types"
	"github.com/rs/zerolog"
)

// Engine is a fully-initialized issuance engine: one storage backend with
// every component wired on top of it.
type Engine struct {
	cfg    *config.Config
	logger zerolog.Logger

	db       storage.DB
	Feed     *events.Feed
	Roles    *roles.Store
	Registry *registry.Ledger
	Token    *token.Ledger
	Treasury *treasury.Hub
	Sale     *sale.Engine
	Bank     *bank.Ledger
	Stable   *bank.Ledger
	Keystore *keystore.Store
	Resolver *treasury.MemoryResolver
}

// Storage key prefixes. Each component sees its own keyspace on the
// shared backend.
var (
	prefixEvents   = []byte("ev/")
	prefixRoles    = []byte("rl/")
	prefixRegistry = []byte("rg/")
	prefixToken    = []byte("tk/")
	prefixTreasury = []byte("tr/")
	prefixSale     = []byte("sl/")
	prefixBank     = []byte("bk/")
	prefixStable   = []byte("st/")
)

// New builds an engine on cfg. It initializes the logger, opens the
// database and wires every component; it does not listen on anything.
func New(cfg *config.Config) (*Engine, error) {
	logFile := cfg.Log.File
	if logFile == "" {
		if err := os.MkdirAll(cfg.LogsDir(), 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = cfg.LogsDir() + "/tokengate.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("engine")

	db, err := storage.NewBadger(cfg.StateDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.StateDir(), err)
	}
	logger.Info().Str("path", cfg.StateDir()).Msg("database opened")

	e, err := build(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// NewWithDB builds an engine on an existing backend. Used by tests.
func NewWithDB(cfg *config.Config, db storage.DB) (*Engine, error) {
	return build(cfg, db, klog.WithComponent("engine"))
}

func build(cfg *config.Config, db storage.DB, logger zerolog.Logger) (*Engine, error) {
	params, err := parseIssuance(&cfg.Issuance)
	if err != nil {
		return nil, err
	}

	feed, err := events.NewFeed(storage.NewPrefixDB(db, prefixEvents))
	if err != nil {
		return nil, fmt.Errorf("open event feed: %w", err)
	}

	rl := roles.New(storage.NewPrefixDB(db, prefixRoles), feed)
	owners, err := rl.Members(roles.RoleOwner)
	if err != nil {
		return nil, fmt.Errorf("read owner role: %w", err)
	}
	if len(owners) == 0 {
		// First boot needs an owner address from the config. Afterwards
		// the persisted owner wins and the config value is ignored.
		if params.owner.IsZero() {
			return nil, fmt.Errorf("issuance.owner is required on first boot")
		}
		if err := rl.Bootstrap(params.owner); err != nil {
			return nil, fmt.Errorf("bootstrap owner: %w", err)
		}
	}

	reg := registry.New(storage.NewPrefixDB(db, prefixRegistry), feed)

	tok, err := token.New(storage.NewPrefixDB(db, prefixToken), reg, rl, feed,
		params.treasury, params.sale, params.vesting)
	if err != nil {
		return nil, fmt.Errorf("open token ledger: %w", err)
	}

	resolver := treasury.NewMemoryResolver()
	hub, err := treasury.NewHub(storage.NewPrefixDB(db, prefixTreasury), rl, tok, resolver,
		feed, params.treasury, params.dust)
	if err != nil {
		return nil, fmt.Errorf("open treasury hub: %w", err)
	}

	nativeBank := bank.New(storage.NewPrefixDB(db, prefixBank))
	stableBank := bank.New(storage.NewPrefixDB(db, prefixStable))

	saleEngine, err := sale.New(storage.NewPrefixDB(db, prefixSale), rl, reg, tok,
		stableAsset{stableBank}, nativeBank, feed, sale.Params{
			Self:          params.sale,
			KycSigner:     params.kycSigner,
			Deposit:       params.deposit,
			PriceNative:   params.priceNative,
			PriceStable:   params.priceStable,
			PurchaseLimit: params.purchaseLimit,
		}, time.Now)
	if err != nil {
		return nil, fmt.Errorf("open sale engine: %w", err)
	}

	ks, err := keystore.NewStore(cfg.KeystoreDir())
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	logger.Info().
		Str("treasury", params.treasury.String()).
		Str("sale", params.sale.String()).
		Msg("engine initialized")

	return &Engine{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		Feed:     feed,
		Roles:    rl,
		Registry: reg,
		Token:    tok,
		Treasury: hub,
		Sale:     saleEngine,
		Bank:     nativeBank,
		Stable:   stableBank,
		Keystore: ks,
		Resolver: resolver,
	}, nil
}

// Close releases the storage backend.
func (e *Engine) Close() error {
	return e.db.Close()
}

// stableAsset adapts the stable balance book to the sale engine's pull
// interface. The sale engine treats a false return as a failed pull, so
// insufficient funds map to (false, nil) rather than an error.
type stableAsset struct {
	ledger *bank.Ledger
}

func (s stableAsset) TransferFrom(from, to types.Address, amount *uint256.Int) (bool, error) {
	if err := s.ledger.Forward(from, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

type issuanceParams struct {
	owner, treasury, sale, vesting types.Address
	kycSigner, deposit             types.Address
	priceNative, priceStable       *uint256.Int
	purchaseLimit, dust            *uint256.Int
}

func parseIssuance(ic *config.IssuanceConfig) (*issuanceParams, error) {
	p := &issuanceParams{}
	var err error

	addrs := []struct {
		name  string
		value string
		out   *types.Address
	}{
		{"issuance.owner", ic.Owner, &p.owner},
		{"issuance.treasury", ic.Treasury, &p.treasury},
		{"issuance.sale", ic.Sale, &p.sale},
		{"issuance.vesting", ic.Vesting, &p.vesting},
		{"issuance.kycsigner", ic.KycSigner, &p.kycSigner},
		{"issuance.deposit", ic.Deposit, &p.deposit},
	}
	for _, a := range addrs {
		if a.value == "" {
			continue
		}
		if *a.out, err = types.ParseAddress(a.value); err != nil {
			return nil, fmt.Errorf("%s: %w", a.name, err)
		}
	}

	amounts := []struct {
		name  string
		value string
		out   **uint256.Int
	}{
		{"issuance.pricenative", ic.PriceNative, &p.priceNative},
		{"issuance.pricestable", ic.PriceStable, &p.priceStable},
		{"issuance.purchaselimit", ic.PurchaseLimit, &p.purchaseLimit},
		{"issuance.reclaimdust", ic.ReclaimDust, &p.dust},
	}
	for _, a := range amounts {
		if a.value == "" {
			*a.out = uint256.NewInt(0)
			continue
		}
		if *a.out, err = uint256.FromDecimal(a.value); err != nil {
			return nil, fmt.Errorf("%s: %w", a.name, err)
		}
	}
	return p, nil
}
