// Package treasury implements the hub-and-spoke distribution ledger. The
// hub pushes tokens from its own balance to spoke contracts and reclaims
// them later, keeping per-spoke cumulative accounting plus an audit trail
// of reclaim requests that could not be honored in full.
package treasury

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/monte1s/tokengate/internal/events"
	klog "github.com/monte1s/tokengate/internal/log"
	"github.com/monte1s/tokengate/internal/roles"
	"github.com/monte1s/tokengate/internal/storage"
	"github.com/monte1s/tokengate/internal/token"
	"github.com/monte1s/tokengate/pkg/types"
	"github.com/rs/zerolog"
)

// Treasury errors.
var (
	ErrZeroAmount                = errors.New("amount must be non-zero")
	ErrLabelMismatch             = errors.New("spoke label does not match")
	ErrUnsupportedReceiver       = errors.New("spoke does not support treasury receiver capability")
	ErrUnknownSpoke              = errors.New("no treasury entry for spoke")
	ErrReclaimExceedsTransferred = errors.New("reclaim exceeds all-time transferred")
	ErrNothingReclaimable        = errors.New("available balance does not exceed dust reserve")
	ErrReentrantCall             = errors.New("re-entrant treasury call")
)

var prefixSpoke = []byte("s/") // s/<spoke(20)> -> Entry JSON

// Entry is the hub's per-spoke accounting record. TotalTransferred and
// TotalReclaimed only ever grow, and TotalReclaimed never exceeds
// TotalTransferred. The two attempt logs are append-only.
type Entry struct {
	Label            string         `json:"label"`
	TotalTransferred *uint256.Int   `json:"total_transferred"`
	TotalReclaimed   *uint256.Int   `json:"total_reclaimed"`
	FailedReclaims   []*uint256.Int `json:"failed_reclaims,omitempty"`
	BouncedReclaims  []*uint256.Int `json:"bounced_reclaims,omitempty"`
}

// Available returns TotalTransferred - TotalReclaimed.
func (e *Entry) Available() *uint256.Int {
	return new(uint256.Int).Sub(e.TotalTransferred, e.TotalReclaimed)
}

// Hub is the treasury's distribution ledger.
type Hub struct {
	mu      sync.Mutex
	entered bool

	db       storage.DB
	roles    *roles.Store
	token    *token.Ledger
	resolver Resolver
	feed     events.Emitter
	logger   zerolog.Logger

	self types.Address // The hub's own token balance address.
	dust *uint256.Int  // Reserve always left on a spoke by a clamped reclaim.
}

// NewHub creates a treasury hub. dust is the fixed reserve a clamped
// reclaim leaves on the spoke so its balance never round-trips to exactly
// zero (downstream accounting treats a zero balance as "never initialized").
func NewHub(db storage.DB, rl *roles.Store, tok *token.Ledger, resolver Resolver,
	feed events.Emitter, self types.Address, dust *uint256.Int) (*Hub, error) {

	if self.IsZero() {
		return nil, fmt.Errorf("hub address must be non-zero")
	}
	if dust == nil {
		return nil, fmt.Errorf("dust reserve must be set")
	}
	return &Hub{
		db:       db,
		roles:    rl,
		token:    tok,
		resolver: resolver,
		feed:     feed,
		logger:   klog.Treasury,
		self:     self,
		dust:     new(uint256.Int).Set(dust),
	}, nil
}

// TransferToSpoke moves amount from the hub's balance to spoke and records
// it. The first transfer pins the spoke's label; every later call must
// repeat it exactly. The spoke must resolve to a deployed contract
// advertising the treasury-receiver capability; its receive hook runs
// after the tokens move so it can account for the incoming amount.
// Executive-only.
func (h *Hub) TransferToSpoke(caller, spoke types.Address, label string, amount *uint256.Int) error {
	if err := h.roles.Authorize(roles.OpTreasuryMove, caller); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}

	if err := h.enter(); err != nil {
		return err
	}
	defer h.leave()

	receiver, ok := h.resolver.Resolve(spoke)
	if !ok {
		return fmt.Errorf("%w: %s is not a deployed contract", ErrUnsupportedReceiver, spoke)
	}
	if !receiver.Supports(CapTreasuryReceiver) {
		return fmt.Errorf("%w: %s", ErrUnsupportedReceiver, spoke)
	}

	entry, err := h.loadEntry(spoke)
	if err != nil {
		return err
	}
	if entry == nil {
		// First contact initializes the entry, which also places the spoke
		// on the administrative roster. Re-transfers are naturally
		// idempotent on the roster: there is one entry per spoke.
		entry = &Entry{
			Label:            label,
			TotalTransferred: uint256.NewInt(0),
			TotalReclaimed:   uint256.NewInt(0),
		}
	} else if entry.Label != label {
		return fmt.Errorf("%w: have %q, got %q", ErrLabelMismatch, entry.Label, label)
	}

	if err := h.token.Move(h.self, spoke, amount); err != nil {
		return fmt.Errorf("fund spoke: %w", err)
	}

	entry.TotalTransferred = new(uint256.Int).Add(entry.TotalTransferred, amount)
	if err := h.storeEntry(spoke, entry); err != nil {
		// Unwind the token move so a persistence failure leaves no trace.
		_ = h.token.Move(spoke, h.self, amount)
		return err
	}

	if err := receiver.ReceiveFromTreasury(amount); err != nil {
		// The hook rejected the transfer: unwind both the accounting and
		// the token move.
		entry.TotalTransferred = new(uint256.Int).Sub(entry.TotalTransferred, amount)
		if err2 := h.storeEntry(spoke, entry); err2 != nil {
			return fmt.Errorf("receive hook failed (%v) and unwind failed: %w", err, err2)
		}
		_ = h.token.Move(spoke, h.self, amount)
		return fmt.Errorf("receive hook: %w", err)
	}

	h.logger.Info().
		Str("spoke", spoke.String()).
		Str("label", label).
		Str("amount", amount.Dec()).
		Msg("transfer to spoke")
	h.feed.Emit(events.TypeTreasuryTransfer, map[string]string{
		"spoke":  spoke.String(),
		"label":  label,
		"amount": amount.Dec(),
	})
	return nil
}

// ReclaimFromSpoke pulls previously distributed tokens back from spoke.
// It returns the executed amount, which may be less than requested:
//
//   - amount > TotalTransferred: the request is recorded in the failed log
//     and rejected outright; accumulators do not change.
//   - amount > available (but within TotalTransferred): the request is
//     recorded in the bounced log and the executed amount is clamped to
//     available - dust. If available does not exceed the dust reserve the
//     operation fails instead of underflowing.
//   - otherwise the full requested amount executes.
//
// Executive-only.
func (h *Hub) ReclaimFromSpoke(caller, spoke types.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := h.roles.Authorize(roles.OpTreasuryMove, caller); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}

	if err := h.enter(); err != nil {
		return nil, err
	}
	defer h.leave()

	entry, err := h.loadEntry(spoke)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpoke, spoke)
	}

	// Resolve before touching the audit logs: a spoke that no longer
	// resolves fails outright and must not leave a failed or bounced
	// entry behind.
	receiver, ok := h.resolver.Resolve(spoke)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a deployed contract", ErrUnsupportedReceiver, spoke)
	}

	if amount.Gt(entry.TotalTransferred) {
		// Hard failure, but the attempt itself is part of the audit trail.
		entry.FailedReclaims = append(entry.FailedReclaims, new(uint256.Int).Set(amount))
		if err := h.storeEntry(spoke, entry); err != nil {
			return nil, err
		}
		h.feed.Emit(events.TypeReclaimFailed, map[string]string{
			"spoke":  spoke.String(),
			"amount": amount.Dec(),
		})
		return nil, fmt.Errorf("%w: requested %s, transferred %s",
			ErrReclaimExceedsTransferred, amount.Dec(), entry.TotalTransferred.Dec())
	}

	available := entry.Available()
	executed := new(uint256.Int).Set(amount)
	if amount.Gt(available) {
		entry.BouncedReclaims = append(entry.BouncedReclaims, new(uint256.Int).Set(amount))
		if err := h.storeEntry(spoke, entry); err != nil {
			return nil, err
		}
		h.feed.Emit(events.TypeReclaimBounced, map[string]string{
			"spoke":     spoke.String(),
			"amount":    amount.Dec(),
			"available": available.Dec(),
		})
		if !available.Gt(h.dust) {
			return nil, fmt.Errorf("%w: available %s, dust %s",
				ErrNothingReclaimable, available.Dec(), h.dust.Dec())
		}
		executed.Sub(available, h.dust)
	}

	if err := receiver.ReclaimToTreasury(executed); err != nil {
		return nil, fmt.Errorf("reclaim hook: %w", err)
	}

	entry.TotalReclaimed = new(uint256.Int).Add(entry.TotalReclaimed, executed)
	if err := h.storeEntry(spoke, entry); err != nil {
		return nil, err
	}

	if err := h.token.Move(spoke, h.self, executed); err != nil {
		// Unwind the accumulator so the invariant holds.
		entry.TotalReclaimed = new(uint256.Int).Sub(entry.TotalReclaimed, executed)
		if err2 := h.storeEntry(spoke, entry); err2 != nil {
			return nil, fmt.Errorf("pull from spoke failed (%v) and unwind failed: %w", err, err2)
		}
		return nil, fmt.Errorf("pull from spoke: %w", err)
	}

	h.logger.Info().
		Str("spoke", spoke.String()).
		Str("requested", amount.Dec()).
		Str("executed", executed.Dec()).
		Msg("reclaim from spoke")
	h.feed.Emit(events.TypeTreasuryReclaim, map[string]string{
		"spoke":     spoke.String(),
		"requested": amount.Dec(),
		"executed":  executed.Dec(),
	})
	return executed, nil
}

// Entry returns the accounting record for spoke, or ErrUnknownSpoke.
func (h *Hub) Entry(spoke types.Address) (*Entry, error) {
	entry, err := h.loadEntry(spoke)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpoke, spoke)
	}
	return entry, nil
}

// Roster returns every spoke with a treasury entry, in ascending address
// order. Order is an iteration artifact, not a guarantee of insertion
// sequence.
func (h *Hub) Roster() ([]types.Address, error) {
	var spokes []types.Address
	err := h.db.ForEach(prefixSpoke, func(key, _ []byte) error {
		raw := key[len(prefixSpoke):]
		addr, err := types.BytesToAddress(raw)
		if err != nil {
			return nil // Malformed key, skip.
		}
		spokes = append(spokes, addr)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan roster: %w", err)
	}
	return spokes, nil
}

// enter arms the re-entrancy guard. The hub moves value and then calls
// external spoke code, so a hook calling back in would observe (and could
// exploit) partially updated state. The guard must reject, not block:
// hooks run on the caller's goroutine, so a blocking lock held across the
// hook would deadlock on re-entry instead of failing it.
func (h *Hub) enter() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.entered {
		return ErrReentrantCall
	}
	h.entered = true
	return nil
}

func (h *Hub) leave() {
	h.mu.Lock()
	h.entered = false
	h.mu.Unlock()
}

// loadEntry returns nil (no error) when spoke has no entry yet.
func (h *Hub) loadEntry(spoke types.Address) (*Entry, error) {
	raw, err := h.db.Get(spokeKey(spoke))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load treasury entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode treasury entry: %w", err)
	}
	return &entry, nil
}

func (h *Hub) storeEntry(spoke types.Address, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode treasury entry: %w", err)
	}
	if err := h.db.Put(spokeKey(spoke), data); err != nil {
		return fmt.Errorf("store treasury entry: %w", err)
	}
	return nil
}

func spokeKey(spoke types.Address) []byte {
	key := make([]byte, len(prefixSpoke)+types.AddressSize)
	copy(key, prefixSpoke)
	copy(key[len(prefixSpoke):], spoke[:])
	return key
}
