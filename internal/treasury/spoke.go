package treasury

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/monte1s/tokengate/pkg/types"
)

// CapTreasuryReceiver is the capability a spoke must advertise before the
// hub will push funds to it.
const CapTreasuryReceiver = "treasury.receiver.v1"

// Spoke is the contract surface of a treasury receiver. The hub checks
// Supports before the first transfer and invokes the hooks synchronously
// after moving the underlying tokens, so the spoke can account for the
// movement on its own side.
type Spoke interface {
	Supports(capability string) bool
	ReceiveFromTreasury(amount *uint256.Int) error
	ReclaimToTreasury(amount *uint256.Int) error
}

// Resolver maps an address to a deployed spoke. An address that does not
// resolve is a plain identity, not a contract, and the hub refuses to push
// funds to it.
type Resolver interface {
	Resolve(addr types.Address) (Spoke, bool)
}

// MemoryResolver is an in-process Resolver backed by a map.
type MemoryResolver struct {
	mu     sync.RWMutex
	spokes map[types.Address]Spoke
}

// NewMemoryResolver creates an empty resolver.
func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{spokes: make(map[types.Address]Spoke)}
}

// Register deploys a spoke at the given address.
func (r *MemoryResolver) Register(addr types.Address, s Spoke) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spokes[addr] = s
}

// Deregister removes the spoke at addr, as when a contract self-destructs.
func (r *MemoryResolver) Deregister(addr types.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.spokes, addr)
}

// Resolve returns the spoke deployed at addr.
func (r *MemoryResolver) Resolve(addr types.Address) (Spoke, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.spokes[addr]
	return s, ok
}

// AccountingSpoke is a minimal spoke that tracks cumulative received and
// reclaimed amounts on its own side.
type AccountingSpoke struct {
	mu        sync.Mutex
	received  *uint256.Int
	reclaimed *uint256.Int
}

// NewAccountingSpoke creates a spoke with zeroed counters.
func NewAccountingSpoke() *AccountingSpoke {
	return &AccountingSpoke{
		received:  uint256.NewInt(0),
		reclaimed: uint256.NewInt(0),
	}
}

// Supports reports the treasury-receiver capability.
func (s *AccountingSpoke) Supports(capability string) bool {
	return capability == CapTreasuryReceiver
}

// ReceiveFromTreasury records an incoming amount.
func (s *AccountingSpoke) ReceiveFromTreasury(amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = new(uint256.Int).Add(s.received, amount)
	return nil
}

// ReclaimToTreasury records an outgoing amount.
func (s *AccountingSpoke) ReclaimToTreasury(amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reclaimed = new(uint256.Int).Add(s.reclaimed, amount)
	return nil
}

// Received returns the cumulative amount received from the hub.
func (s *AccountingSpoke) Received() *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(uint256.Int).Set(s.received)
}

// Reclaimed returns the cumulative amount handed back to the hub.
func (s *AccountingSpoke) Reclaimed() *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(uint256.Int).Set(s.reclaimed)
}
