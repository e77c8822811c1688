package roles

import (
	"errors"
	"testing"

	"github.com/monte1s/tokengate/internal/events"
	"github.com/monte1s/tokengate/internal/storage"
	"github.com/monte1s/tokengate/pkg/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func newStore(t *testing.T) (*Store, *events.Feed) {
	t.Helper()
	db := storage.NewMemory()
	feed, err := events.NewFeed(db)
	if err != nil {
		t.Fatalf("NewFeed() error: %v", err)
	}
	return New(storage.NewPrefixDB(db, []byte("roles/")), feed), feed
}

func TestBootstrap_Once(t *testing.T) {
	s, _ := newStore(t)
	owner := addr(1)

	if err := s.Bootstrap(owner); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	if !s.Has(RoleOwner, owner) {
		t.Error("owner should hold the owner role after bootstrap")
	}
	if err := s.Bootstrap(addr(2)); err == nil {
		t.Error("second Bootstrap() should fail")
	}
}

func TestGrant_Policy(t *testing.T) {
	s, _ := newStore(t)
	owner, exec, stranger := addr(1), addr(2), addr(3)
	if err := s.Bootstrap(owner); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}

	if err := s.Grant(owner, RoleExecutive, exec); err != nil {
		t.Fatalf("Grant() by owner error: %v", err)
	}
	if !s.Has(RoleExecutive, exec) {
		t.Error("exec should hold executive role")
	}

	// Non-owners cannot grant, even holders of other roles.
	if err := s.Grant(exec, RoleTreasurer, stranger); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Grant() by executive error = %v, want ErrNotAuthorized", err)
	}
	if err := s.Grant(stranger, RoleAdmin, stranger); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Grant() by stranger error = %v, want ErrNotAuthorized", err)
	}

	if err := s.Grant(owner, Role("superuser"), stranger); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("Grant() unknown role error = %v, want ErrUnknownRole", err)
	}
}

func TestAuthorize_Table(t *testing.T) {
	s, _ := newStore(t)
	owner, admin, exec, nobody := addr(1), addr(2), addr(3), addr(4)
	if err := s.Bootstrap(owner); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	if err := s.Grant(owner, RoleAdmin, admin); err != nil {
		t.Fatalf("Grant() error: %v", err)
	}
	if err := s.Grant(owner, RoleExecutive, exec); err != nil {
		t.Fatalf("Grant() error: %v", err)
	}

	tests := []struct {
		name string
		op   Op
		id   types.Address
		ok   bool
	}{
		{"owner can do anything", OpTreasuryMove, owner, true},
		{"owner sale admin", OpSaleAdmin, owner, true},
		{"admin can remove restriction", OpRemoveRestriction, admin, true},
		{"admin can mint", OpMint, admin, true},
		{"admin cannot move treasury", OpTreasuryMove, admin, false},
		{"admin cannot grant", OpGrantRole, admin, false},
		{"executive can move treasury", OpTreasuryMove, exec, true},
		{"executive cannot mint", OpMint, exec, false},
		{"nobody can do nothing", OpSaleLifecycle, nobody, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Authorize(tt.op, tt.id)
			if tt.ok && err != nil {
				t.Errorf("Authorize(%s, %s) error: %v", tt.op, tt.id, err)
			}
			if !tt.ok && !errors.Is(err, ErrNotAuthorized) {
				t.Errorf("Authorize(%s, %s) error = %v, want ErrNotAuthorized", tt.op, tt.id, err)
			}
		})
	}
}

func TestRevoke(t *testing.T) {
	s, feed := newStore(t)
	owner, treasurer := addr(1), addr(2)
	if err := s.Bootstrap(owner); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	if err := s.Grant(owner, RoleTreasurer, treasurer); err != nil {
		t.Fatalf("Grant() error: %v", err)
	}

	if err := s.Revoke(owner, RoleTreasurer, treasurer); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if s.Has(RoleTreasurer, treasurer) {
		t.Error("treasurer role should be revoked")
	}

	// Revoking again is idempotent: no new event.
	before := feed.Len()
	if err := s.Revoke(owner, RoleTreasurer, treasurer); err != nil {
		t.Fatalf("second Revoke() error: %v", err)
	}
	if feed.Len() != before {
		t.Error("idempotent revoke must not emit an event")
	}
}

func TestMembers_Order(t *testing.T) {
	s, _ := newStore(t)
	owner := addr(1)
	if err := s.Bootstrap(owner); err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	for _, b := range []byte{9, 3, 7} {
		if err := s.Grant(owner, RoleTreasurer, addr(b)); err != nil {
			t.Fatalf("Grant() error: %v", err)
		}
	}

	members, err := s.Members(RoleTreasurer)
	if err != nil {
		t.Fatalf("Members() error: %v", err)
	}
	want := []types.Address{addr(3), addr(7), addr(9)}
	if len(members) != len(want) {
		t.Fatalf("Members() = %d entries, want %d", len(members), len(want))
	}
	for i := range want {
		if members[i] != want[i] {
			t.Errorf("Members()[%d] = %s, want %s", i, members[i], want[i])
		}
	}
}
