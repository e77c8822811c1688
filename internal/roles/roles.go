// Package roles implements the capability model: each identity holds a set
// of roles, and every privileged operation resolves through one policy
// table instead of ad hoc checks scattered through business logic.
package roles

import (
	"errors"
	"fmt"

	"github.com/monte1s/tokengate/internal/events"
	"github.com/monte1s/tokengate/internal/storage"
	"github.com/monte1s/tokengate/pkg/types"
)

// Role is a named capability an identity can hold.
type Role string

// Roles recognized by the engine.
const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleExecutive Role = "executive"
	RoleTreasurer Role = "treasurer"
)

// Op is a privileged operation subject to the policy table.
type Op string

// Privileged operations.
const (
	OpGrantRole         Op = "grant_role"
	OpRemoveRestriction Op = "remove_restriction"
	OpMint              Op = "mint"
	OpTreasuryMove      Op = "treasury_move"
	OpSaleAdmin         Op = "sale_admin"
	OpSaleLifecycle     Op = "sale_lifecycle"
)

// policy maps each operation to the roles allowed to perform it.
// Owner is implicitly allowed everywhere.
var policy = map[Op][]Role{
	OpGrantRole:         {},
	OpRemoveRestriction: {RoleAdmin},
	OpMint:              {RoleAdmin},
	OpTreasuryMove:      {RoleExecutive},
	OpSaleAdmin:         {},
	OpSaleLifecycle:     {RoleAdmin},
}

// Authorization errors.
var (
	ErrNotAuthorized = errors.New("identity not authorized for operation")
	ErrUnknownRole   = errors.New("unknown role")
)

var prefixMember = []byte("m/") // m/<role>/<addr(20)> -> 1

// Store persists role membership.
type Store struct {
	db   storage.DB
	feed events.Emitter
}

// New creates a role store.
func New(db storage.DB, feed events.Emitter) *Store {
	return &Store{db: db, feed: feed}
}

// Bootstrap grants the owner role to the given identity. It is called once
// at engine construction and bypasses the grant policy, but refuses to run
// if an owner already exists.
func (s *Store) Bootstrap(owner types.Address) error {
	existing, err := s.Members(RoleOwner)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("owner already bootstrapped")
	}
	return s.db.Put(memberKey(RoleOwner, owner), []byte{1})
}

// Has reports whether id holds the given role.
func (s *Store) Has(role Role, id types.Address) bool {
	ok, err := s.db.Has(memberKey(role, id))
	return err == nil && ok
}

// Authorize checks whether id may perform op, consulting the policy table.
// The owner may perform every operation.
func (s *Store) Authorize(op Op, id types.Address) error {
	if s.Has(RoleOwner, id) {
		return nil
	}
	for _, role := range policy[op] {
		if s.Has(role, id) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s for %s", ErrNotAuthorized, id, op)
}

// Grant gives id the given role. Only identities authorized for
// OpGrantRole (the owner) may grant. Granting an already-held role is
// idempotent and emits no event.
func (s *Store) Grant(granter types.Address, role Role, id types.Address) error {
	if !validRole(role) {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if err := s.Authorize(OpGrantRole, granter); err != nil {
		return err
	}
	if s.Has(role, id) {
		return nil
	}
	if err := s.db.Put(memberKey(role, id), []byte{1}); err != nil {
		return fmt.Errorf("store role: %w", err)
	}
	s.feed.Emit(events.TypeRoleGranted, map[string]string{
		"role":     string(role),
		"identity": id.String(),
	})
	return nil
}

// Revoke removes the given role from id. Revoking a role the identity does
// not hold is idempotent and emits no event.
func (s *Store) Revoke(revoker types.Address, role Role, id types.Address) error {
	if !validRole(role) {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if err := s.Authorize(OpGrantRole, revoker); err != nil {
		return err
	}
	if !s.Has(role, id) {
		return nil
	}
	if err := s.db.Delete(memberKey(role, id)); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	s.feed.Emit(events.TypeRoleRevoked, map[string]string{
		"role":     string(role),
		"identity": id.String(),
	})
	return nil
}

// Members returns every identity holding the given role, in ascending
// address order. No index stability is promised across grant/revoke.
func (s *Store) Members(role Role) ([]types.Address, error) {
	prefix := append(append([]byte{}, prefixMember...), []byte(string(role)+"/")...)
	var members []types.Address
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		raw := key[len(prefix):]
		addr, err := types.BytesToAddress(raw)
		if err != nil {
			return nil // Malformed key, skip.
		}
		members = append(members, addr)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan role members: %w", err)
	}
	return members, nil
}

func validRole(role Role) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleExecutive, RoleTreasurer:
		return true
	}
	return false
}

func memberKey(role Role, id types.Address) []byte {
	key := make([]byte, 0, len(prefixMember)+len(role)+1+types.AddressSize)
	key = append(key, prefixMember...)
	key = append(key, role...)
	key = append(key, '/')
	key = append(key, id[:]...)
	return key
}
