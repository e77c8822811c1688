package token

import (
	"errors"
	"fmt"

	"github.com/monte1s/tokengate/internal/events"
	"github.com/monte1s/tokengate/internal/roles"
	"github.com/monte1s/tokengate/pkg/types"
)

// ErrSenderNotRegistered is returned when a restricted transfer originates
// from an identity without a registration entry.
var ErrSenderNotRegistered = errors.New("sender not registered")

// Restricted reports whether the transfer restriction is still in force.
func (l *Ledger) Restricted() (bool, error) {
	raw, err := l.db.Get(keyRestricted)
	if err != nil {
		return false, fmt.Errorf("read restriction state: %w", err)
	}
	return len(raw) == 1 && raw[0] == 1, nil
}

// RemoveTransferRestriction clears the transfer restriction. The valve is
// one-way: there is no operation anywhere in the engine that sets it back.
// Calling it again after it is cleared is a no-op.
func (l *Ledger) RemoveTransferRestriction(caller types.Address) error {
	if err := l.roles.Authorize(roles.OpRemoveRestriction, caller); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	restricted, err := l.Restricted()
	if err != nil {
		return err
	}
	if !restricted {
		return nil
	}
	if err := l.db.Put(keyRestricted, []byte{0}); err != nil {
		return fmt.Errorf("clear restriction: %w", err)
	}

	l.logger.Info().Msg("transfer restriction removed")
	l.feed.Emit(events.TypeRestrictionRemoved, nil)
	return nil
}

// Authorize decides whether sender may originate a transfer. With the
// restriction cleared everyone passes. While restricted, the primary
// treasury, the sale contract, the vesting contract, and admin-privileged
// identities pass unconditionally; everyone else must be registered.
// The recipient never influences the decision.
func (l *Ledger) Authorize(sender types.Address) error {
	restricted, err := l.Restricted()
	if err != nil {
		return err
	}
	if !restricted {
		return nil
	}

	if sender == l.treasury || (!l.sale.IsZero() && sender == l.sale) || (!l.vesting.IsZero() && sender == l.vesting) {
		return nil
	}
	if l.roles.Has(roles.RoleOwner, sender) || l.roles.Has(roles.RoleAdmin, sender) {
		return nil
	}

	registered, err := l.registry.IsRegistered(sender)
	if err != nil {
		return err
	}
	if !registered {
		return fmt.Errorf("%w: %s", ErrSenderNotRegistered, sender)
	}
	return nil
}
