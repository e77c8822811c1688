package sale

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/monte1s/tokengate/internal/events"
	"github.com/monte1s/tokengate/internal/roles"
	"github.com/monte1s/tokengate/pkg/types"
)

// Administrative setters. All of them require the sale_admin operation,
// which only the owner holds, and none accept a zero value: clearing a
// parameter is not a supported state.

// SetKycSigner replaces the KYC authority address.
func (e *Engine) SetKycSigner(caller, signer types.Address) error {
	if signer.IsZero() {
		return fmt.Errorf("%w: kyc signer", ErrZeroValue)
	}
	return e.setAddress(caller, keyKycSigner, "kyc_signer", signer)
}

// SetDepositAddress replaces the payment destination.
func (e *Engine) SetDepositAddress(caller, deposit types.Address) error {
	if deposit.IsZero() {
		return fmt.Errorf("%w: deposit address", ErrZeroValue)
	}
	return e.setAddress(caller, keyDeposit, "deposit", deposit)
}

// SetPriceNative replaces the native-currency price per whole token unit.
func (e *Engine) SetPriceNative(caller types.Address, price *uint256.Int) error {
	return e.setAmount(caller, keyPriceNative, "price_native", price)
}

// SetPriceStable replaces the stable-asset price per whole token unit.
func (e *Engine) SetPriceStable(caller types.Address, price *uint256.Int) error {
	return e.setAmount(caller, keyPriceStable, "price_stable", price)
}

// SetPurchaseLimit replaces the per-buyer cumulative cap. Lowering the cap
// below a buyer's already-purchased total blocks further purchases by that
// buyer but never claws anything back.
func (e *Engine) SetPurchaseLimit(caller types.Address, limit *uint256.Int) error {
	return e.setAmount(caller, keyLimit, "purchase_limit", limit)
}

func (e *Engine) setAddress(caller types.Address, key []byte, name string, addr types.Address) error {
	if err := e.roles.Authorize(roles.OpSaleAdmin, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.db.Put(key, addr.Bytes()); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	e.logger.Info().Str("param", name).Str("value", addr.String()).Msg("sale parameter changed")
	e.feed.Emit(events.TypeParamChanged, map[string]string{
		"param": name,
		"value": addr.String(),
	})
	return nil
}

func (e *Engine) setAmount(caller types.Address, key []byte, name string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: %s", ErrZeroValue, name)
	}
	if err := e.roles.Authorize(roles.OpSaleAdmin, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.storeAmount(key, amount); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	e.logger.Info().Str("param", name).Str("value", amount.Dec()).Msg("sale parameter changed")
	e.feed.Emit(events.TypeParamChanged, map[string]string{
		"param": name,
		"value": amount.Dec(),
	})
	return nil
}
