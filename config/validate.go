package config

import (
	"fmt"

	"github.com/monte1s/tokengate/pkg/types"
)

// Validate checks runtime config for obvious operator mistakes. Issuance
// addresses are checked for format only; whether they are required depends
// on whether state already exists, which the engine decides.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}

	addrs := map[string]string{
		"issuance.owner":     cfg.Issuance.Owner,
		"issuance.treasury":  cfg.Issuance.Treasury,
		"issuance.sale":      cfg.Issuance.Sale,
		"issuance.vesting":   cfg.Issuance.Vesting,
		"issuance.kycsigner": cfg.Issuance.KycSigner,
		"issuance.deposit":   cfg.Issuance.Deposit,
	}
	for field, value := range addrs {
		if value == "" {
			continue
		}
		if _, err := types.ParseAddress(value); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	amounts := map[string]string{
		"issuance.pricenative":   cfg.Issuance.PriceNative,
		"issuance.pricestable":   cfg.Issuance.PriceStable,
		"issuance.purchaselimit": cfg.Issuance.PurchaseLimit,
		"issuance.reclaimdust":   cfg.Issuance.ReclaimDust,
	}
	for field, value := range amounts {
		if value == "" {
			continue
		}
		for _, c := range value {
			if c < '0' || c > '9' {
				return fmt.Errorf("%s must be a decimal amount", field)
			}
		}
	}

	return nil
}
