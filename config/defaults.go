package config

// Default returns the default daemon configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8670,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Issuance: IssuanceConfig{
			// 1e14 native base units per token.
			PriceNative: "100000000000000",
			// One stable unit per token.
			PriceStable: "1000000000000000000",
			// 425,000 whole tokens per buyer.
			PurchaseLimit: "425000000000000000000000",
			ReclaimDust:   "10",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
