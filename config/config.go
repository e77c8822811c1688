// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Issuance parameters: addresses and prices baked in at first boot
//   - Operational settings: runtime configuration that can change freely
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config holds the daemon's runtime configuration.
type Config struct {
	// Core
	DataDir string `conf:"datadir"`

	// RPC server
	RPC RPCConfig

	// Issuance parameters (used once, at first boot)
	Issuance IssuanceConfig

	// Logging
	Log LogConfig
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// IssuanceConfig holds the issuance bootstrap addresses and sale pricing.
// Addresses are hex-encoded. After first boot the persisted state wins;
// these values only seed an empty database.
type IssuanceConfig struct {
	Owner         string `conf:"issuance.owner"`
	Treasury      string `conf:"issuance.treasury"`
	Sale          string `conf:"issuance.sale"`
	Vesting       string `conf:"issuance.vesting"`
	KycSigner     string `conf:"issuance.kycsigner"`
	Deposit       string `conf:"issuance.deposit"`
	PriceNative   string `conf:"issuance.pricenative"`   // decimal, base units
	PriceStable   string `conf:"issuance.pricestable"`   // decimal, base units
	PurchaseLimit string `conf:"issuance.purchaselimit"` // decimal, base units
	ReclaimDust   string `conf:"issuance.reclaimdust"`   // decimal, base units
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.tokengate
//	macOS:   ~/Library/Application Support/Tokengate
//	Windows: %APPDATA%\Tokengate
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tokengate"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Tokengate")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Tokengate")
		}
		return filepath.Join(home, "AppData", "Roaming", "Tokengate")
	default:
		return filepath.Join(home, ".tokengate")
	}
}

// StateDir returns the ledger database directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.DataDir, "state")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "tokengate.conf")
}
