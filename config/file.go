package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "datadir":
		cfg.DataDir = value

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Issuance
	case "issuance.owner":
		cfg.Issuance.Owner = value
	case "issuance.treasury":
		cfg.Issuance.Treasury = value
	case "issuance.sale":
		cfg.Issuance.Sale = value
	case "issuance.vesting":
		cfg.Issuance.Vesting = value
	case "issuance.kycsigner":
		cfg.Issuance.KycSigner = value
	case "issuance.deposit":
		cfg.Issuance.Deposit = value
	case "issuance.pricenative":
		cfg.Issuance.PriceNative = value
	case "issuance.pricestable":
		cfg.Issuance.PriceStable = value
	case "issuance.purchaselimit":
		cfg.Issuance.PurchaseLimit = value
	case "issuance.reclaimdust":
		cfg.Issuance.ReclaimDust = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		return fmt.Errorf("unknown config key")
	}
	return nil
}

func parseBool(value string) bool {
	v := strings.ToLower(value)
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func parseStringList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// WriteDefaultFile writes a commented default config file to path.
func WriteDefaultFile(path string) error {
	content := `# Tokengate daemon configuration
# Lines starting with # are comments.

# Data directory (default: ~/.tokengate)
# datadir = ~/.tokengate

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = 8670
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Issuance bootstrap
# ============================================================================
# Hex addresses. Required on first boot; ignored once state exists.

# issuance.owner = 0x...
# issuance.treasury = 0x...
# issuance.sale = 0x...
# issuance.vesting = 0x...
# issuance.kycsigner = 0x...
# issuance.deposit = 0x...

# Sale pricing in base units
# issuance.pricenative = 100000000000000
# issuance.pricestable = 1000000000000000000
# issuance.purchaselimit = 425000000000000000000000
# issuance.reclaimdust = 10

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
