package config

import (
	"flag"
	"fmt"
	"os"
)

// Flags holds parsed command-line flags.
type Flags struct {
	DataDir string
	Config  string
	RPCAddr string
	RPCPort int
	Help    bool
	Version bool
}

// ParseFlags parses the daemon's command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	flag.StringVar(&f.DataDir, "datadir", "", "data directory (default ~/.tokengate)")
	flag.StringVar(&f.Config, "config", "", "config file path (default <datadir>/tokengate.conf)")
	flag.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	flag.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	flag.BoolVar(&f.Help, "help", false, "show help")
	flag.BoolVar(&f.Version, "version", false, "show version")
	flag.Parse()
	return f
}

// ApplyFlags overrides config values with flags (highest precedence).
func ApplyFlags(cfg *Config, f *Flags) {
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
}

// EnsureDataDirs creates the data directory tree and writes a commented
// default config file on first start.
func EnsureDataDirs(cfg *Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.LogsDir(), cfg.KeystoreDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if _, err := os.Stat(cfg.ConfigFile()); os.IsNotExist(err) {
		if err := WriteDefaultFile(cfg.ConfigFile()); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Load builds the daemon configuration from defaults, the config file and
// command-line flags, in increasing precedence.
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		flag.Usage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("tokengated version 0.1.0")
		os.Exit(0)
	}

	cfg := Default()
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}
