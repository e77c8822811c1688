package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokengate.conf")
	content := `# comment
rpc.port = 9000
rpc.addr = "0.0.0.0"
issuance.owner = 0x0101010101010101010101010101010101010101
log.level = debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	cfg := Default()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}

	if cfg.RPC.Port != 9000 {
		t.Errorf("RPC.Port = %d, want 9000", cfg.RPC.Port)
	}
	if cfg.RPC.Addr != "0.0.0.0" {
		t.Errorf("RPC.Addr = %q, want 0.0.0.0 (quotes stripped)", cfg.RPC.Addr)
	}
	if cfg.Issuance.Owner != "0x0101010101010101010101010101010101010101" {
		t.Errorf("Issuance.Owner = %q", cfg.Issuance.Owner)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadFileMissing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("LoadFile() on missing file error: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("LoadFile() on missing file = %v, want empty", values)
	}
}

func TestApplyFileConfigUnknownKey(t *testing.T) {
	cfg := Default()
	if err := ApplyFileConfig(cfg, map[string]string{"bogus.key": "1"}); err == nil {
		t.Fatal("ApplyFileConfig() with unknown key should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "bad rpc port", mutate: func(c *Config) { c.RPC.Port = 99999 }, wantErr: true},
		{name: "bad owner address", mutate: func(c *Config) { c.Issuance.Owner = "nonsense" }, wantErr: true},
		{name: "bad price", mutate: func(c *Config) { c.Issuance.PriceNative = "12x4" }, wantErr: true},
		{
			name:    "valid owner address",
			mutate:  func(c *Config) { c.Issuance.Owner = "0x0101010101010101010101010101010101010101" },
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
