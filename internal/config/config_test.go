package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Gateway.Port != 18790 {
		t.Fatalf("Port = %d, want 18790", cfg.Gateway.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if !cfg.Tools.Browser.Enabled || !cfg.Tools.Browser.Headless {
		t.Fatal("expected browser tool enabled and headless by default")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 18790 {
		t.Fatalf("Port = %d, want default 18790", cfg.Gateway.Port)
	}
}

func TestLoadParsesJSON5File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	body := `{
		// trailing commas and comments are valid json5
		gateway: { host: "127.0.0.1", port: 9001 },
		database: { driver: "sqlite", sqlite_path: "./db.sqlite" },
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Host != "127.0.0.1" || cfg.Gateway.Port != 9001 {
		t.Fatalf("Gateway = %+v, want overridden host/port", cfg.Gateway)
	}
	if cfg.Database.SQLitePath != "./db.sqlite" {
		t.Fatalf("SQLitePath = %q", cfg.Database.SQLitePath)
	}
}

func TestApplyEnvOverridesTakesPrecedence(t *testing.T) {
	cfg := Default()
	t.Setenv("CODEROOM_HOST", "10.0.0.1")
	t.Setenv("CODEROOM_PORT", "4000")
	t.Setenv("CODEROOM_RATE_LIMIT_RPM", "0")
	t.Setenv("CODEROOM_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg.ApplyEnvOverrides()

	if cfg.Gateway.Host != "10.0.0.1" {
		t.Fatalf("Host = %q, want 10.0.0.1", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 4000 {
		t.Fatalf("Port = %d, want 4000", cfg.Gateway.Port)
	}
	if cfg.Gateway.RateLimitRPM != 0 {
		t.Fatalf("RateLimitRPM = %d, want 0 (env override disables limiting)", cfg.Gateway.RateLimitRPM)
	}
	if len(cfg.Gateway.AllowedOrigins) != 2 {
		t.Fatalf("AllowedOrigins = %v, want two entries", cfg.Gateway.AllowedOrigins)
	}
}

func TestApplyEnvOverridesPostgresDSNSwitchesDriver(t *testing.T) {
	cfg := Default()
	t.Setenv("CODEROOM_POSTGRES_DSN", "postgres://localhost/coderoom")

	cfg.ApplyEnvOverrides()

	if cfg.Database.Driver != "postgres" {
		t.Fatalf("Driver = %q, want postgres once a DSN is set", cfg.Database.Driver)
	}
	if !cfg.IsManagedMode() {
		t.Fatal("expected IsManagedMode to be true with driver=postgres and a DSN set")
	}
}

func TestIsManagedModeFalseForSQLite(t *testing.T) {
	cfg := Default()
	if cfg.IsManagedMode() {
		t.Fatal("expected IsManagedMode false for the default sqlite config")
	}
}

func TestHashIsStableAndChangesWithConfig(t *testing.T) {
	cfg := Default()
	h1 := cfg.Hash()
	h2 := cfg.Hash()
	if h1 != h2 {
		t.Fatalf("Hash is not stable: %q != %q", h1, h2)
	}
	cfg.Gateway.Port = 1
	if cfg.Hash() == h1 {
		t.Fatal("expected Hash to change after mutating the config")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory available: %v", err)
	}
	if got := ExpandHome("~/data"); got != home+"/data" {
		t.Fatalf("ExpandHome(~/data) = %q, want %q", got, home+"/data")
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("ExpandHome should leave absolute paths alone, got %q", got)
	}
	if got := ExpandHome(""); got != "" {
		t.Fatalf("ExpandHome(\"\") = %q, want empty", got)
	}
}

func TestMCPServerConfigIsEnabledDefaultsTrue(t *testing.T) {
	var c MCPServerConfig
	if !c.IsEnabled() {
		t.Fatal("expected a zero-value MCPServerConfig to default to enabled")
	}
	disabled := false
	c.Enabled = &disabled
	if c.IsEnabled() {
		t.Fatal("expected IsEnabled to honor an explicit false")
	}
}
