package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18790,
			RateLimitRPM: 120,
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "~/.coderoom/coderoom.db",
		},
		Storage: StorageConfig{
			DataDir:          "~/.coderoom/data",
			BlobStoreDir:     "~/.coderoom/data/blobs",
			TerminalCacheDir: "~/.coderoom/data/.terminal-output-cache",
		},
		Tools: ToolsConfig{
			Browser: BrowserToolConfig{
				Enabled:  true,
				Headless: true,
			},
		},
	}
}

// Load reads config from a JSON5 file, loads an adjacent .env file if
// present, then overlays environment variables. A missing config file is
// not an error — the caller gets defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays environment variables onto the config. Env
// vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("CODEROOM_HOST", &c.Gateway.Host)
	if v := os.Getenv("CODEROOM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("CODEROOM_RATE_LIMIT_RPM"); v != "" {
		if rpm, err := strconv.Atoi(v); err == nil && rpm >= 0 {
			c.Gateway.RateLimitRPM = rpm
		}
	}
	if v := os.Getenv("CODEROOM_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}

	envStr("CODEROOM_DB_DRIVER", &c.Database.Driver)
	envStr("CODEROOM_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("CODEROOM_POSTGRES_DSN", &c.Database.PostgresDSN)
	if c.Database.PostgresDSN != "" && c.Database.Driver == "sqlite" {
		c.Database.Driver = "postgres"
	}

	envStr("CODEROOM_DATA_DIR", &c.Storage.DataDir)
	envStr("CODEROOM_BLOBSTORE_DIR", &c.Storage.BlobStoreDir)
	envStr("CODEROOM_TERMINAL_CACHE_DIR", &c.Storage.TerminalCacheDir)
}

// ApplyEnvOverrides re-applies environment variable overrides. Exported so
// callers that reload secrets at runtime can restore them after mutating
// the config in place.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
