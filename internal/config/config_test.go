package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "stocktake.db", cfg.Store.SQLitePath)
	assert.InDelta(t, 10.0, cfg.Rest.RPS, 0.001)
	assert.Equal(t, "clinic", cfg.Scan.Scope)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  sqlite_path: /tmp/shop.db
scan:
  scope: card_shop
  reader_listen: ":9090"
log:
  level: debug
  format: console
server:
  port: 9091
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/shop.db", cfg.Store.SQLitePath)
	assert.Equal(t, "card_shop", cfg.Scan.Scope)
	assert.Equal(t, ":9090", cfg.Scan.ReaderListen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9091, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.InDelta(t, 10.0, cfg.Rest.RPS, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("STOCKTAKE_STORE_DRIVER", "postgres")
	t.Setenv("STOCKTAKE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("STOCKTAKE_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func validConfig() *Config {
	return &Config{
		Store:  StoreConfig{Driver: "postgres", DatabaseURL: "postgres://localhost/stocktake"},
		Rest:   RestConfig{RPS: 10},
		Server: ServerConfig{Port: 8080},
	}
}

func TestValidateScan(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate("scan"))

	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateSQLiteDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store = StoreConfig{Driver: "sqlite", SQLitePath: "x.db"}
	assert.NoError(t, cfg.Validate("scan"))

	cfg.Store.SQLitePath = ""
	err := cfg.Validate("scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.sqlite_path is required")
}

func TestValidateRestDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store = StoreConfig{Driver: "rest"}
	cfg.Rest = RestConfig{BaseURL: "https://api.example.com", RPS: 5}
	assert.NoError(t, cfg.Validate("scan"))

	cfg.Rest.BaseURL = ""
	cfg.Rest.RPS = 0
	err := cfg.Validate("scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rest.base_url is required")
	assert.Contains(t, err.Error(), "rest.rps must be > 0")
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "oracle"
	err := cfg.Validate("scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validConfig()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
