package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "dossiers.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(50), cfg.Gmail.MaxResults)
	assert.Equal(t, 5, cfg.Gmail.FetchParallelism)
	assert.InDelta(t, 10, cfg.Gmail.RateLimitPerSec, 0.001)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(4096), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://api.perplexity.ai", cfg.Perplexity.BaseURL)
	assert.Equal(t, "sonar-reasoning", cfg.Perplexity.Model)
	assert.Equal(t, "gmail_token.json", cfg.Auth.TokenFile)
	assert.Equal(t, 24, cfg.Auth.SessionMaxAgeHours)
	assert.Equal(t, 30, cfg.Pipeline.AuthCacheTTLSecs)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/dossiers
log:
  level: debug
  format: console
server:
  port: 9090
gmail:
  max_results: 25
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/dossiers", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(25), cfg.Gmail.MaxResults)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Gmail.FetchParallelism)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DOSSIER_STORE_DRIVER", "postgres")
	t.Setenv("DOSSIER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("DOSSIER_SERVER_PORT", "3000")
	t.Setenv("DOSSIER_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
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

// validDefaults returns a Config populated like Load's defaults plus
// the credentials validation requires.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "dossiers.db"
	cfg.Auth.ClientID = "client-id"
	cfg.Auth.ClientSecret = "client-secret"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Perplexity.Key = "pplx-key"
	cfg.Gmail.FetchParallelism = 5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := &Config{}
	cfg.Gmail.FetchParallelism = 5
	cfg.Server.Port = 8080

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "auth.client_id is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "perplexity.key is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateRun_PortIgnored(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateAuth_OnlyOAuthClientRequired(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.ClientID = "client-id"
	cfg.Auth.ClientSecret = "client-secret"

	assert.NoError(t, cfg.Validate("auth"))

	cfg.Auth.ClientSecret = ""
	err := cfg.Validate("auth")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "auth.client_secret is required")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateFetchParallelismBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Gmail.FetchParallelism = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fetch_parallelism must be between 1 and 20")

	cfg.Gmail.FetchParallelism = 21
	err = cfg.Validate("serve")
	assert.Error(t, err)

	cfg.Gmail.FetchParallelism = 20
	assert.NoError(t, cfg.Validate("serve"))
}
