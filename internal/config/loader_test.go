package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
mode = "sync"
log_level = "debug"

[registry]
base_url = "https://registry.test"
api_key = "key-1"
api_secret = "secret-1"
passphrase = "phrase"

[sync]
certificate_type = "certificate_b"
interval = "2s"
trade_limit = 25

[server]
port = 9999
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sync", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://registry.test", cfg.Registry.BaseURL)
	assert.Equal(t, "certificate_b", cfg.Sync.CertificateType)
	assert.Equal(t, 2*time.Second, cfg.Sync.Interval.Duration)
	assert.Equal(t, 25, cfg.Sync.TradeLimit)
	assert.Equal(t, 9999, cfg.Server.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Sync.PollInterval.Duration)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
[registry]
base_url = "https://registry.test"
api_key = "from-file"
api_secret = "secret"
`)

	t.Setenv("CARBONDESK_REGISTRY_API_KEY", "from-env")
	t.Setenv("CARBONDESK_SYNC_INTERVAL", "10s")
	t.Setenv("CARBONDESK_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CARBONDESK_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Registry.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Sync.Interval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Redis.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Registry.BaseURL = ""
	cfg.Sync.CertificateType = "certificate_z"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "base_url")
	assert.Contains(t, err.Error(), "certificate_z")
}

func TestValidate_DefaultsWithCredentialsPass(t *testing.T) {
	cfg := Defaults()
	cfg.Registry.APIKey = "key"
	cfg.Registry.APISecret = "secret"

	assert.NoError(t, cfg.Validate())
}

func TestValidate_EncryptedSecretNeedsPassword(t *testing.T) {
	cfg := Defaults()
	cfg.Registry.APIKey = "key"
	cfg.Registry.EncryptedSecretPath = "/etc/carbondesk/secret.enc"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_password")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Registry.APISecret = "super-secret"
	cfg.Registry.Passphrase = "phrase"
	cfg.Redis.Password = "redis-pw"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Registry.APISecret)
	assert.Equal(t, "***", red.Registry.Passphrase)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// The original is untouched.
	assert.Equal(t, "super-secret", cfg.Registry.APISecret)
}
