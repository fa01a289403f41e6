package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Version: "1.0",
		Server: ServerConfig{
			Host:            "127.0.0.1",
			HTTPPort:        8417,
			ShutdownTimeout: 30 * time.Second,
			LogLevel:        "info",
			LogFormat:       "json",
		},
		API: APIConfig{
			Enabled:  true,
			BasePath: "/api/v1",
		},
		Vault: VaultConfig{
			MasterKey:       "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=",
			StalenessBuffer: 60 * time.Second,
		},
		Provider: ProviderConfig{
			TokenURL: "https://oauth2.googleapis.com/token",
			ClientID: "client-id.apps.googleusercontent.com",
			Timeout:  15 * time.Second,
		},
		Store: StoreConfig{
			Path: "tokenvault.db",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing version",
			mutate:  func(c *Config) { c.Version = "" },
			wantErr: true,
			errMsg:  "version is required",
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Server.Host = "" },
			wantErr: true,
			errMsg:  "host is required",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: true,
			errMsg:  "http_port must be between",
		},
		{
			name:    "missing master key",
			mutate:  func(c *Config) { c.Vault.MasterKey = "" },
			wantErr: true,
			errMsg:  "master_key is required",
		},
		{
			name:    "negative staleness buffer",
			mutate:  func(c *Config) { c.Vault.StalenessBuffer = -time.Second },
			wantErr: true,
			errMsg:  "staleness_buffer cannot be negative",
		},
		{
			name:    "missing client id",
			mutate:  func(c *Config) { c.Provider.ClientID = "" },
			wantErr: true,
			errMsg:  "client_id is required",
		},
		{
			name:    "auth enabled without keys",
			mutate:  func(c *Config) { c.API.Auth.Enabled = true },
			wantErr: true,
			errMsg:  "api_keys is required",
		},
		{
			name:    "alerts enabled without bot token",
			mutate:  func(c *Config) { c.Alerts.Enabled = true; c.Alerts.ChatID = 42 },
			wantErr: true,
			errMsg:  "bot_token is required",
		},
		{
			name: "tls enabled without cert",
			mutate: func(c *Config) {
				c.Server.TLS.Enabled = true
				c.Server.TLS.KeyFile = "key.pem"
			},
			wantErr: true,
			errMsg:  "cert_file is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ShutdownTimeout = 0
	cfg.Server.LogLevel = ""
	cfg.Vault.StalenessBuffer = 0
	cfg.Provider.Timeout = 0
	cfg.API.Auth.HeaderName = ""
	cfg.API.BasePath = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.Vault.StalenessBuffer)
	assert.Equal(t, 15*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "X-API-Key", cfg.API.Auth.HeaderName)
	assert.Equal(t, "/api/v1", cfg.API.BasePath)
}

func TestAlertsConfig_ThrottleDefault(t *testing.T) {
	cfg := validConfig()
	cfg.Alerts = AlertsConfig{
		Enabled:  true,
		BotToken: "123:abc",
		ChatID:   42,
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Minute, cfg.Alerts.Throttle)
}

const sampleYAML = `
version: "1.0"
server:
  host: "127.0.0.1"
  http_port: 9000
  log_level: debug
vault:
  master_key: "${TOKENVAULT_TEST_KEY}"
  staleness_buffer: 90s
provider:
  client_id: "client-id.apps.googleusercontent.com"
  client_secret: "${TOKENVAULT_TEST_SECRET}"
store:
  path: "/var/lib/tokenvault/credentials.db"
`

func TestLoader_Load(t *testing.T) {
	t.Setenv("TOKENVAULT_TEST_KEY", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	t.Setenv("TOKENVAULT_TEST_SECRET", "shhh")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 90*time.Second, cfg.Vault.StalenessBuffer)
	assert.Equal(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=", cfg.Vault.MasterKey)
	assert.Equal(t, "shhh", cfg.Provider.ClientSecret)
	assert.Equal(t, "/var/lib/tokenvault/credentials.db", cfg.Store.Path)
	assert.Same(t, cfg, loader.Get())
}

func TestLoader_LoadMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := loader.Load()
	require.Error(t, err)
}

func TestLoader_ReloadCallsOnChange(t *testing.T) {
	t.Setenv("TOKENVAULT_TEST_KEY", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	t.Setenv("TOKENVAULT_TEST_SECRET", "shhh")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	var seen *Config
	loader.SetOnChange(func(c *Config) { seen = c })

	cfg, err := loader.Reload()
	require.NoError(t, err)
	assert.Same(t, cfg, seen)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("not: [valid"))
	require.Error(t, err)
}

func TestParse_ValidationFailure(t *testing.T) {
	_, err := Parse([]byte("version: \"1.0\"\nvault:\n  master_key: \"\"\n"))
	require.Error(t, err)
}
