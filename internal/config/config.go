package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Vault    VaultConfig    `yaml:"vault"`
	Provider ProviderConfig `yaml:"provider"`
	Store    StoreConfig    `yaml:"store"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // "1.2" or "1.3"
}

// APIConfig contains API-related configuration.
type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	BasePath  string          `yaml:"base_path"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// AuthConfig contains authentication configuration.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// VaultConfig contains the encryption and staleness settings.
type VaultConfig struct {
	// MasterKey is the base64-encoded 32-byte AES key. Inject it via
	// environment substitution (master_key: ${TOKENVAULT_MASTER_KEY});
	// never commit it in the file.
	MasterKey string `yaml:"master_key"`
	// StalenessBuffer is the safety margin before expiry at which a
	// token is refreshed. Default: 60s.
	StalenessBuffer time.Duration `yaml:"staleness_buffer"`
}

// ProviderConfig contains the OAuth token endpoint settings.
type ProviderConfig struct {
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`
}

// StoreConfig contains credential storage configuration.
type StoreConfig struct {
	// Path is the SQLite database file. Empty selects the in-memory
	// store (tests, throwaway environments).
	Path string `yaml:"path"`
	// AuditRetention is how long audit events are kept before the
	// periodic cleanup removes them. Zero disables pruning.
	AuditRetention time.Duration `yaml:"audit_retention"`
}

// AlertsConfig contains operator notification configuration.
type AlertsConfig struct {
	// Enabled enables or disables the alert service.
	Enabled bool `yaml:"enabled"`
	// BotToken is the Telegram bot token (use ${ENV} substitution).
	BotToken string `yaml:"bot_token"`
	// ChatID is the Telegram chat to notify.
	ChatID int64 `yaml:"chat_id"`
	// Throttle is the minimum time between duplicate reconnect alerts
	// for the same user. Default: 30m.
	Throttle time.Duration `yaml:"throttle"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}

	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}

	if err := c.Alerts.Validate(); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}

	if c.Store.AuditRetention < 0 {
		return fmt.Errorf("store: audit_retention cannot be negative")
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "json"
	}
	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("tls cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("tls key_file is required when TLS is enabled")
		}
		if s.TLS.MinVersion != "" && s.TLS.MinVersion != "1.2" && s.TLS.MinVersion != "1.3" {
			return fmt.Errorf("tls min_version must be either \"1.2\" or \"1.3\"")
		}
		if s.TLS.MinVersion == "" {
			s.TLS.MinVersion = "1.3"
		}
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.BasePath == "" {
		a.BasePath = "/api/v1"
	}
	if a.Auth.Enabled && len(a.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth: api_keys is required when auth is enabled")
	}
	if a.Auth.HeaderName == "" {
		a.Auth.HeaderName = "X-API-Key"
	}
	if a.RateLimit.RequestsPerMinute <= 0 {
		a.RateLimit.RequestsPerMinute = 1000
	}
	if a.RateLimit.Burst <= 0 {
		a.RateLimit.Burst = 100
	}
	return nil
}

// Validate validates vault configuration.
func (v *VaultConfig) Validate() error {
	if v.MasterKey == "" {
		return fmt.Errorf("master_key is required")
	}
	if v.StalenessBuffer < 0 {
		return fmt.Errorf("staleness_buffer cannot be negative")
	}
	if v.StalenessBuffer == 0 {
		v.StalenessBuffer = 60 * time.Second
	}
	return nil
}

// Validate validates provider configuration.
func (p *ProviderConfig) Validate() error {
	if p.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if p.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if p.Timeout == 0 {
		p.Timeout = 15 * time.Second
	}
	return nil
}

// Validate validates alerts configuration and applies defaults.
func (a *AlertsConfig) Validate() error {
	if !a.Enabled {
		return nil
	}
	if a.BotToken == "" {
		return fmt.Errorf("bot_token is required when alerts are enabled")
	}
	if a.ChatID == 0 {
		return fmt.Errorf("chat_id is required when alerts are enabled")
	}
	if a.Throttle <= 0 {
		a.Throttle = 30 * time.Minute
	}
	return nil
}
