package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitepulse/tokenvault/internal/alerts"
	"github.com/sitepulse/tokenvault/internal/api"
	"github.com/sitepulse/tokenvault/internal/cleanup"
	"github.com/sitepulse/tokenvault/internal/config"
	"github.com/sitepulse/tokenvault/internal/crypto"
	"github.com/sitepulse/tokenvault/internal/logging"
	"github.com/sitepulse/tokenvault/internal/metrics"
	"github.com/sitepulse/tokenvault/internal/oauth"
	"github.com/sitepulse/tokenvault/internal/store"
	"github.com/sitepulse/tokenvault/internal/vault"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the TokenVault server",
	Long: `Start the TokenVault HTTP server.

The server exposes token retrieval (with automatic refresh), credential
storage and disconnect, plus /health and /metrics.

Example:
  tokenvault serve --config config.yaml`,
	RunE: runServe,
}

var serveFlags struct {
	Host       string
	Port       int
	Timeout    time.Duration
	TLS        bool
	TLSCert    string
	TLSKey     string
	TLSVersion string
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("SHUTDOWN_TIMEOUT", 30*time.Second), "Shutdown timeout")
	serveCmd.Flags().BoolVar(&serveFlags.TLS, "tls", false, "Enable TLS/HTTPS")
	serveCmd.Flags().StringVar(&serveFlags.TLSCert, "cert", "", "TLS certificate file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSKey, "key", "", "TLS key file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSVersion, "tls-version", "1.3", "Minimum TLS version (1.2 or 1.3)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Println("Starting TokenVault server...")
		log.Printf("Config path: %s", globalFlags.Config)
	}

	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	applyServeFlags(cfg)

	if cfg.Server.TLS.Enabled {
		if err := validateTLSConfig(cfg.Server.TLS); err != nil {
			return fmt.Errorf("TLS validation failed: %w", err)
		}
	}

	cipher, err := crypto.NewCipherFromBase64(cfg.Vault.MasterKey)
	if err != nil {
		return fmt.Errorf("invalid master key: %w", err)
	}

	recordStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	logger := logging.NewLogger(logging.WithLevel(logging.LogLevel(cfg.Server.LogLevel)))

	m := metrics.NewMetrics("tokenvault")

	v := vault.New(cipher, recordStore,
		vault.WithStalenessBuffer(cfg.Vault.StalenessBuffer),
		vault.WithLogger(logger),
		vault.WithCipherMetrics(m),
	)

	endpointOpts := []oauth.EndpointOption{
		oauth.WithHTTPClient(&http.Client{Timeout: cfg.Provider.Timeout}),
	}
	if cfg.Provider.TokenURL != "" {
		endpointOpts = append(endpointOpts, oauth.WithTokenURL(cfg.Provider.TokenURL))
	}
	provider := oauth.NewTokenEndpoint(cfg.Provider.ClientID, cfg.Provider.ClientSecret, endpointOpts...)

	var notifier alerts.Notifier = alerts.NoopNotifier{}
	if cfg.Alerts.Enabled {
		notifier = alerts.NewTelegramNotifier(
			cfg.Alerts.BotToken,
			cfg.Alerts.ChatID,
			nil,
			alerts.NewDedupStore(cfg.Alerts.Throttle),
			alerts.WithNotifierLogger(logger),
		)
		log.Printf("Telegram alerts enabled (chat %d)", cfg.Alerts.ChatID)
	}

	orch := oauth.NewOrchestrator(v, provider,
		oauth.WithLogger(logger),
		oauth.WithMetrics(m),
		oauth.WithAuditSink(recordStore),
		oauth.WithNotifier(notifier),
	)

	server := api.NewServer(cfg.Server, cfg.API, v, orch, recordStore, m)

	janitor := cleanup.NewManager(cleanup.Config{
		Interval:  time.Hour,
		Retention: cfg.Store.AuditRetention,
	}, recordStore, m)
	if err := janitor.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start audit cleanup: %w", err)
	}
	defer janitor.Stop()

	// Hot-reload is limited to logging config; key or store changes need
	// a restart.
	loader.SetOnChange(func(updated *config.Config) {
		log.Printf("Configuration reloaded (version %s)", updated.Version)
	})
	if err := loader.StartWatcher(); err != nil {
		log.Printf("Config watcher warning: %v", err)
	}
	defer loader.StopWatcher()

	setupGracefulShutdown(server, serveFlags.Timeout)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if cfg.Server.TLS.Enabled {
		log.Printf("Starting TokenVault HTTPS server on %s", addr)
	} else {
		log.Printf("Starting TokenVault HTTP server on %s", addr)
	}
	if cfg.Store.Path != "" {
		log.Printf("Database: %s (WAL mode enabled)", storePath(cfg))
	}

	if err := server.Run(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func applyServeFlags(cfg *config.Config) {
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.TLS {
		cfg.Server.TLS.Enabled = true
	}
	if serveFlags.TLSCert != "" {
		cfg.Server.TLS.CertFile = serveFlags.TLSCert
	}
	if serveFlags.TLSKey != "" {
		cfg.Server.TLS.KeyFile = serveFlags.TLSKey
	}
	if serveFlags.TLSVersion != "" {
		cfg.Server.TLS.MinVersion = serveFlags.TLSVersion
	}
}

func storePath(cfg *config.Config) string {
	if globalFlags.DBPath != "" {
		return globalFlags.DBPath
	}
	return cfg.Store.Path
}

// openStore selects in-memory or SQLite storage from config.
func openStore(cfg *config.Config) (store.RecordStore, error) {
	path := storePath(cfg)
	if path == "" {
		log.Println("No store path configured, using in-memory store (credentials lost on restart)")
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(path)
}

// validateTLSConfig validates TLS configuration
func validateTLSConfig(tls config.TLSConfig) error {
	if tls.CertFile == "" {
		return fmt.Errorf("TLS certificate file is required when TLS is enabled")
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("TLS key file is required when TLS is enabled")
	}
	if _, err := os.Stat(tls.CertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file does not exist: %s", tls.CertFile)
	}
	if _, err := os.Stat(tls.KeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file does not exist: %s", tls.KeyFile)
	}
	if tls.MinVersion != "" && tls.MinVersion != "1.2" && tls.MinVersion != "1.3" {
		return fmt.Errorf("TLS min_version must be either \"1.2\" or \"1.3\", got: %s", tls.MinVersion)
	}
	return nil
}

// setupGracefulShutdown handles graceful shutdown on SIGINT/SIGTERM
func setupGracefulShutdown(server *api.Server, timeout time.Duration) {
	sigChan := api.SetupSignalHandler()

	go func() {
		sig := api.WaitForSignal(sigChan)
		log.Printf("Received signal: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		log.Println("Shutting down API server...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}

		log.Println("Graceful shutdown completed")
		os.Exit(0)
	}()
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
