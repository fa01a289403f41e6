package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sitepulse/tokenvault/internal/config"
	"github.com/sitepulse/tokenvault/internal/crypto"
	"github.com/sitepulse/tokenvault/internal/store"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:     "check",
	Aliases: []string{"c", "health", "status"},
	Short:   "Zero-config health check",
	Long: `Perform a health check of the TokenVault installation.

This command checks:
- Configuration validity
- Encryption key usability
- Credential database connectivity

Example:
  tokenvault check`,
	RunE: runCheck,
}

func init() {
	RootCmd.AddCommand(checkCmd)
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	results := []CheckResult{}

	cfg, configResult := checkConfig()
	results = append(results, configResult)

	if cfg != nil {
		results = append(results, checkMasterKey(cfg))
		results = append(results, checkDatabase(cfg))
	}

	return outputCheckResults(results)
}

func checkConfig() (*config.Config, CheckResult) {
	result := CheckResult{
		Name:   "Configuration",
		Status: "OK",
	}

	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		result.Status = "FAIL"
		result.Message = fmt.Sprintf("Failed to load configuration: %v", err)
		return nil, result
	}

	result.Message = fmt.Sprintf("Configuration valid (version: %s)", cfg.Version)
	result.Details = fmt.Sprintf("Server: %s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	return cfg, result
}

func checkMasterKey(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:   "Encryption key",
		Status: "OK",
	}

	cipher, err := crypto.NewCipherFromBase64(cfg.Vault.MasterKey)
	if err != nil {
		result.Status = "FAIL"
		result.Message = fmt.Sprintf("Master key unusable: %v", err)
		return result
	}

	// Round-trip a probe value so a corrupted key surfaces here, not on
	// the first real credential write.
	sealed, err := cipher.Seal("probe")
	if err == nil {
		if _, err = cipher.Open(sealed); err == nil {
			result.Message = "Master key usable, seal/open round trip passed"
			return result
		}
	}
	result.Status = "FAIL"
	result.Message = fmt.Sprintf("Seal/open round trip failed: %v", err)
	return result
}

func checkDatabase(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:   "Database",
		Status: "OK",
	}

	path := storePath(cfg)
	if path == "" {
		result.Message = "No store path configured, in-memory store will be used"
		return result
	}

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		result.Status = "FAIL"
		result.Message = fmt.Sprintf("Failed to open database: %v", err)
		return result
	}
	defer s.Close()

	stats := s.Stats()
	result.Message = fmt.Sprintf("Database connected at: %s", path)
	result.Details = fmt.Sprintf("Credentials: %d, audit events: %d", stats.CredentialCount, stats.AuditEventCount)
	return result
}

func outputCheckResults(results []CheckResult) error {
	if globalFlags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, r.Message)
			if r.Details != "" && globalFlags.Verbose {
				fmt.Fprintf(w, "\t\t%s\n", r.Details)
			}
		}
		w.Flush()
	}

	allPassed := true
	for _, r := range results {
		if r.Status != "OK" {
			allPassed = false
			break
		}
	}

	if !allPassed {
		return fmt.Errorf("health check failed")
	}
	return nil
}
