package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slighter12/qualityos-mcp-go/config"
	"github.com/slighter12/qualityos-mcp-go/logger"
	"github.com/slighter12/qualityos-mcp-go/rulecatalog"
)

// validateReport is printed by the validate command.
type validateReport struct {
	ConfigPath      string                   `json:"configPath"`
	Files           []rulecatalog.BundleFile `json:"files"`
	DiscoveryErrors []string                 `json:"discoveryErrors,omitempty"`
	Reload          rulecatalog.ReloadResult `json:"reload"`
	Status          rulecatalog.Status       `json:"status"`
	Error           string                   `json:"error,omitempty"`
}

func newValidateCommand(root *rootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and compile the rule catalog and report problems",
		Long: `validate discovers the configured rule bundles, compiles them together with the
embedded default bundle and prints the resulting catalog status as JSON.
It fails when no bundle could be loaded, or with --strict when any file failed
to load or any rule compiled with warnings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := initLogger(cfg.Logging, true); err != nil {
				return err
			}

			report := buildValidateReport(cfg.RuleCatalog)
			report.ConfigPath = path

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			if err := enc.Encode(report); err != nil {
				return err
			}

			if report.Error != "" {
				return fmt.Errorf("rule catalog is invalid: %s", report.Error)
			}
			if strict && (len(report.Status.Warnings) > 0 || len(report.Status.LoadErrors) > 0) {
				return fmt.Errorf("rule catalog has %d warnings and %d load errors",
					len(report.Status.Warnings), len(report.Status.LoadErrors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on compile warnings and load errors")
	return cmd
}

func buildValidateReport(cfg config.RuleCatalog) validateReport {
	var report validateReport
	if cfg.Enabled {
		report.Files, report.DiscoveryErrors = rulecatalog.CollectBundleFiles(cfg.Paths, cfg.AllowedRoots)
	}

	catalog := rulecatalog.New(rulecatalog.Options{
		Enabled:      cfg.Enabled,
		Paths:        cfg.Paths,
		AllowedRoots: cfg.AllowedRoots,
		Logger:       logger.Default(),
	})
	result, err := catalog.Reload()
	if err != nil {
		report.Error = err.Error()
	}
	report.Reload = result
	report.Status = catalog.Status()
	return report
}
