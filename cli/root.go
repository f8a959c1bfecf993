// Package cli is the qualityos command tree.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slighter12/qualityos-mcp-go/config"
	"github.com/slighter12/qualityos-mcp-go/logger"
	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/metrics"
	"github.com/slighter12/qualityos-mcp-go/rulecatalog"
	"github.com/slighter12/qualityos-mcp-go/tools"
	"github.com/slighter12/qualityos-mcp-go/tools/quality"
)

const appName = "qualityos"

type rootOptions struct {
	configPath string
	logLevel   string
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Deterministic marketing copy quality engine",
		Long: `qualityos scores marketing drafts against a rule catalog, rewrites them
pass by pass and reports a scorecard. It serves the engine over MCP
(stdio or streamable HTTP) and can evaluate single drafts from the shell.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (JSON); defaults to QOS_CONFIG_PATH or ~/.qualityos/config/qualityos.json")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(opts),
		newRunCommand(opts),
		newValidateCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// loadConfig reads the config file. Without --config the resolved default path is
// created on first use; an explicit path must exist.
func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	path := strings.TrimSpace(o.configPath)
	if path == "" {
		resolved, err := config.ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		if err := config.EnsureDefaultConfig(resolved); err != nil {
			return nil, "", err
		}
		path = resolved
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, path, fmt.Errorf("load config %s: %w", path, err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(o.logLevel)
		if err := cfg.Validate(); err != nil {
			return nil, path, err
		}
	}
	return cfg, path, nil
}

// initLogger installs the process logger. reserveStdout moves console logging to stderr
// for commands whose stdout carries protocol frames or JSON output.
func initLogger(cfg config.Logging, reserveStdout bool) error {
	var console io.Writer
	switch cfg.Console {
	case config.ConsoleStdout:
		console = os.Stdout
		if reserveStdout {
			console = os.Stderr
		}
	case config.ConsoleStderr:
		console = os.Stderr
	}
	if err := logger.Init(logger.GetLevelFromString(cfg.Level), logger.Format(cfg.Format), console, cfg.Path); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	return nil
}

// engineStack is the catalog, runner and tool manager shared by every command.
type engineStack struct {
	catalog *rulecatalog.Catalog
	runner  *quality.Runner
	manager *tools.Manager
}

// newEngineStack loads the catalog and wires the runner and tool manager. recorder may be nil.
func newEngineStack(cfg *config.Config, recorder *metrics.Recorder) (*engineStack, error) {
	catalog := rulecatalog.New(rulecatalog.Options{
		Enabled:      cfg.RuleCatalog.Enabled,
		Paths:        cfg.RuleCatalog.Paths,
		AllowedRoots: cfg.RuleCatalog.AllowedRoots,
		Logger:       logger.Default(),
	})
	if recorder != nil {
		catalog.Subscribe(recorder.CatalogReloaded)
		catalog.Subscribe(func(rulecatalog.ReloadResult) {
			if snapshot, err := catalog.Snapshot(); err == nil {
				recorder.TrackModules(snapshot)
			}
		})
	}

	result, err := catalog.Reload()
	if err != nil {
		return nil, err
	}
	logger.Info("Rule catalog loaded",
		"rules", result.RuleCount,
		"warnings", result.WarningCount,
		"load_errors", result.LoadErrorCount,
		"fingerprint", result.Fingerprint,
	)

	opts := quality.OptionsFromConfig(cfg.Engine)
	opts.Engine.Logger = logger.Default()
	if recorder != nil {
		opts.Engine.Observer = recorder
	}
	runner := quality.NewRunner(catalog, opts)

	manager := tools.NewDefaultManager(runner)
	if recorder != nil {
		manager.SetCallHook(recorder.ToolCalled)
	}
	return &engineStack{catalog: catalog, runner: runner, manager: manager}, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (protocol %s)\n", mcp.ServerName, mcp.ServerVersion, mcp.ProtocolVersion)
		},
	}
}
