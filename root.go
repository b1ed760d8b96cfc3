package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/lazuli-sync/internal/appstate"
	"github.com/tonimelisma/lazuli-sync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagServerURL  string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// CLIContext bundles the process-wide SyncState and the resolved logger.
// Built once in PersistentPreRunE and threaded through every command via
// the command's context.
type CLIContext struct {
	State  *appstate.SyncState
	Logger *slog.Logger
	JSON   bool
	Quiet  bool
}

type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from ctx, or nil if absent.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. Every command reaches RunE only after PersistentPreRunE has
// populated the context, so a nil result here is a programmer error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "lazuli-sync",
		Short:   "Vault sync client for lazuli",
		Long:    "A client-side sync engine for local-first lazuli vaults.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "sync server URL")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newVaultCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newConflictsCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDevicesCmd())

	return cmd
}

// bootstrap resolves the layered configuration, builds the logger, and
// constructs the process-wide SyncState, stashing it in the command's
// context for every subcommand to share.
func bootstrap(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	env := config.ReadEnvOverrides()
	cli := config.CLIOverrides{ConfigPath: flagConfigPath, ServerURL: flagServerURL}

	cfgPath := config.ResolveConfigPath(env, cli, logger)

	cfg, err := config.LoadOrDefault(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg.Network.ServerURL = config.ResolveServerURL(cfg, env, cli)

	finalLogger := buildLogger(cfg)
	holder := config.NewHolder(cfg, cfgPath)

	state, err := appstate.New(config.DefaultDataDir(), holder, finalLogger)
	if err != nil {
		return fmt.Errorf("initializing sync state: %w", err)
	}

	cc := &CLIContext{State: state, Logger: finalLogger, JSON: flagJSON, Quiet: flagQuiet}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger honoring the config-file log level and
// CLI flag overrides (--verbose/--debug/--quiet always win, and are mutually
// exclusive by Cobra's enforcement). With log_format "auto" (the default),
// output is text on a TTY and JSON otherwise or when --json is passed;
// log_format "text" forces text even with --json, and "json" forces JSON.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	useJSON := flagJSON || (cfg != nil && cfg.Logging.LogFormat == "json")
	if cfg != nil && cfg.Logging.LogFormat == "text" {
		useJSON = false
	}

	if !isatty.IsTerminal(os.Stderr.Fd()) && cfg != nil && cfg.Logging.LogFormat == "auto" {
		useJSON = true
	}

	if useJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
