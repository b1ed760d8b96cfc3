package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/lazuli-sync/internal/appstate"
	"github.com/tonimelisma/lazuli-sync/internal/syncvault"
)

// watchDebounceInterval is how often pending watcher events are drained
// and turned into a sync cycle.
const watchDebounceInterval = 500 * time.Millisecond

func newSyncCmd() *cobra.Command {
	var flagAll, flagWatch bool

	cmd := &cobra.Command{
		Use:   "sync [path]",
		Short: "Run a sync cycle for one or all vaults",
		Long: `Run one sync cycle between a local vault directory and its remote
counterpart. With no path, the current directory is used. Use --all to
sync every enabled vault, or --watch to keep syncing as files change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}

			if flagAll {
				return runSyncAll(cmd)
			}

			if flagWatch {
				return runSyncWatch(cmd, path)
			}

			return runSyncOnce(cmd, path)
		},
	}

	cmd.Flags().BoolVar(&flagAll, "all", false, "sync every enabled vault")
	cmd.Flags().BoolVar(&flagWatch, "watch", false, "keep syncing as local files change")
	cmd.MarkFlagsMutuallyExclusive("all", "watch")

	return cmd
}

func resolveVaultID(cc *CLIContext, path string) (string, error) {
	vaultID, ok := cc.State.Store.VaultIDForPath(path)
	if !ok {
		return "", fmt.Errorf("%w: no known vault at %s — run 'vault enable' or 'vault connect' first", syncvault.ErrVaultNotFound, path)
	}

	return vaultID, nil
}

func runSyncOnce(cmd *cobra.Command, path string) error {
	cc := mustCLIContext(cmd.Context())

	vaultID, err := resolveVaultID(cc, path)
	if err != nil {
		return err
	}

	cc.Statusf("Syncing %s...\n", path)

	if err := cc.State.RefreshSessionIfNeeded(cmd.Context()); err != nil {
		return err
	}

	engine := cc.State.NewEngineForVault(vaultID, path)

	result, err := engine.Sync(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	return reportSyncResult(cc, path, result)
}

func runSyncAll(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())

	vaults := cc.State.Store.ListVaults()

	targets := make(map[string]string)
	for _, v := range vaults {
		if v.Enabled {
			targets[v.VaultID] = v.LocalPath
		}
	}

	if len(targets) == 0 {
		cc.Statusf("No enabled vaults to sync.\n")
		return nil
	}

	cc.Statusf("Syncing %d vault(s)...\n", len(targets))

	if err := cc.State.RefreshSessionIfNeeded(cmd.Context()); err != nil {
		return err
	}

	outcomes := cc.State.SyncAllVaults(cmd.Context(), targets)

	return reportSyncOutcomes(cc, outcomes)
}

// watchPIDPath returns a per-vault PID file path under the app data
// directory, keyed by a hash of the absolute vault path so two `sync
// --watch` invocations for the same vault cannot run concurrently.
func watchPIDPath(dataDir, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	sum := sha256.Sum256([]byte(abs))

	return filepath.Join(dataDir, "watch", hex.EncodeToString(sum[:8])+".pid")
}

func runSyncWatch(cmd *cobra.Command, path string) error {
	cc := mustCLIContext(cmd.Context())

	vaultID, err := resolveVaultID(cc, path)
	if err != nil {
		return err
	}

	pidCleanup, err := writePIDFile(watchPIDPath(cc.State.DataDir, path))
	if err != nil {
		return err
	}
	defer pidCleanup()

	watcher, err := syncvault.NewWatcher(path, cc.Logger)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	ctx := cmd.Context()

	changes, err := watcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	debouncer := syncvault.NewDebouncer()
	engine := cc.State.NewEngineForVault(vaultID, path)

	cc.Statusf("Watching %s for changes. Press Ctrl+C to stop.\n", path)

	ticker := time.NewTicker(watchDebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case change, ok := <-changes:
			if !ok {
				return nil
			}

			debouncer.Add(change)

		case <-ticker.C:
			if !debouncer.HasPending() {
				continue
			}

			debouncer.Take()

			if err := cc.State.RefreshSessionIfNeeded(ctx); err != nil {
				cc.Logger.Error("watch: token refresh failed", "error", err)
				continue
			}

			result, err := engine.Sync(ctx)
			if err != nil {
				cc.Logger.Error("watch: sync cycle failed", "path", path, "error", err)
				continue
			}

			if err := reportSyncResult(cc, path, result); err != nil {
				cc.Logger.Warn("watch: sync cycle completed with errors", "path", path, "error", err)
			}
		}
	}
}

func reportSyncResult(cc *CLIContext, path string, result syncvault.SyncOperationResult) error {
	if cc.JSON {
		if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
			return err
		}
	} else {
		printSyncResultText(cc, path, result)
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("sync completed with %d error(s)", len(result.Errors))
	}

	return nil
}

func printSyncResultText(cc *CLIContext, path string, result syncvault.SyncOperationResult) {
	total := result.FilesUploaded + result.FilesDownloaded + result.FilesDeleted

	if total == 0 && len(result.Conflicts) == 0 && len(result.Errors) == 0 {
		cc.Statusf("%s: already in sync (%dms).\n", path, result.DurationMs)
		return
	}

	cc.Statusf("%s: sync complete (%dms)\n", path, result.DurationMs)

	if result.FilesUploaded > 0 {
		cc.Statusf("  Uploaded:   %d\n", result.FilesUploaded)
	}

	if result.FilesDownloaded > 0 {
		cc.Statusf("  Downloaded: %d\n", result.FilesDownloaded)
	}

	if result.FilesDeleted > 0 {
		cc.Statusf("  Deleted:    %d\n", result.FilesDeleted)
	}

	if len(result.Conflicts) > 0 {
		cc.Statusf("  Conflicts:  %d\n", len(result.Conflicts))
	}

	if len(result.Errors) > 0 {
		cc.Statusf("  Errors:     %d\n", len(result.Errors))
	}
}

func reportSyncOutcomes(cc *CLIContext, outcomes []appstate.VaultSyncOutcome) error {
	failed := 0

	if cc.JSON {
		if err := json.NewEncoder(os.Stdout).Encode(outcomes); err != nil {
			return err
		}
	}

	for _, o := range outcomes {
		if o.Err != nil {
			failed++

			if !cc.JSON {
				cc.Statusf("%s: failed: %v\n", o.Path, o.Err)
			}

			continue
		}

		if !cc.JSON {
			printSyncResultText(cc, o.Path, o.Result)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d vault(s) failed to sync", failed, len(outcomes))
	}

	return nil
}
