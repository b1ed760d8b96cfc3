package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/lazuli-sync/internal/syncvault"
)

func newResolveCmd() *cobra.Command {
	var flagKeepLocal, flagKeepRemote, flagKeepBoth, flagAll, flagDryRun bool
	var flagVaultPath string

	cmd := &cobra.Command{
		Use:   "resolve [conflict-path-or-original]",
		Short: "Resolve sync conflicts",
		Long: `Resolve sync conflicts with a chosen strategy.

Strategies:
  --keep-local   Discard the conflict copy, keep the local version
  --keep-remote  Overwrite the local version with the conflict copy
  --keep-both    Keep both versions as separate files

Use --all to resolve every unresolved conflict in the vault with the
chosen strategy. Without --all, a conflict path or its original path
argument is required.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args, flagVaultPath, resolveFlags{
				keepLocal:  flagKeepLocal,
				keepRemote: flagKeepRemote,
				keepBoth:   flagKeepBoth,
				all:        flagAll,
				dryRun:     flagDryRun,
			})
		},
	}

	cmd.Flags().BoolVar(&flagKeepLocal, "keep-local", false, "discard the conflict copy")
	cmd.Flags().BoolVar(&flagKeepRemote, "keep-remote", false, "overwrite local with the conflict copy")
	cmd.Flags().BoolVar(&flagKeepBoth, "keep-both", false, "keep both versions")
	cmd.Flags().BoolVar(&flagAll, "all", false, "resolve all unresolved conflicts")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "preview resolution without executing")
	cmd.Flags().StringVar(&flagVaultPath, "vault", ".", "vault directory to scan for conflicts")

	cmd.MarkFlagsMutuallyExclusive("keep-local", "keep-remote", "keep-both")

	return cmd
}

type resolveFlags struct {
	keepLocal, keepRemote, keepBoth bool
	all, dryRun                     bool
}

func (f resolveFlags) resolution() (syncvault.ConflictResolution, error) {
	switch {
	case f.keepLocal:
		return syncvault.KeepLocal, nil
	case f.keepRemote:
		return syncvault.KeepRemote, nil
	case f.keepBoth:
		return syncvault.KeepBoth, nil
	default:
		return 0, fmt.Errorf("specify a resolution strategy: --keep-local, --keep-remote, or --keep-both")
	}
}

func runResolve(cmd *cobra.Command, args []string, vaultPath string, flags resolveFlags) error {
	cc := mustCLIContext(cmd.Context())

	resolution, err := flags.resolution()
	if err != nil {
		return err
	}

	if !flags.all && len(args) == 0 {
		return fmt.Errorf("specify a conflict path, or use --all to resolve all conflicts")
	}

	if flags.all && len(args) > 0 {
		return fmt.Errorf("--all and a specific conflict argument are mutually exclusive")
	}

	mgr := syncvault.NewConflictManager(cc.Logger)

	conflicts, err := mgr.ListConflicts(vaultPath)
	if err != nil {
		return fmt.Errorf("listing conflicts: %w", err)
	}

	if flags.all {
		return resolveAll(cc, mgr, conflicts, resolution, flags.dryRun)
	}

	return resolveSingle(cc, mgr, conflicts, args[0], resolution, flags.dryRun)
}

func resolveAll(cc *CLIContext, mgr *syncvault.ConflictManager, conflicts []syncvault.ConflictInfo, resolution syncvault.ConflictResolution, dryRun bool) error {
	if len(conflicts) == 0 {
		fmt.Println("No unresolved conflicts.")
		return nil
	}

	for i := range conflicts {
		c := &conflicts[i]

		if dryRun {
			cc.Statusf("Would resolve %s as %s\n", c.ConflictPath, resolutionLabel(resolution))
			continue
		}

		if err := mgr.Resolve(c.ConflictPath, resolution); err != nil {
			return fmt.Errorf("resolving %s: %w", c.ConflictPath, err)
		}

		cc.Statusf("Resolved %s as %s\n", c.ConflictPath, resolutionLabel(resolution))
	}

	return nil
}

func resolveSingle(cc *CLIContext, mgr *syncvault.ConflictManager, conflicts []syncvault.ConflictInfo, pathOrOriginal string, resolution syncvault.ConflictResolution, dryRun bool) error {
	target, err := findConflict(conflicts, pathOrOriginal)
	if err != nil {
		return err
	}

	if target == nil {
		return fmt.Errorf("conflict not found: %s", pathOrOriginal)
	}

	if dryRun {
		cc.Statusf("Would resolve %s as %s\n", target.ConflictPath, resolutionLabel(resolution))
		return nil
	}

	if err := mgr.Resolve(target.ConflictPath, resolution); err != nil {
		return err
	}

	cc.Statusf("Resolved %s as %s\n", target.ConflictPath, resolutionLabel(resolution))

	return nil
}

// resolutionLabel renders a ConflictResolution for display, since the
// type carries no Stringer.
func resolutionLabel(r syncvault.ConflictResolution) string {
	switch r {
	case syncvault.KeepLocal:
		return "keep_local"
	case syncvault.KeepRemote:
		return "keep_remote"
	case syncvault.KeepBoth:
		return "keep_both"
	default:
		return "unknown"
	}
}

// errAmbiguousPrefix is returned when a conflict path basename prefix
// matches more than one conflict and the caller needs to be more specific.
var errAmbiguousPrefix = errors.New("ambiguous conflict prefix — provide more of the path")

// findConflict searches conflicts by exact conflict path, exact original
// path, or a basename prefix of the conflict path.
func findConflict(conflicts []syncvault.ConflictInfo, pathOrOriginal string) (*syncvault.ConflictInfo, error) {
	for i := range conflicts {
		c := &conflicts[i]
		if c.ConflictPath == pathOrOriginal || c.OriginalPath == pathOrOriginal {
			return c, nil
		}
	}

	var match *syncvault.ConflictInfo

	needle := filepath.Base(pathOrOriginal)

	for i := range conflicts {
		c := &conflicts[i]
		base := filepath.Base(c.ConflictPath)

		if len(base) >= len(needle) && base[:len(needle)] == needle {
			if match != nil {
				return nil, errAmbiguousPrefix
			}

			match = c
		}
	}

	return match, nil
}
