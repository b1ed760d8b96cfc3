package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/lazuli-sync/internal/syncvault"
)

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts [path]",
		Short: "List unresolved sync conflicts in a vault",
		Long: `Scan a vault directory for unresolved sync conflict files.

With no path, the current directory is used. Use 'lazuli-sync resolve'
to resolve conflicts once listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runConflicts,
	}
}

// conflictJSON is the JSON-serializable representation of a conflict.
type conflictJSON struct {
	OriginalPath string `json:"original_path"`
	ConflictPath string `json:"conflict_path"`
	CreatedAt    string `json:"created_at"`
}

func runConflicts(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	path := "."
	if len(args) == 1 {
		path = args[0]
	}

	mgr := syncvault.NewConflictManager(cc.Logger)

	conflicts, err := mgr.ListConflicts(path)
	if err != nil {
		return fmt.Errorf("listing conflicts: %w", err)
	}

	if len(conflicts) == 0 {
		fmt.Println("No unresolved conflicts.")
		return nil
	}

	if cc.JSON {
		return printConflictsJSON(conflicts)
	}

	printConflictsTable(conflicts)

	return nil
}

func printConflictsJSON(conflicts []syncvault.ConflictInfo) error {
	items := make([]conflictJSON, len(conflicts))
	for i := range conflicts {
		c := &conflicts[i]
		items[i] = conflictJSON{
			OriginalPath: c.OriginalPath,
			ConflictPath: c.ConflictPath,
			CreatedAt:    formatTime(c.CreatedAt),
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printConflictsTable(conflicts []syncvault.ConflictInfo) {
	headers := []string{"ORIGINAL", "CONFLICT COPY", "DETECTED"}
	rows := make([][]string, len(conflicts))

	for i := range conflicts {
		c := &conflicts[i]
		rows[i] = []string{c.OriginalPath, c.ConflictPath, formatTime(c.CreatedAt)}
	}

	printTable(os.Stdout, headers, rows)
}
