package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var flagRemote bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of all known vaults",
		Long: `Display every known vault with its enabled state, lifecycle, and last
sync time. Use --remote to additionally fetch account and storage usage
from the server (requires a session).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, flagRemote)
		},
	}

	cmd.Flags().BoolVar(&flagRemote, "remote", false, "enrich with account/usage info from the server")

	return cmd
}

// statusOutput is the JSON output schema for the status command.
type statusOutput struct {
	Vaults  []statusVault  `json:"vaults"`
	Account *statusAccount `json:"account,omitempty"`
}

type statusVault struct {
	VaultID   string `json:"vault_id"`
	Path      string `json:"path"`
	Enabled   bool   `json:"enabled"`
	Lifecycle string `json:"lifecycle"`
	LastSync  string `json:"last_sync"`
	LastError string `json:"last_error,omitempty"`
}

type statusAccount struct {
	Email      string `json:"email"`
	UsedBytes  int64  `json:"used_bytes"`
	QuotaBytes int64  `json:"quota_bytes"`
}

func runStatus(cmd *cobra.Command, remote bool) error {
	cc := mustCLIContext(cmd.Context())

	vaults := cc.State.Store.ListVaults()

	out := statusOutput{Vaults: make([]statusVault, 0, len(vaults))}

	for _, v := range vaults {
		out.Vaults = append(out.Vaults, statusVault{
			VaultID:   v.VaultID,
			Path:      v.LocalPath,
			Enabled:   v.Enabled,
			Lifecycle: string(v.Lifecycle),
			LastSync:  formatTime(v.LastSyncAtMs),
			LastError: v.LastError,
		})
	}

	if remote {
		if err := ensureSession(cmd); err != nil {
			return err
		}

		account, err := fetchStatusAccount(cmd, cc)
		if err != nil {
			return err
		}

		out.Account = account
	}

	if cc.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	printStatusText(out)

	return nil
}

func fetchStatusAccount(cmd *cobra.Command, cc *CLIContext) (*statusAccount, error) {
	user, err := cc.State.Client.GetAccount(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}

	usage, err := cc.State.Client.GetUsage(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("fetching usage: %w", err)
	}

	return &statusAccount{Email: user.Email, UsedBytes: usage.UsedBytes, QuotaBytes: usage.QuotaBytes}, nil
}

func printStatusText(out statusOutput) {
	if len(out.Vaults) == 0 {
		fmt.Println("No vaults known. Use 'lazuli-sync vault enable' or 'vault connect' to add one.")
	} else {
		rows := make([][]string, 0, len(out.Vaults))
		for _, v := range out.Vaults {
			enabled := "yes"
			if !v.Enabled {
				enabled = "no"
			}

			state := v.Lifecycle
			if v.LastError != "" {
				state = fmt.Sprintf("%s (%s)", state, v.LastError)
			}

			rows = append(rows, []string{v.VaultID, v.Path, enabled, state, v.LastSync})
		}

		printTable(os.Stdout, []string{"VAULT ID", "PATH", "ENABLED", "STATE", "LAST SYNC"}, rows)
	}

	if out.Account != nil {
		fmt.Println()
		fmt.Printf("Account: %s\n", out.Account.Email)
		fmt.Printf("Usage:   %s / %s\n", formatSize(out.Account.UsedBytes), formatSize(out.Account.QuotaBytes))
	}
}
