package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Register, connect, enable, and inspect vaults",
	}

	cmd.AddCommand(newVaultEnableCmd())
	cmd.AddCommand(newVaultConnectCmd())
	cmd.AddCommand(newVaultDisableCmd())
	cmd.AddCommand(newVaultListCmd())

	return cmd
}

func newVaultEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <path> <name>",
		Short: "Create a new remote vault and bind this local directory to it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVaultEnable(cmd, args[0], args[1])
		},
	}
}

func runVaultEnable(cmd *cobra.Command, path, name string) error {
	cc := mustCLIContext(cmd.Context())

	vaultID, err := cc.State.EnableVault(cmd.Context(), path, name)
	if err != nil {
		return fmt.Errorf("enabling vault: %w", err)
	}

	if cc.JSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{"vault_id": vaultID, "path": path})
	}

	fmt.Printf("Enabled vault %q (%s) at %s.\n", name, vaultID, path)

	return nil
}

func newVaultConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <path> <remote-vault-id>",
		Short: "Bind this local directory to an existing remote vault",
		Long: `Bind the local directory to an existing remote vault and run one
additive-only sync cycle so any files already present locally are
preserved rather than overwritten.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVaultConnect(cmd, args[0], args[1])
		},
	}
}

func runVaultConnect(cmd *cobra.Command, path, remoteVaultID string) error {
	cc := mustCLIContext(cmd.Context())

	result, err := cc.State.ConnectVault(cmd.Context(), path, remoteVaultID)
	if err != nil {
		return fmt.Errorf("connecting vault: %w", err)
	}

	if cc.JSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	fmt.Printf("Connected %s to vault %s.\n", path, remoteVaultID)
	fmt.Printf("Pulled %d, pushed %d, conflicts %d.\n", result.FilesDownloaded, result.FilesUploaded, len(result.Conflicts))

	return nil
}

func newVaultDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <path>",
		Short: "Stop syncing a vault and remove its local manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVaultDisable(cmd, args[0])
		},
	}
}

func runVaultDisable(cmd *cobra.Command, path string) error {
	cc := mustCLIContext(cmd.Context())

	vaultID, ok := cc.State.Store.VaultIDForPath(path)
	if !ok {
		return fmt.Errorf("no known vault at %s", path)
	}

	if err := cc.State.DisableVault(path, vaultID); err != nil {
		return fmt.Errorf("disabling vault: %w", err)
	}

	fmt.Printf("Disabled vault %s at %s.\n", vaultID, path)

	return nil
}

func newVaultListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all known vaults",
		RunE:  runVaultList,
	}
}

func runVaultList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	vaults := cc.State.Store.ListVaults()

	if cc.JSON {
		return json.NewEncoder(os.Stdout).Encode(vaults)
	}

	if len(vaults) == 0 {
		fmt.Println("No vaults known. Use 'lazuli-sync vault enable' or 'vault connect' to add one.")
		return nil
	}

	rows := make([][]string, 0, len(vaults))
	for _, v := range vaults {
		enabled := "yes"
		if !v.Enabled {
			enabled = "no"
		}

		rows = append(rows, []string{v.VaultID, v.LocalPath, enabled, string(v.Lifecycle), formatTime(v.LastSyncAtMs)})
	}

	printTable(os.Stdout, []string{"VAULT ID", "PATH", "ENABLED", "STATE", "LAST SYNC"}, rows)

	return nil
}
