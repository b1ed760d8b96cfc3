package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List and revoke devices registered to the account",
	}

	cmd.AddCommand(newDevicesListCmd())
	cmd.AddCommand(newDevicesRevokeCmd())

	return cmd
}

func newDevicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List devices registered to the account",
		RunE:  runDevicesList,
	}
}

func runDevicesList(cmd *cobra.Command, _ []string) error {
	if err := ensureSession(cmd); err != nil {
		return err
	}

	cc := mustCLIContext(cmd.Context())

	devices, err := cc.State.Client.ListDevices(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	if cc.JSON {
		return json.NewEncoder(os.Stdout).Encode(devices)
	}

	if len(devices) == 0 {
		fmt.Println("No devices registered.")
		return nil
	}

	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{d.ID, d.Name, d.DeviceType, formatTime(d.LastSeenAt)})
	}

	printTable(os.Stdout, []string{"ID", "NAME", "TYPE", "LAST SEEN"}, rows)

	return nil
}

func newDevicesRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <device-id>",
		Short: "Revoke a device's session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevicesRevoke(cmd, args[0])
		},
	}
}

func runDevicesRevoke(cmd *cobra.Command, deviceID string) error {
	if err := ensureSession(cmd); err != nil {
		return err
	}

	cc := mustCLIContext(cmd.Context())

	if err := cc.State.Client.RevokeDevice(cmd.Context(), deviceID); err != nil {
		return fmt.Errorf("revoking device: %w", err)
	}

	fmt.Printf("Revoked device %s.\n", deviceID)

	return nil
}
