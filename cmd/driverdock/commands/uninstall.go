package commands

import (
	"context"
	"fmt"

	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/installer"
	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <hardware-id>",
	Short: "Remove the installed driver package for a hardware ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	bridge, err := installer.NewSystemBridge()
	if err != nil {
		return errors.Wrap(err, "installer unavailable")
	}
	return removeInstalledDriver(context.Background(), bridge, args[0])
}

func removeInstalledDriver(ctx context.Context, bridge installer.Bridge, hardwareID string) error {
	if err := bridge.Uninstall(ctx, hardwareID); err != nil {
		return errors.Wrap(err, "driver uninstall failed")
	}
	fmt.Printf("Uninstalled driver for %s\n", hardwareID)
	return nil
}
