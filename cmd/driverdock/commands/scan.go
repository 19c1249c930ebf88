package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/driverdock/driverdock/internal/config"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/scanner"
	"github.com/spf13/cobra"
)

var (
	scanInput  string
	scanExport string
	scanJSON   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Enumerate devices and their installed drivers",
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanInput, "input", "", "Device inventory YAML instead of a live scan")
	scanCmd.Flags().StringVar(&scanExport, "export", "", "Write the inventory to a YAML file")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the inventory as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	devices, err := loadInventory(ctx, cfg, scanInput)
	if err != nil {
		return err
	}

	if scanExport != "" {
		if err := scanner.SaveDevices(scanExport, devices); err != nil {
			return err
		}
		fmt.Printf("Exported %d devices to %s\n", len(devices), scanExport)
	}

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	fmt.Printf("%-28s %-34s %-12s %-24s %s\n", "INSTANCE", "NAME", "CLASS", "HARDWARE ID", "DRIVER")
	fmt.Println("--------------------------------------------------------------------------------------------------------------")

	for _, d := range devices {
		version := d.DriverVersion
		if version == "" {
			version = "-"
		}
		fmt.Printf("%-28s %-34s %-12s %-24s %s\n",
			truncate(d.InstanceID, 28), truncate(d.Name, 34), truncate(d.Class, 12),
			truncate(d.ShortID(), 24), version)
	}

	return nil
}
