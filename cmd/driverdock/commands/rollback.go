package commands

import (
	"context"
	"fmt"

	"github.com/driverdock/driverdock/internal/config"
	"github.com/driverdock/driverdock/pkg/db"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/installer"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var rollbackDevice string

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Reinstall the backed-up driver from a device's last install",
	RunE:  runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().StringVar(&rollbackDevice, "device", "", "Device instance ID to roll back")
	rollbackCmd.MarkFlagRequired("device")
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	repo, err := db.NewRepository(cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	bridge, err := installer.NewSystemBridge()
	if err != nil {
		return errors.Wrap(err, "installer unavailable")
	}

	return restoreLastBackup(ctx, repo, bridge, rollbackDevice)
}

// restoreLastBackup reinstalls the driver backup recorded with the
// device's most recent install and appends a rolled_back history row.
func restoreLastBackup(ctx context.Context, repo *db.Repository, bridge installer.Bridge, deviceID string) error {
	rec, err := repo.LatestInstall(deviceID)
	if err != nil {
		return errors.Wrap(err, "history lookup failed")
	}
	if rec == nil {
		return fmt.Errorf("no install history for device %s", deviceID)
	}
	if rec.BackupPath == "" {
		return fmt.Errorf("last install of %s has no driver backup", deviceID)
	}

	fmt.Printf("Restoring %s from %s...\n", rec.DriverName, rec.BackupPath)
	if err := bridge.InstallExported(ctx, rec.BackupPath); err != nil {
		return errors.Wrap(err, "backup reinstall failed")
	}

	result := &db.InstallRecord{
		RunID:      uuid.NewString(),
		DeviceID:   rec.DeviceID,
		HardwareID: rec.HardwareID,
		DriverName: rec.DriverName,
		OldVersion: rec.NewVersion,
		NewVersion: rec.OldVersion,
		Status:     db.StatusRolledBack,
		BackupPath: rec.BackupPath,
	}
	if err := repo.RecordInstall(result); err != nil {
		return errors.Wrap(err, "failed to record rollback")
	}

	fmt.Printf("Rolled back %s to %s\n", rec.DeviceID, rec.OldVersion)
	return nil
}
