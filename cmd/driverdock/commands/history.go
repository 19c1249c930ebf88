package commands

import (
	"fmt"

	"github.com/driverdock/driverdock/internal/config"
	"github.com/driverdock/driverdock/pkg/db"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent install attempts",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.DBPath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	records, err := repo.History(historyLimit)
	if err != nil {
		return errors.Wrap(err, "history failed")
	}

	if len(records) == 0 {
		fmt.Println("No install history")
		return nil
	}

	fmt.Printf("%-20s %-28s %-26s %-22s %-16s %s\n", "WHEN", "DEVICE", "DRIVER", "VERSION", "STATUS", "DETAIL")
	fmt.Println("----------------------------------------------------------------------------------------------------------------------------")

	for _, rec := range records {
		version := rec.NewVersion
		if rec.OldVersion != "" && rec.NewVersion != "" {
			version = rec.OldVersion + " -> " + rec.NewVersion
		}
		if version == "" {
			version = "-"
		}
		name := rec.DriverName
		if name == "" {
			name = "-"
		}
		detail := rec.ErrorKind
		if detail == "" && rec.NeedsReboot {
			detail = "reboot required"
		}

		fmt.Printf("%-20s %-28s %-26s %-22s %-16s %s\n",
			truncate(rec.CreatedAt, 20), truncate(rec.DeviceID, 28), truncate(name, 26),
			truncate(version, 22), rec.Status, detail)
	}

	return nil
}
