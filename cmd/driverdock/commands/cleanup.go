package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/driverdock/driverdock/internal/config"
	"github.com/driverdock/driverdock/pkg/db"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cleanupAll       bool
	cleanupDownloads bool
	cleanupBackups   bool
	cleanupCache     bool
	cleanupHistory   bool
	cleanupRetention time.Duration
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove downloaded packages, driver backups, and cached data",
	Long: `Clean up resources left behind by pipeline runs:
  --downloads   Remove downloaded driver packages
  --backups     Remove exported driver backups
  --cache       Purge the driver candidate cache
  --history     Purge install history (see --older-than)
  --all         All of the above`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Clean everything")
	cleanupCmd.Flags().BoolVar(&cleanupDownloads, "downloads", false, "Remove downloaded packages")
	cleanupCmd.Flags().BoolVar(&cleanupBackups, "backups", false, "Remove driver backups")
	cleanupCmd.Flags().BoolVar(&cleanupCache, "cache", false, "Purge the candidate cache")
	cleanupCmd.Flags().BoolVar(&cleanupHistory, "history", false, "Purge install history")
	cleanupCmd.Flags().DurationVar(&cleanupRetention, "older-than", 0, "With --history, only purge records older than this (0 = everything)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupAll && !cleanupDownloads && !cleanupBackups && !cleanupCache && !cleanupHistory {
		return fmt.Errorf("must specify --all, --downloads, --backups, --cache, or --history")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if cleanupAll || cleanupDownloads {
		if err := removeDir(cfg.WorkDir, "downloads"); err != nil {
			return err
		}
	}
	if cleanupAll || cleanupBackups {
		if err := removeDir(cfg.BackupDir, "backups"); err != nil {
			return err
		}
	}

	if cleanupAll || cleanupCache || cleanupHistory {
		repo, err := db.NewRepository(cfg.DBPath)
		if err != nil {
			return errors.Wrap(err, "db init failed")
		}
		defer repo.Close()

		if cleanupAll || cleanupCache {
			n, err := repo.PurgeCache()
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d cached candidates\n", n)
		}
		if cleanupAll || cleanupHistory {
			n, err := repo.PurgeHistory(cleanupRetention)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d history records\n", n)
		}
	}

	return nil
}

func removeDir(dir, label string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		fmt.Printf("No %s to clean\n", label)
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, "failed to remove "+label)
	}
	fmt.Printf("Removed %s directory %s\n", label, dir)
	return nil
}
