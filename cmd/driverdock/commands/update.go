package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/driverdock/driverdock/internal/config"
	"github.com/driverdock/driverdock/pkg/db"
	"github.com/driverdock/driverdock/pkg/download"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/installer"
	"github.com/driverdock/driverdock/pkg/matcher"
	"github.com/driverdock/driverdock/pkg/pipeline"
	"github.com/driverdock/driverdock/pkg/security"
	"github.com/driverdock/driverdock/pkg/source"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var (
	updateDevices        []string
	updateInput          string
	updateDryRun         bool
	updateNoRestorePoint bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Match, download, and install driver updates for scanned devices",
	RunE:  runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringArrayVar(&updateDevices, "device", nil, "Limit to device instance ID or VEN_xxxx&DEV_yyyy (repeatable)")
	updateCmd.Flags().StringVar(&updateInput, "input", "", "Device inventory YAML instead of a live scan")
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "Stop after matching; no downloads or installs")
	updateCmd.Flags().BoolVar(&updateNoRestorePoint, "no-restore-point", false, "Install without creating a restore point")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.DBPath, cfg.FSMDBPath, cfg.WorkDir, cfg.BackupDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	devices, err := loadInventory(ctx, cfg, updateInput)
	if err != nil {
		return err
	}
	devices = selectDevices(devices, updateDevices)
	if len(devices) == 0 {
		fmt.Println("No devices to update")
		return nil
	}

	remote, err := buildRemoteSource(ctx, cfg)
	if err != nil {
		return err
	}
	registry := source.NewRegistry()
	registry.RegisterDefault(source.NewCached(repo, remote, cfg.CacheTTL))

	m := matcher.New(registry, cfg.MinScore, 30*time.Second)

	validator := security.NewValidator(cfg.MaxFileSize, cfg.MaxTotalSize)

	queue := download.NewQueue(download.Options{
		WorkDir:         cfg.WorkDir,
		MaxConcurrent:   cfg.MaxConcurrentDownloads,
		ChunkSize:       cfg.ChunkSize,
		TransferRetries: cfg.TransferRetries,
		Limiter:         download.NewLimiter(cfg.SpeedLimit),
		Validator:       validator,
		ProgressBuffer:  cfg.ProgressBuffer,
		Client:          &http.Client{Timeout: cfg.DownloadTimeout},
	})
	queue.Start(ctx)
	defer queue.Close()
	go logProgress(queue.Events())

	var inst pipeline.Installer
	if !updateDryRun {
		bridge, err := installer.NewSystemBridge()
		if err != nil {
			return errors.Wrap(err, "installer unavailable (use --dry-run on this platform)")
		}
		orch := installer.New(bridge, cfg.BackupDir, cfg.RollbackProtection && !updateNoRestorePoint)
		orch.Start(ctx)
		defer orch.Close()
		inst = orch
	}

	machine := pipeline.NewMachine(m, queue, inst, repo, cfg.RetryCount)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "pipeline state manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	controller := pipeline.NewController(machine)
	report, err := controller.Run(ctx, manager, devices, updateDryRun)
	if err != nil {
		return errors.Wrap(err, "pipeline run failed")
	}

	printReport(report)

	if report.Failed > 0 {
		return fmt.Errorf("%d device(s) failed", report.Failed)
	}
	return nil
}

// buildRemoteSource assembles the configured catalog chain: local YAML
// catalog, S3 catalog, both in that order, or nothing (cache-only).
func buildRemoteSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	var members []source.Source

	if cfg.CatalogPath != "" {
		cat, err := source.NewCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, errors.Wrap(err, "catalog load failed")
		}
		members = append(members, cat)
	}
	if cfg.S3Bucket != "" {
		s3cat, err := source.NewS3Catalog(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
		if err != nil {
			return nil, errors.Wrap(err, "S3 catalog failed")
		}
		members = append(members, s3cat)
	}

	switch len(members) {
	case 0:
		slog.Warn("no_remote_source_configured", "mode", "cache_only")
		return nil, nil
	case 1:
		return members[0], nil
	default:
		return source.NewMulti(members...), nil
	}
}

func logProgress(events <-chan download.Event) {
	for ev := range events {
		switch ev.Status {
		case download.StatusDownloading:
			slog.Info("download_progress",
				"task_id", ev.TaskID, "name", ev.Name,
				"bytes", ev.Bytes, "total", ev.Total, "rate", int64(ev.Rate))
		default:
			slog.Info("download_status",
				"task_id", ev.TaskID, "name", ev.Name, "status", ev.Status)
		}
	}
}

func printReport(report *pipeline.Report) {
	fmt.Printf("\nRun %s finished in %s\n\n", report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	fmt.Printf("%-28s %-30s %-22s %-16s %s\n", "DEVICE", "DRIVER", "VERSION", "OUTCOME", "DETAIL")
	fmt.Println("----------------------------------------------------------------------------------------------------------")

	for _, d := range report.Devices {
		name := d.DriverName
		if name == "" {
			name = "-"
		}
		version := d.Version
		if d.OldVersion != "" && d.Version != "" {
			version = d.OldVersion + " -> " + d.Version
		}
		if version == "" {
			version = "-"
		}
		detail := d.Error
		if detail == "" && d.CacheHit {
			detail = "already installed"
		}
		if detail == "" && d.NeedsReboot {
			detail = "reboot required"
		}

		fmt.Printf("%-28s %-30s %-22s %-16s %s\n",
			truncate(d.Device.InstanceID, 28), truncate(name, 30), truncate(version, 22), d.Outcome, detail)
	}

	fmt.Printf("\n%d succeeded, %d failed, %d no match, %d skipped",
		report.Succeeded, report.Failed, report.NoMatch, report.Skipped)
	if n := report.NeedsRebootCount(); n > 0 {
		fmt.Printf(" (%d pending reboot)", n)
	}
	fmt.Println()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
