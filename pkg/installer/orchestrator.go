package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/driverdock/driverdock/pkg/driver"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/scanner"
	"github.com/google/uuid"
)

// Status is the lifecycle state of one installation attempt.
type Status string

const (
	StatusPending        Status = "pending"
	StatusBackupCreated  Status = "backup_created"
	StatusInstalling     Status = "installing"
	StatusVerifying      Status = "verifying"
	StatusSucceeded      Status = "succeeded"
	StatusRolledBack     Status = "rolled_back"
	StatusFailed         Status = "failed"
	StatusRollbackFailed Status = "rollback_failed"
)

// RestorePoint pairs the OS restore point handle with the backup
// directory holding the previously installed driver. It is owned by
// the attempt that created it until released on success or consumed by
// a rollback.
type RestorePoint struct {
	ID          string
	Handle      string
	Description string
	BackupDir   string
	HardwareID  string
	CreatedAt   time.Time

	// HasBackup is set when the driver export into BackupDir
	// succeeded; rollback is only possible with a populated backup.
	HasBackup bool
	Released  bool
	Consumed  bool
}

// Request asks the orchestrator to install one downloaded package.
type Request struct {
	Device    scanner.Device
	Candidate driver.Candidate
	FilePath  string
}

// Attempt is the full record of one installation attempt.
type Attempt struct {
	DeviceID         string
	HardwareID       string
	Candidate        driver.Candidate
	Status           Status
	RestorePoint     *RestorePoint
	OldVersion       string
	InstalledVersion string
	NeedsReboot      bool
	Kind             errors.Kind
	Err              error
	StartedAt        time.Time
	FinishedAt       time.Time
}

// BackupPath returns the backup directory for manual recovery, empty
// when no restore point was created.
func (a *Attempt) BackupPath() string {
	if a.RestorePoint == nil {
		return ""
	}
	return a.RestorePoint.BackupDir
}

// Failed reports whether the attempt ended in anything but success.
// A rolled-back attempt restored the previous driver, but the update
// itself still failed.
func (a *Attempt) Failed() bool {
	return a.Status != StatusSucceeded
}

type job struct {
	ctx    context.Context
	req    Request
	result chan *Attempt
}

// Orchestrator serializes installations through a single worker:
// exactly one OS-level installer invocation runs at a time,
// process-wide, in the order requests arrive.
type Orchestrator struct {
	bridge     Bridge
	backupRoot string
	protect    bool

	jobs   chan job
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator. With rollbackProtection disabled no
// restore point is created and failed installs cannot be rolled back.
func New(bridge Bridge, backupRoot string, rollbackProtection bool) *Orchestrator {
	return &Orchestrator{
		bridge:     bridge,
		backupRoot: backupRoot,
		protect:    rollbackProtection,
		jobs:       make(chan job),
	}
}

// Start launches the install worker.
func (o *Orchestrator) Start(ctx context.Context) {
	o.runCtx, o.cancel = context.WithCancel(ctx)
	o.wg.Add(1)
	go o.worker()
}

// Close stops the worker after the in-flight attempt finishes.
func (o *Orchestrator) Close() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.runCtx.Done():
			return
		case j := <-o.jobs:
			// An accepted job runs to a terminal state; the caller's
			// cancellation must not kill the installer mid-flight.
			j.result <- o.perform(context.WithoutCancel(j.ctx), j.req)
		}
	}
}

// Install queues the request and blocks until the attempt finishes.
// Once the worker has picked the request up it runs to a terminal
// state; only the wait for a free worker slot is cancellable.
func (o *Orchestrator) Install(ctx context.Context, req Request) (*Attempt, error) {
	j := job{ctx: ctx, req: req, result: make(chan *Attempt, 1)}
	select {
	case o.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-o.runCtx.Done():
		return nil, o.runCtx.Err()
	}
	select {
	case a := <-j.result:
		return a, nil
	case <-o.runCtx.Done():
		return nil, o.runCtx.Err()
	}
}

func (o *Orchestrator) perform(ctx context.Context, req Request) *Attempt {
	attempt := &Attempt{
		DeviceID:   req.Device.InstanceID,
		HardwareID: req.Device.PrimaryHardwareID(),
		Candidate:  req.Candidate,
		Status:     StatusPending,
		StartedAt:  time.Now(),
	}
	defer func() { attempt.FinishedAt = time.Now() }()

	slog.Info("install_attempt_start",
		"device_id", attempt.DeviceID,
		"driver", req.Candidate.Name,
		"version", req.Candidate.Version,
		"file", req.FilePath)

	if v, err := o.bridge.QueryInstalledVersion(ctx, attempt.HardwareID); err == nil && v != nil {
		attempt.OldVersion = v.String()
	}

	rp, err := o.safetyNet(ctx, attempt)
	if err != nil {
		attempt.Status = StatusFailed
		attempt.Kind = errors.KindRestorePoint
		attempt.Err = err
		slog.Error("install_restore_point_failed", "device_id", attempt.DeviceID, "error", err)
		return attempt
	}
	attempt.Status = StatusBackupCreated

	attempt.Status = StatusInstalling
	format := req.Candidate.PackageFormat()
	exit, err := o.bridge.Install(ctx, req.FilePath, format, req.Candidate.SilentArgs)
	if err != nil {
		return o.rollback(ctx, attempt, rp, errors.KindInstallerExit,
			errors.Wrap(err, "installer invocation failed"))
	}
	if !exit.Success() {
		return o.rollback(ctx, attempt, rp, errors.KindInstallerExit,
			errors.Kindf(errors.KindInstallerExit, "installer exited with code %d", exit.Code))
	}
	attempt.NeedsReboot = exit.NeedsReboot() || req.Candidate.NeedsReboot

	attempt.Status = StatusVerifying
	if attempt.NeedsReboot {
		// The new driver is not active until restart; a version probe
		// would report the old driver and force a spurious rollback.
		slog.Info("install_verify_skipped_reboot_pending", "device_id", attempt.DeviceID)
	} else {
		v, err := o.bridge.QueryInstalledVersion(ctx, attempt.HardwareID)
		if err != nil {
			return o.rollback(ctx, attempt, rp, errors.KindVerification,
				errors.Wrap(err, "post-install version query failed"))
		}
		want := req.Candidate.ParsedVersion()
		if v == nil || !v.Equal(want) {
			got := "none"
			if v != nil {
				got = v.String()
			}
			return o.rollback(ctx, attempt, rp, errors.KindVerification,
				errors.Kindf(errors.KindVerification,
					"installed version %s does not match %s", got, want))
		}
		attempt.InstalledVersion = v.String()
	}
	if attempt.InstalledVersion == "" {
		attempt.InstalledVersion = req.Candidate.ParsedVersion().String()
	}

	if rp != nil {
		rp.Released = true
	}
	attempt.Status = StatusSucceeded
	slog.Info("install_succeeded",
		"device_id", attempt.DeviceID,
		"driver", req.Candidate.Name,
		"version", attempt.InstalledVersion,
		"needs_reboot", attempt.NeedsReboot)
	return attempt
}

// safetyNet creates the restore point and exports the current driver
// into its backup directory. With protection disabled it returns nil;
// a restore point failure is fatal for the attempt.
func (o *Orchestrator) safetyNet(ctx context.Context, attempt *Attempt) (*RestorePoint, error) {
	if !o.protect {
		slog.Warn("install_rollback_protection_disabled", "device_id", attempt.DeviceID)
		return nil, nil
	}

	desc := fmt.Sprintf("driverdock: %s %s", attempt.Candidate.Name, attempt.Candidate.Version)
	handle, err := o.bridge.CreateRestorePoint(ctx, desc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create restore point")
	}

	rp := &RestorePoint{
		ID:          uuid.NewString(),
		Handle:      handle,
		Description: desc,
		BackupDir:   filepath.Join(o.backupRoot, attempt.DeviceSlug()),
		HardwareID:  attempt.HardwareID,
		CreatedAt:   time.Now(),
	}
	if err := os.MkdirAll(rp.BackupDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create backup directory")
	}

	// Absence of a prior driver is not an error; it just means there
	// is nothing to roll back to.
	if err := o.bridge.ExportDriver(ctx, attempt.HardwareID, rp.BackupDir); err != nil {
		slog.Warn("install_backup_export_skipped",
			"device_id", attempt.DeviceID,
			"hardware_id", attempt.HardwareID,
			"error", err)
	} else {
		rp.HasBackup = true
	}

	attempt.RestorePoint = rp
	slog.Info("install_restore_point_created",
		"device_id", attempt.DeviceID,
		"restore_point_id", rp.ID,
		"backup_dir", rp.BackupDir,
		"has_backup", rp.HasBackup)
	return rp, nil
}

// rollback restores the exported backup after a failed install. The
// attempt is still reported as a failure: a successful rollback never
// masks a failed update.
func (o *Orchestrator) rollback(ctx context.Context, attempt *Attempt, rp *RestorePoint, kind errors.Kind, cause error) *Attempt {
	attempt.Kind = kind
	attempt.Err = cause
	slog.Error("install_failed", "device_id", attempt.DeviceID, "kind", kind, "error", cause)

	if rp == nil || !rp.HasBackup {
		attempt.Status = StatusFailed
		slog.Warn("install_rollback_unavailable",
			"device_id", attempt.DeviceID,
			"protection", o.protect,
			"has_backup", rp != nil && rp.HasBackup)
		return attempt
	}

	if err := o.bridge.InstallExported(ctx, rp.BackupDir); err != nil {
		attempt.Status = StatusRollbackFailed
		attempt.Kind = errors.KindRollbackFailed
		attempt.Err = errors.Kindf(errors.KindRollbackFailed,
			"rollback failed after %v; backup retained at %s: %v", cause, rp.BackupDir, err)
		slog.Error("install_rollback_failed",
			"device_id", attempt.DeviceID,
			"backup_dir", rp.BackupDir,
			"error", err)
		return attempt
	}

	rp.Consumed = true
	attempt.Status = StatusRolledBack
	slog.Info("install_rolled_back",
		"device_id", attempt.DeviceID,
		"restored_version", attempt.OldVersion,
		"cause", kind)
	return attempt
}

// DeviceSlug returns a filesystem-safe name for the attempt's backup
// directory.
func (a *Attempt) DeviceSlug() string {
	slug := make([]rune, 0, len(a.DeviceID))
	for _, r := range a.DeviceID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_':
			slug = append(slug, r)
		default:
			slug = append(slug, '_')
		}
	}
	return string(slug) + "-" + uuid.NewString()[:8]
}
