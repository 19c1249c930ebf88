// Package installer orchestrates driver installation: restore point
// first, best-effort backup of the current driver, one OS-level
// installer invocation at a time, post-install verification, and
// automatic rollback when anything after the backup goes wrong.
package installer

import (
	"context"

	"github.com/driverdock/driverdock/pkg/driver"
)

// ExitStatus is the result of one installer process invocation.
// Windows installers signal success-with-reboot through exit codes
// 3010 and 1641.
type ExitStatus struct {
	Code           int
	RebootRequired bool
}

// Success reports whether the exit code counts as a successful
// installation, reboot-pending included.
func (s ExitStatus) Success() bool {
	switch s.Code {
	case 0, exitSuccessRebootRequired, exitMsiRebootInitiated:
		return true
	}
	return false
}

// NeedsReboot reports whether the installation requires a restart
// before the new driver is active.
func (s ExitStatus) NeedsReboot() bool {
	return s.RebootRequired ||
		s.Code == exitSuccessRebootRequired ||
		s.Code == exitMsiRebootInitiated
}

const (
	exitSuccessRebootRequired = 3010 // ERROR_SUCCESS_REBOOT_REQUIRED
	exitMsiRebootInitiated    = 1641 // ERROR_SUCCESS_REBOOT_INITIATED
)

// Bridge is the OS installer surface the orchestrator depends on. The
// Windows implementation shells out to pnputil, msiexec, and the
// packages' own silent installers; everything above it is tested
// against fakes.
type Bridge interface {
	// Install invokes the installer appropriate to the package format
	// and returns its exit status. extraArgs overrides the default
	// silent-install arguments for exe packages.
	Install(ctx context.Context, path string, format driver.PackageFormat, extraArgs []string) (ExitStatus, error)

	// CreateRestorePoint creates a system restore point and returns
	// its OS handle.
	CreateRestorePoint(ctx context.Context, description string) (string, error)

	// ExportDriver copies the currently installed driver package for
	// the hardware ID into destDir. Exporting a device that has no
	// driver yet returns an error the caller may ignore.
	ExportDriver(ctx context.Context, hardwareID, destDir string) error

	// InstallExported reinstalls a previously exported driver package
	// from backupDir. This is the rollback path.
	InstallExported(ctx context.Context, backupDir string) error

	// QueryInstalledVersion returns the active driver version for the
	// hardware ID, or nil when no driver is installed.
	QueryInstalledVersion(ctx context.Context, hardwareID string) (*driver.Version, error)

	// Uninstall removes the installed driver package for the hardware
	// ID from the driver store and the devices using it.
	Uninstall(ctx context.Context, hardwareID string) error
}
