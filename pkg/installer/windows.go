// +build windows

package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/driverdock/driverdock/pkg/driver"
	"github.com/driverdock/driverdock/pkg/errors"
	"golang.org/x/sys/windows/registry"
)

// SystemBridge drives the Windows driver tooling: pnputil for INF
// packages and driver export, msiexec for MSI packages, the package's
// own silent installer for EXE, and the registry driver class store
// for version queries.
type SystemBridge struct{}

// NewSystemBridge creates the platform bridge.
func NewSystemBridge() (Bridge, error) {
	return &SystemBridge{}, nil
}

// Default silent flags for exe packages; candidates carrying their own
// flags override these.
var defaultSilentArgs = []string{"/S", "/VERYSILENT", "/NORESTART"}

func (b *SystemBridge) Install(ctx context.Context, path string, format driver.PackageFormat, extraArgs []string) (ExitStatus, error) {
	var cmd *exec.Cmd
	switch format {
	case driver.FormatINF:
		cmd = exec.CommandContext(ctx, "pnputil", "/add-driver", path, "/install")
	case driver.FormatEXE:
		args := extraArgs
		if len(args) == 0 {
			args = defaultSilentArgs
		}
		cmd = exec.CommandContext(ctx, path, args...)
	case driver.FormatMSI:
		cmd = exec.CommandContext(ctx, "msiexec", "/i", path, "/quiet", "/norestart")
	default:
		return ExitStatus{}, fmt.Errorf("unsupported package format %q", format)
	}

	slog.Info("installer_invoke", "format", format, "path", path)
	out, err := cmd.CombinedOutput()
	code, known := exitCode(err)
	if !known {
		return ExitStatus{}, errors.Wrap(err, "installer process failed to run")
	}

	status := ExitStatus{Code: code}
	if strings.Contains(strings.ToLower(string(out)), "reboot") {
		status.RebootRequired = true
	}
	slog.Info("installer_exit", "format", format, "code", status.Code, "reboot", status.RebootRequired)
	return status, nil
}

func (b *SystemBridge) CreateRestorePoint(ctx context.Context, description string) (string, error) {
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command",
		fmt.Sprintf("Checkpoint-Computer -Description %q -RestorePointType MODIFY_SETTINGS", description))
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", errors.Wrap(fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out))),
			"Checkpoint-Computer failed")
	}
	return description, nil
}

func (b *SystemBridge) ExportDriver(ctx context.Context, hardwareID, destDir string) error {
	_, infPath, err := findDriverEntry(hardwareID)
	if err != nil {
		return errors.Wrap(err, "no installed driver to export")
	}
	cmd := exec.CommandContext(ctx, "pnputil", "/export-driver", infPath, destDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrap(fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out))),
			"pnputil export failed")
	}
	return nil
}

func (b *SystemBridge) InstallExported(ctx context.Context, backupDir string) error {
	cmd := exec.CommandContext(ctx, "pnputil",
		"/add-driver", backupDir+`\*.inf`, "/subdirs", "/install")
	out, err := cmd.CombinedOutput()
	code, known := exitCode(err)
	if !known {
		return errors.Wrap(err, "pnputil failed to run")
	}
	if !(ExitStatus{Code: code}).Success() {
		return fmt.Errorf("pnputil reinstall exited with code %d: %s",
			code, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *SystemBridge) Uninstall(ctx context.Context, hardwareID string) error {
	_, infPath, err := findDriverEntry(hardwareID)
	if err != nil {
		return errors.Wrap(err, "no installed driver to uninstall")
	}
	slog.Info("uninstall_invoke", "hardware_id", hardwareID, "inf", infPath)
	cmd := exec.CommandContext(ctx, "pnputil", "/delete-driver", infPath, "/uninstall", "/force")
	out, err := cmd.CombinedOutput()
	code, known := exitCode(err)
	if !known {
		return errors.Wrap(err, "pnputil failed to run")
	}
	if !(ExitStatus{Code: code}).Success() {
		return fmt.Errorf("pnputil delete-driver exited with code %d: %s",
			code, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *SystemBridge) QueryInstalledVersion(ctx context.Context, hardwareID string) (*driver.Version, error) {
	raw, _, err := findDriverEntry(hardwareID)
	if err != nil {
		return nil, nil
	}
	v := driver.ParseVersion(raw)
	return &v, nil
}

// exitCode extracts the process exit code. The second return is false
// when the process never ran.
func exitCode(err error) (int, bool) {
	if err == nil {
		return 0, true
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode(), true
	}
	return 0, false
}

const classRoot = `SYSTEM\CurrentControlSet\Control\Class`

// findDriverEntry walks the driver class store in the registry and
// returns the DriverVersion and InfPath of the entry whose
// MatchingDeviceId matches the hardware ID.
func findDriverEntry(hardwareID string) (version, infPath string, err error) {
	want := strings.ToUpper(hardwareID)

	root, err := registry.OpenKey(registry.LOCAL_MACHINE, classRoot, registry.READ)
	if err != nil {
		return "", "", err
	}
	defer root.Close()

	classes, err := root.ReadSubKeyNames(-1)
	if err != nil {
		return "", "", err
	}

	for _, class := range classes {
		classKey, err := registry.OpenKey(root, class, registry.READ)
		if err != nil {
			continue
		}
		entries, err := classKey.ReadSubKeyNames(-1)
		if err != nil {
			classKey.Close()
			continue
		}
		for _, entry := range entries {
			entryKey, err := registry.OpenKey(classKey, entry, registry.READ)
			if err != nil {
				continue
			}
			matching, _, err := entryKey.GetStringValue("MatchingDeviceId")
			if err != nil {
				entryKey.Close()
				continue
			}
			got := strings.ToUpper(matching)
			// The registry records the ID the driver matched on, which
			// may be shorter than the device's most specific ID.
			if strings.HasPrefix(want, got) || strings.HasPrefix(got, want) {
				version, _, _ = entryKey.GetStringValue("DriverVersion")
				infPath, _, _ = entryKey.GetStringValue("InfPath")
				entryKey.Close()
				classKey.Close()
				if version == "" && infPath == "" {
					return "", "", fmt.Errorf("driver entry for %s has no version or inf", hardwareID)
				}
				return version, infPath, nil
			}
			entryKey.Close()
		}
		classKey.Close()
	}
	return "", "", fmt.Errorf("no driver entry found for %s", hardwareID)
}
