package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/driverdock/driverdock/internal/config"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/scanner"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(dbPath, fsmDBPath string, dirs ...string) error {
	// Create database directory
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Create pipeline state directory (only needed for update command)
	if fsmDBPath != "" {
		if err := os.MkdirAll(filepath.Dir(fsmDBPath), 0755); err != nil {
			return errors.Wrap(err, "failed to create pipeline state directory")
		}
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "failed to create directory")
		}
	}

	return nil
}

// loadInventory produces the device list for a command: a YAML export
// when --input is given, the live system enumeration otherwise. The
// configured class filters apply in both cases.
func loadInventory(ctx context.Context, cfg *config.Config, inputPath string) ([]scanner.Device, error) {
	var (
		devices []scanner.Device
		err     error
	)
	if inputPath != "" {
		devices, err = scanner.LoadDevices(inputPath)
	} else {
		var sys scanner.Scanner
		sys, err = scanner.NewSystemScanner()
		if err != nil {
			return nil, errors.Wrap(err, "device enumeration unavailable (use --input with an exported inventory)")
		}
		devices, err = sys.Scan(ctx)
	}
	if err != nil {
		return nil, err
	}

	filter := scanner.Filter{
		IncludeClasses: cfg.IncludeClasses,
		ExcludeClasses: cfg.ExcludeClasses,
	}
	return filter.Apply(devices), nil
}

// selectDevices keeps only devices whose instance ID or short hardware
// ID matches one of the requested identifiers. An empty request keeps
// everything.
func selectDevices(devices []scanner.Device, requested []string) []scanner.Device {
	if len(requested) == 0 {
		return devices
	}
	want := make(map[string]bool, len(requested))
	for _, id := range requested {
		want[id] = true
	}
	var kept []scanner.Device
	for _, d := range devices {
		if want[d.InstanceID] || want[d.ShortID()] {
			kept = append(kept, d)
		}
	}
	return kept
}
