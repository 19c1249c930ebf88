package scanner

import (
	"context"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/driverdock/driverdock/pkg/errors"
)

// deviceFile is the on-disk shape of an exported device inventory
type deviceFile struct {
	Devices []Device `yaml:"devices"`
}

// LoadDevices reads a device inventory exported by `scan --export` or
// written by hand for offline runs
func LoadDevices(path string) ([]Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read device file")
	}

	var file deviceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse device file")
	}

	slog.Info("scanner_devices_loaded", "path", path, "device_count", len(file.Devices))
	return file.Devices, nil
}

// SaveDevices writes a device inventory as YAML
func SaveDevices(path string, devices []Device) error {
	data, err := yaml.Marshal(deviceFile{Devices: devices})
	if err != nil {
		return errors.Wrap(err, "failed to marshal devices")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write device file")
	}

	slog.Info("scanner_devices_saved", "path", path, "device_count", len(devices))
	return nil
}

// FileScanner serves a device inventory from a YAML file
type FileScanner struct {
	Path string
}

func (f *FileScanner) Scan(ctx context.Context) ([]Device, error) {
	return LoadDevices(f.Path)
}
