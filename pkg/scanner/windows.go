// +build windows

package scanner

import (
	"context"
	"log/slog"
	"os/exec"

	"github.com/driverdock/driverdock/pkg/errors"
)

// SystemScanner enumerates connected devices through pnputil
type SystemScanner struct{}

// NewSystemScanner creates the platform scanner
func NewSystemScanner() (Scanner, error) {
	return &SystemScanner{}, nil
}

func (s *SystemScanner) Scan(ctx context.Context) ([]Device, error) {
	slog.Info("scanner_enum_start")

	cmd := exec.CommandContext(ctx, "pnputil", "/enum-devices", "/ids", "/connected")
	out, err := cmd.Output()
	if err != nil {
		slog.Error("scanner_enum_failed", "error", err)
		return nil, errors.Wrap(err, "failed to enumerate devices")
	}

	devices := parseEnumDevices(string(out))
	slog.Info("scanner_enum_complete", "device_count", len(devices))
	return devices, nil
}
