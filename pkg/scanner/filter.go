package scanner

import (
	"log/slog"
	"strings"
)

// Filter narrows a device inventory before matching. Devices without a
// single valid hardware ID are always dropped; class filters are
// case-insensitive.
type Filter struct {
	IncludeClasses []string
	ExcludeClasses []string
}

// Apply returns the devices that pass the filter
func (f Filter) Apply(devices []Device) []Device {
	var kept []Device
	for _, d := range devices {
		if d.PrimaryHardwareID() == "" {
			slog.Debug("scanner_filter_dropped", "instance_id", d.InstanceID, "reason", "no_valid_hardware_id")
			continue
		}
		if len(f.IncludeClasses) > 0 && !containsFold(f.IncludeClasses, d.Class) {
			continue
		}
		if containsFold(f.ExcludeClasses, d.Class) {
			continue
		}
		kept = append(kept, d)
	}
	slog.Info("scanner_filter_applied", "input_count", len(devices), "kept_count", len(kept))
	return kept
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
