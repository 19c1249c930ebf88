// Package scanner enumerates devices and their installed drivers.
//
// OS-level enumeration is a thin platform adapter behind the Scanner
// interface; the pipeline itself never shells out. Device lists can
// also be loaded from YAML files for offline runs.
package scanner

import (
	"context"

	"github.com/driverdock/driverdock/pkg/hwid"
)

// Device describes one enumerated device
type Device struct {
	InstanceID    string   `json:"instance_id" yaml:"instance_id"`
	HardwareIDs   []string `json:"hardware_ids" yaml:"hardware_ids"`
	Name          string   `json:"name" yaml:"name"`
	Class         string   `json:"class,omitempty" yaml:"class,omitempty"`
	Manufacturer  string   `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	DriverVersion string   `json:"driver_version,omitempty" yaml:"driver_version,omitempty"`
	DriverDate    string   `json:"driver_date,omitempty" yaml:"driver_date,omitempty"`
}

// Scanner produces the device inventory to run the pipeline over
type Scanner interface {
	Scan(ctx context.Context) ([]Device, error)
}

// PrimaryHardwareID returns the most specific valid hardware ID, which
// is the first one Windows reports.
func (d Device) PrimaryHardwareID() string {
	for _, raw := range d.HardwareIDs {
		if hwid.Valid(raw) {
			return raw
		}
	}
	return ""
}

// ShortID returns the VEN_xxxx&DEV_yyyy form of the primary hardware ID
func (d Device) ShortID() string {
	return hwid.Parse(d.PrimaryHardwareID()).ShortID()
}

// Vendor returns the 4-digit vendor ID of the primary hardware ID
func (d Device) Vendor() string {
	return hwid.Parse(d.PrimaryHardwareID()).Vendor
}
