// Package source provides driver candidate sources and the vendor
// registry that decides which sources serve which device.
//
// A source that knows nothing about a hardware ID returns an empty
// list, not an error. Errors are reserved for transport and decoding
// failures; the matcher downgrades them to "no candidates from that
// source".
package source

import (
	"context"
	"log/slog"
	"strings"

	"github.com/driverdock/driverdock/pkg/driver"
	"github.com/driverdock/driverdock/pkg/hwid"
)

// Source supplies driver candidates for a hardware ID
type Source interface {
	Name() string
	FetchCandidates(ctx context.Context, hardwareID string) ([]driver.Candidate, error)
}

// Registry resolves sources by vendor ID. Vendor-specific sources are
// consulted before the default chain; registration order is preserved.
type Registry struct {
	byVendor map[string][]Source
	defaults []Source
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byVendor: make(map[string][]Source)}
}

// Register binds a source to a 4-digit vendor ID
func (r *Registry) Register(vendorID string, src Source) {
	key := strings.ToUpper(vendorID)
	r.byVendor[key] = append(r.byVendor[key], src)
	slog.Info("source_registered", "vendor_id", key, "source", src.Name())
}

// RegisterDefault appends a source consulted for every vendor
func (r *Registry) RegisterDefault(src Source) {
	r.defaults = append(r.defaults, src)
	slog.Info("source_registered", "vendor_id", "*", "source", src.Name())
}

// For returns the sources serving a vendor, vendor-specific first
func (r *Registry) For(vendorID string) []Source {
	sources := append([]Source{}, r.byVendor[strings.ToUpper(vendorID)]...)
	return append(sources, r.defaults...)
}

// shortKey normalizes a hardware ID to its VEN_xxxx&DEV_yyyy lookup
// key, falling back to the uppercased raw string.
func shortKey(hardwareID string) string {
	id := hwid.Parse(hardwareID)
	if short := id.ShortID(); short != "" {
		return short
	}
	return id.Raw
}
