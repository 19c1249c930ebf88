package source

import (
	"context"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/driverdock/driverdock/pkg/driver"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/hwid"
)

// catalogFile is the on-disk catalog shape, shared with the S3 catalog
// objects (there it is JSON, here YAML).
type catalogFile struct {
	Drivers []driver.Candidate `json:"drivers" yaml:"drivers"`
}

// Catalog serves candidates from a local YAML catalog file, indexed by
// short hardware ID at load time.
type Catalog struct {
	path    string
	byShort map[string][]driver.Candidate
}

// NewCatalog loads and indexes a catalog file. Candidates that fail
// validation are skipped with a warning rather than poisoning the
// whole catalog.
func NewCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read catalog")
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog")
	}

	c := &Catalog{path: path, byShort: make(map[string][]driver.Candidate)}
	skipped := 0
	for _, cand := range file.Drivers {
		if err := cand.Validate(); err != nil {
			slog.Warn("catalog_candidate_skipped", "path", path, "error", err)
			skipped++
			continue
		}
		c.index(cand)
	}

	slog.Info("catalog_loaded", "path", path, "driver_count", len(file.Drivers)-skipped, "skipped", skipped)
	return c, nil
}

func (c *Catalog) index(cand driver.Candidate) {
	seen := make(map[string]bool)
	for _, raw := range cand.HardwareIDs {
		key := shortKey(raw)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		c.byShort[key] = append(c.byShort[key], cand)
	}
}

func (c *Catalog) Name() string { return "file-catalog" }

func (c *Catalog) FetchCandidates(ctx context.Context, hardwareID string) ([]driver.Candidate, error) {
	key := shortKey(hardwareID)
	if key == "" {
		return nil, nil
	}
	matches := c.byShort[key]
	slog.Debug("catalog_fetch", "hardware_id", hardwareID, "key", key, "candidate_count", len(matches))
	return append([]driver.Candidate(nil), matches...), nil
}

// VendorIDs returns the distinct vendor IDs the catalog covers, for
// registry wiring.
func (c *Catalog) VendorIDs() []string {
	seen := make(map[string]bool)
	var vendors []string
	for key := range c.byShort {
		v := hwid.Parse(key).Vendor
		if v != "" && !seen[v] {
			seen[v] = true
			vendors = append(vendors, v)
		}
	}
	return vendors
}
