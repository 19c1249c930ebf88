package source

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/driverdock/driverdock/pkg/db"
	"github.com/driverdock/driverdock/pkg/driver"
)

// Cached wraps a source with the sqlite driver cache: rows refreshed
// within ttl are served without touching the inner source, and every
// successful remote fetch replaces the cached set. With a nil inner
// source it degrades to a cache-only source for offline runs.
type Cached struct {
	repo  *db.Repository
	inner Source
	ttl   time.Duration
}

// NewCached creates the caching decorator
func NewCached(repo *db.Repository, inner Source, ttl time.Duration) *Cached {
	return &Cached{repo: repo, inner: inner, ttl: ttl}
}

func (c *Cached) Name() string {
	if c.inner == nil {
		return "driver-cache"
	}
	return "cache(" + c.inner.Name() + ")"
}

func (c *Cached) FetchCandidates(ctx context.Context, hardwareID string) ([]driver.Candidate, error) {
	key := shortKey(hardwareID)
	if key == "" {
		return nil, nil
	}

	rows, err := c.repo.CachedDrivers(key, c.ttl)
	if err != nil {
		slog.Warn("cache_read_failed", "hardware_id", key, "error", err)
	} else if len(rows) > 0 {
		slog.Info("cache_served", "hardware_id", key, "candidate_count", len(rows))
		return rowsToCandidates(rows), nil
	}

	if c.inner == nil {
		return nil, nil
	}

	candidates, err := c.inner.FetchCandidates(ctx, hardwareID)
	if err != nil {
		return nil, err
	}
	if len(candidates) > 0 {
		if err := c.repo.RefreshCache(ctx, key, candidatesToRows(candidates)); err != nil {
			slog.Warn("cache_refresh_failed", "hardware_id", key, "error", err)
		}
	}
	return candidates, nil
}

func candidatesToRows(candidates []driver.Candidate) []*db.CachedDriver {
	rows := make([]*db.CachedDriver, 0, len(candidates))
	for _, c := range candidates {
		row := &db.CachedDriver{
			Name:         c.Name,
			Version:      c.Version,
			Vendor:       c.Vendor,
			DownloadURL:  c.DownloadURL,
			FileSize:     c.FileSize,
			SHA256:       c.SHA256,
			Format:       string(c.Format),
			NeedsReboot:  c.NeedsReboot,
			ReleaseNotes: c.ReleaseNotes,
		}
		if ids, err := json.Marshal(c.HardwareIDs); err == nil {
			row.HardwareIDs = string(ids)
		}
		if len(c.SilentArgs) > 0 {
			if args, err := json.Marshal(c.SilentArgs); err == nil {
				row.SilentArgs = string(args)
			}
		}
		if !c.ReleaseDate.IsZero() {
			row.ReleaseDate = c.ReleaseDate.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return rows
}

func rowsToCandidates(rows []*db.CachedDriver) []driver.Candidate {
	candidates := make([]driver.Candidate, 0, len(rows))
	for _, row := range rows {
		c := driver.Candidate{
			Name:         row.Name,
			Version:      row.Version,
			Vendor:       row.Vendor,
			DownloadURL:  row.DownloadURL,
			FileSize:     row.FileSize,
			SHA256:       row.SHA256,
			Format:       driver.PackageFormat(row.Format),
			NeedsReboot:  row.NeedsReboot,
			ReleaseNotes: row.ReleaseNotes,
		}
		if row.HardwareIDs != "" {
			json.Unmarshal([]byte(row.HardwareIDs), &c.HardwareIDs)
		}
		if len(c.HardwareIDs) == 0 {
			c.HardwareIDs = []string{row.HardwareID}
		}
		if row.SilentArgs != "" {
			json.Unmarshal([]byte(row.SilentArgs), &c.SilentArgs)
		}
		if row.ReleaseDate != "" {
			if ts, err := time.Parse(time.RFC3339, row.ReleaseDate); err == nil {
				c.ReleaseDate = ts
			}
		}
		candidates = append(candidates, c)
	}
	return candidates
}
