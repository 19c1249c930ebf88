// Package driver defines the driver package model shared by the
// matcher, the download queue, and the installer.
package driver

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// PackageFormat tells the installer how to invoke a downloaded package.
type PackageFormat string

const (
	FormatUnknown PackageFormat = ""
	FormatINF     PackageFormat = "inf"
	FormatEXE     PackageFormat = "exe"
	FormatMSI     PackageFormat = "msi"
)

// Candidate is a driver package offered by a source for one or more
// hardware IDs. The wire shape is shared by the YAML catalog, the S3
// catalog, and the sqlite cache.
type Candidate struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Version      string        `json:"version" yaml:"version"`
	Vendor       string        `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	DownloadURL  string        `json:"download_url" yaml:"download_url"`
	FileSize     int64         `json:"file_size,omitempty" yaml:"file_size,omitempty"`
	SHA256       string        `json:"sha256" yaml:"sha256"`
	HardwareIDs  []string      `json:"hardware_ids" yaml:"hardware_ids"`
	SupportedOS  []string      `json:"supported_os,omitempty" yaml:"supported_os,omitempty"`
	ReleaseDate  time.Time     `json:"release_date,omitempty" yaml:"release_date,omitempty"`
	ReleaseNotes string        `json:"release_notes,omitempty" yaml:"release_notes,omitempty"`
	NeedsReboot  bool          `json:"needs_reboot,omitempty" yaml:"needs_reboot,omitempty"`
	SilentArgs   []string      `json:"silent_args,omitempty" yaml:"silent_args,omitempty"`
	Format       PackageFormat `json:"format,omitempty" yaml:"format,omitempty"`
}

// ParsedVersion returns the candidate version as a comparable Version.
func (c Candidate) ParsedVersion() Version {
	return ParseVersion(c.Version)
}

// PackageFormat returns the declared format, falling back to the
// download URL's file extension.
func (c Candidate) PackageFormat() PackageFormat {
	if c.Format != FormatUnknown {
		return c.Format
	}
	name := c.DownloadURL
	if u, err := url.Parse(c.DownloadURL); err == nil && u.Path != "" {
		name = u.Path
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".inf":
		return FormatINF
	case ".exe":
		return FormatEXE
	case ".msi":
		return FormatMSI
	}
	return FormatUnknown
}

// Validate checks the fields every downstream stage depends on.
func (c Candidate) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("candidate missing name")
	}
	if c.Version == "" {
		return fmt.Errorf("candidate %q missing version", c.Name)
	}
	if c.DownloadURL == "" {
		return fmt.Errorf("candidate %q missing download URL", c.Name)
	}
	if c.SHA256 == "" {
		return fmt.Errorf("candidate %q missing sha256", c.Name)
	}
	if len(c.SHA256) != 64 {
		return fmt.Errorf("candidate %q has malformed sha256 %q", c.Name, c.SHA256)
	}
	if len(c.HardwareIDs) == 0 {
		return fmt.Errorf("candidate %q lists no hardware IDs", c.Name)
	}
	return nil
}

// FormatBytes renders a byte count for human output.
func FormatBytes(n int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
