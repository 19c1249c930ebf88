package security

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
)

// Validator enforces download limits and keeps destination file names
// confined to the work directory. The total-size counter is shared by
// every concurrent transfer of a pipeline run.
type Validator struct {
	maxFileSize  int64
	maxTotalSize int64

	mu               sync.Mutex
	currentTotalSize int64
}

// NewValidator creates a new download validator. Non-positive limits
// disable the corresponding check.
func NewValidator(maxFileSize, maxTotalSize int64) *Validator {
	slog.Info("security_validator_init",
		"max_file_size_mb", maxFileSize/1024/1024,
		"max_total_size_mb", maxTotalSize/1024/1024)

	return &Validator{
		maxFileSize:  maxFileSize,
		maxTotalSize: maxTotalSize,
	}
}

// ValidateURL accepts only http(s) download locations
func (v *Validator) ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		slog.Error("security_url_validation_failed", "url", raw, "error", err)
		return fmt.Errorf("security: malformed download url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		slog.Error("security_url_validation_failed", "url", raw, "reason", "scheme")
		return fmt.Errorf("security: unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		slog.Error("security_url_validation_failed", "url", raw, "reason", "no_host")
		return fmt.Errorf("security: download url %q has no host", raw)
	}
	return nil
}

// SanitizeFileName builds a file name from a driver name and version
// that is safe to place in the work directory.
func SanitizeFileName(name, version, ext string) string {
	base := name + "_" + version
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	base = strings.Trim(base, "._")
	if base == "" {
		base = "driver"
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return base + ext
}

// ValidateDestination joins fileName onto workDir and rejects anything
// that escapes it
func (v *Validator) ValidateDestination(workDir, fileName string) (string, error) {
	if filepath.IsAbs(fileName) {
		slog.Error("security_destination_validation_failed", "file", fileName, "reason", "absolute_path")
		return "", fmt.Errorf("security: absolute destination not allowed: %s", fileName)
	}

	dest := filepath.Clean(filepath.Join(workDir, fileName))
	rel, err := filepath.Rel(workDir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		slog.Error("security_destination_validation_failed", "file", fileName, "reason", "path_traversal")
		return "", fmt.Errorf("security: path traversal detected: %s", fileName)
	}
	return dest, nil
}

// ValidateFileSize checks a declared package size against the per-file
// limit
func (v *Validator) ValidateFileSize(size int64) error {
	if v.maxFileSize > 0 && size > v.maxFileSize {
		slog.Error("security_file_size_exceeded",
			"file_size_mb", size/1024/1024,
			"max_file_size_mb", v.maxFileSize/1024/1024)
		return fmt.Errorf("security: file size %d exceeds max %d", size, v.maxFileSize)
	}
	return nil
}

// AddDownloadedSize tracks the bytes written across all transfers and
// checks them against the total limit
func (v *Validator) AddDownloadedSize(size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.currentTotalSize += size

	if v.maxTotalSize > 0 && v.currentTotalSize > v.maxTotalSize {
		slog.Error("security_total_size_exceeded",
			"current_total_mb", v.currentTotalSize/1024/1024,
			"max_total_mb", v.maxTotalSize/1024/1024)
		return fmt.Errorf("security: total downloaded size %d exceeds max %d",
			v.currentTotalSize, v.maxTotalSize)
	}

	return nil
}

// Reset resets the total size counter
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.currentTotalSize = 0
}

// GetTotalDownloaded returns the bytes accounted so far
func (v *Validator) GetTotalDownloaded() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentTotalSize
}
