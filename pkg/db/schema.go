package db

// Schema defines the SQLite database schema for the update pipeline:
// driver_cache holds candidates fetched from remote sources, keyed by
// short hardware ID, and install_history records the outcome of every
// installation attempt per device.
//
// hardware_ids and silent_args are JSON arrays; a cached candidate must
// round-trip completely or match scores and installer invocations would
// degrade on the cache path.
const Schema = `
CREATE TABLE IF NOT EXISTS driver_cache (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hardware_id TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    vendor TEXT,
    download_url TEXT NOT NULL,
    file_size INTEGER DEFAULT 0,
    sha256 TEXT NOT NULL,
    hardware_ids TEXT,
    silent_args TEXT,
    format TEXT,
    needs_reboot INTEGER NOT NULL DEFAULT 0,
    release_date TEXT,
    release_notes TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(hardware_id, name, version)
);

CREATE INDEX IF NOT EXISTS idx_driver_cache_hardware_id ON driver_cache(hardware_id);
CREATE INDEX IF NOT EXISTS idx_driver_cache_updated_at ON driver_cache(updated_at);

CREATE TABLE IF NOT EXISTS install_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    hardware_id TEXT,
    driver_name TEXT NOT NULL,
    old_version TEXT,
    new_version TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('succeeded', 'failed', 'rolled_back', 'rollback_failed', 'no_match', 'skipped')),
    error_kind TEXT,
    restore_point_id TEXT,
    backup_path TEXT,
    needs_reboot INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_install_history_device_id ON install_history(device_id);
CREATE INDEX IF NOT EXISTS idx_install_history_created_at ON install_history(created_at);
`

// Install history status constants
const (
	StatusSucceeded      = "succeeded"
	StatusFailed         = "failed"
	StatusRolledBack     = "rolled_back"
	StatusRollbackFailed = "rollback_failed"
	StatusNoMatch        = "no_match"
	StatusSkipped        = "skipped"
)

// CachedDriver represents one cached candidate row
type CachedDriver struct {
	ID           int64
	HardwareID   string
	Name         string
	Version      string
	Vendor       string
	DownloadURL  string
	FileSize     int64
	SHA256       string
	HardwareIDs  string // JSON array
	SilentArgs   string // JSON array
	Format       string
	NeedsReboot  bool
	ReleaseDate  string
	ReleaseNotes string
	CreatedAt    string
	UpdatedAt    string
}

// InstallRecord represents one installation attempt outcome
type InstallRecord struct {
	ID             int64
	RunID          string
	DeviceID       string
	HardwareID     string
	DriverName     string
	OldVersion     string
	NewVersion     string
	Status         string
	ErrorKind      string
	RestorePointID string
	BackupPath     string
	NeedsReboot    bool
	CreatedAt      string
}
