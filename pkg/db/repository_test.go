package db

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRepository_UpsertAndQueryCache(t *testing.T) {
	dbPath := "/tmp/test_drivers.db"
	os.Remove(dbPath)
	defer os.Remove(dbPath)

	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	row := &CachedDriver{
		HardwareID:  "VEN_10DE&DEV_1C82",
		Name:        "NVIDIA Graphics Driver",
		Version:     "531.18",
		Vendor:      "NVIDIA",
		DownloadURL: "https://example.com/nvidia-531.18.exe",
		FileSize:    1024,
		SHA256:      "abc123",
	}

	if err := repo.UpsertCachedDriver(row); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	// same identity again must not create a second row
	row.DownloadURL = "https://mirror.example.com/nvidia-531.18.exe"
	if err := repo.UpsertCachedDriver(row); err != nil {
		t.Fatalf("failed to upsert twice: %v", err)
	}

	cached, err := repo.CachedDrivers("VEN_10DE&DEV_1C82", 0)
	if err != nil {
		t.Fatalf("failed to query cache: %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("expected 1 cached row, got %d", len(cached))
	}
	if cached[0].DownloadURL != "https://mirror.example.com/nvidia-531.18.exe" {
		t.Errorf("upsert did not refresh url: got %s", cached[0].DownloadURL)
	}
}

func TestRepository_CacheTTL(t *testing.T) {
	dbPath := "/tmp/test_drivers_ttl.db"
	os.Remove(dbPath)
	defer os.Remove(dbPath)

	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	repo.UpsertCachedDriver(&CachedDriver{
		HardwareID:  "VEN_8086&DEV_153B",
		Name:        "Intel Ethernet Driver",
		Version:     "12.19.2.45",
		DownloadURL: "https://example.com/intel.exe",
		SHA256:      "def456",
	})

	fresh, err := repo.CachedDrivers("VEN_8086&DEV_153B", time.Hour)
	if err != nil {
		t.Fatalf("failed to query cache: %v", err)
	}
	if len(fresh) != 1 {
		t.Errorf("expected fresh row within ttl, got %d rows", len(fresh))
	}

	// a row refreshed just now is outside a negative-offset window only
	// when the ttl has passed; fake that by aging the row directly
	if _, err := repo.db.Exec(`UPDATE driver_cache SET updated_at = datetime('now', '-2 hours')`); err != nil {
		t.Fatalf("failed to age row: %v", err)
	}
	stale, err := repo.CachedDrivers("VEN_8086&DEV_153B", time.Hour)
	if err != nil {
		t.Fatalf("failed to query cache: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("expected expired row to be filtered, got %d rows", len(stale))
	}
}

func TestRepository_RefreshCache(t *testing.T) {
	dbPath := "/tmp/test_drivers_refresh.db"
	os.Remove(dbPath)
	defer os.Remove(dbPath)

	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	repo.UpsertCachedDriver(&CachedDriver{
		HardwareID: "VEN_10EC&DEV_0255", Name: "Old Driver", Version: "1.0",
		DownloadURL: "https://example.com/old.exe", SHA256: "aaa",
	})

	err = repo.RefreshCache(context.Background(), "VEN_10EC&DEV_0255", []*CachedDriver{
		{Name: "Realtek Audio", Version: "6.0.9235.1", DownloadURL: "https://example.com/rt.exe", SHA256: "bbb"},
		{Name: "Realtek Audio", Version: "6.0.9300.1", DownloadURL: "https://example.com/rt2.exe", SHA256: "ccc"},
	})
	if err != nil {
		t.Fatalf("failed to refresh cache: %v", err)
	}

	cached, err := repo.CachedDrivers("VEN_10EC&DEV_0255", 0)
	if err != nil {
		t.Fatalf("failed to query cache: %v", err)
	}
	if len(cached) != 2 {
		t.Fatalf("expected 2 rows after refresh, got %d", len(cached))
	}
	for _, row := range cached {
		if row.Name == "Old Driver" {
			t.Error("stale row survived refresh")
		}
	}
}

func TestRepository_InstallHistory(t *testing.T) {
	dbPath := "/tmp/test_history.db"
	os.Remove(dbPath)
	defer os.Remove(dbPath)

	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	none, err := repo.LatestInstall("PCI\\VEN_10DE&DEV_1C82\\4&2EA5D");
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for device without history, got %+v", none)
	}

	first := &InstallRecord{
		RunID:      "run-1",
		DeviceID:   "PCI\\VEN_10DE&DEV_1C82\\4&2EA5D",
		HardwareID: "PCI\\VEN_10DE&DEV_1C82",
		DriverName: "NVIDIA Graphics Driver",
		OldVersion: "470.00",
		NewVersion: "531.18",
		Status:     StatusRolledBack,
		ErrorKind:  "verification_mismatch",
		BackupPath: "/var/backups/rp-1",
	}
	if err := repo.RecordInstall(first); err != nil {
		t.Fatalf("failed to record install: %v", err)
	}
	if first.ID == 0 {
		t.Error("record id not set")
	}

	second := &InstallRecord{
		RunID:       "run-2",
		DeviceID:    "PCI\\VEN_10DE&DEV_1C82\\4&2EA5D",
		HardwareID:  "PCI\\VEN_10DE&DEV_1C82",
		DriverName:  "NVIDIA Graphics Driver",
		OldVersion:  "470.00",
		NewVersion:  "531.18",
		Status:      StatusSucceeded,
		NeedsReboot: true,
	}
	if err := repo.RecordInstall(second); err != nil {
		t.Fatalf("failed to record install: %v", err)
	}

	latest, err := repo.LatestInstall("PCI\\VEN_10DE&DEV_1C82\\4&2EA5D")
	if err != nil {
		t.Fatalf("failed to query latest: %v", err)
	}
	if latest == nil || latest.Status != StatusSucceeded {
		t.Fatalf("latest install mismatch: %+v", latest)
	}
	if !latest.NeedsReboot {
		t.Error("needs_reboot flag lost")
	}

	records, err := repo.History(10)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RunID != "run-2" {
		t.Errorf("history not newest-first: got %s", records[0].RunID)
	}
}

func TestRepository_RejectsUnknownStatus(t *testing.T) {
	dbPath := "/tmp/test_history_check.db"
	os.Remove(dbPath)
	defer os.Remove(dbPath)

	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	err = repo.RecordInstall(&InstallRecord{
		RunID:      "run-1",
		DeviceID:   "dev",
		DriverName: "x",
		NewVersion: "1.0",
		Status:     "exploded",
	})
	if err == nil {
		t.Error("expected CHECK constraint violation for unknown status")
	}
}

func TestRepository_Purge(t *testing.T) {
	dbPath := "/tmp/test_purge.db"
	os.Remove(dbPath)
	defer os.Remove(dbPath)

	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	repo.UpsertCachedDriver(&CachedDriver{
		HardwareID: "VEN_1002&DEV_73BF", Name: "AMD Driver", Version: "23.2.1",
		DownloadURL: "https://example.com/amd.exe", SHA256: "fff",
	})
	repo.RecordInstall(&InstallRecord{
		RunID: "run-1", DeviceID: "dev", DriverName: "AMD Driver",
		NewVersion: "23.2.1", Status: StatusSucceeded,
	})

	n, err := repo.PurgeCache()
	if err != nil {
		t.Fatalf("failed to purge cache: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged cache row, got %d", n)
	}

	n, err = repo.PurgeHistory(0)
	if err != nil {
		t.Fatalf("failed to purge history: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged history row, got %d", n)
	}
}
