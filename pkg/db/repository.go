package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/driverdock/driverdock/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the driver cache and the
// install history
type Repository struct {
	db *sql.DB
}

// NewRepository opens the database and applies the schema
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertCachedDriver inserts a candidate row or refreshes it in place
// when the (hardware_id, name, version) identity already exists
func (r *Repository) UpsertCachedDriver(row *CachedDriver) error {
	query := `
		INSERT INTO driver_cache (hardware_id, name, version, vendor, download_url, file_size, sha256,
			hardware_ids, silent_args, format, needs_reboot, release_date, release_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hardware_id, name, version) DO UPDATE SET
			vendor = excluded.vendor,
			download_url = excluded.download_url,
			file_size = excluded.file_size,
			sha256 = excluded.sha256,
			hardware_ids = excluded.hardware_ids,
			silent_args = excluded.silent_args,
			format = excluded.format,
			needs_reboot = excluded.needs_reboot,
			release_date = excluded.release_date,
			release_notes = excluded.release_notes,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.Exec(query,
		row.HardwareID, row.Name, row.Version, row.Vendor,
		row.DownloadURL, row.FileSize, row.SHA256,
		row.HardwareIDs, row.SilentArgs, row.Format, row.NeedsReboot,
		row.ReleaseDate, row.ReleaseNotes)
	if err != nil {
		slog.Error("database_cache_upsert_failed", "hardware_id", row.HardwareID, "name", row.Name, "error", err)
		return errors.Wrap(err, "failed to upsert cached driver")
	}

	slog.Info("database_cache_upserted", "hardware_id", row.HardwareID, "name", row.Name, "version", row.Version)
	return nil
}

// RefreshCache replaces every cached row for a hardware ID with the
// given set inside a single transaction
func (r *Repository) RefreshCache(ctx context.Context, hardwareID string, rows []*CachedDriver) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("database_begin_tx_failed", "error", err)
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM driver_cache WHERE hardware_id = ?`, hardwareID); err != nil {
		slog.Error("database_cache_clear_failed", "hardware_id", hardwareID, "error", err)
		return errors.Wrap(err, "failed to clear cached drivers")
	}

	insert := `
		INSERT INTO driver_cache (hardware_id, name, version, vendor, download_url, file_size, sha256,
			hardware_ids, silent_args, format, needs_reboot, release_date, release_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, row := range rows {
		_, err := tx.ExecContext(ctx, insert,
			hardwareID, row.Name, row.Version, row.Vendor,
			row.DownloadURL, row.FileSize, row.SHA256,
			row.HardwareIDs, row.SilentArgs, row.Format, row.NeedsReboot,
			row.ReleaseDate, row.ReleaseNotes)
		if err != nil {
			slog.Error("database_cache_insert_failed", "hardware_id", hardwareID, "name", row.Name, "error", err)
			return errors.Wrap(err, "failed to insert cached driver")
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("database_commit_failed", "error", err)
		return errors.Wrap(err, "failed to commit transaction")
	}

	slog.Info("database_cache_refreshed", "hardware_id", hardwareID, "row_count", len(rows))
	return nil
}

// CachedDrivers returns the cached candidates for a hardware ID that
// were refreshed within ttl. A non-positive ttl disables expiry.
func (r *Repository) CachedDrivers(hardwareID string, ttl time.Duration) ([]*CachedDriver, error) {
	query := `
		SELECT id, hardware_id, name, version, vendor, download_url, file_size, sha256,
		       hardware_ids, silent_args, format, needs_reboot, release_date, release_notes,
		       created_at, updated_at
		FROM driver_cache WHERE hardware_id = ?
	`
	args := []any{hardwareID}
	if ttl > 0 {
		query += ` AND updated_at >= datetime('now', ?)`
		args = append(args, fmt.Sprintf("-%d seconds", int64(ttl.Seconds())))
	}
	query += ` ORDER BY name, version`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		slog.Error("database_cache_query_failed", "hardware_id", hardwareID, "error", err)
		return nil, errors.Wrap(err, "failed to query cached drivers")
	}
	defer rows.Close()

	var cached []*CachedDriver
	for rows.Next() {
		var row CachedDriver
		var vendor, hardwareIDs, silentArgs, format, releaseDate, releaseNotes sql.NullString
		err := rows.Scan(
			&row.ID, &row.HardwareID, &row.Name, &row.Version, &vendor,
			&row.DownloadURL, &row.FileSize, &row.SHA256,
			&hardwareIDs, &silentArgs, &format, &row.NeedsReboot,
			&releaseDate, &releaseNotes,
			&row.CreatedAt, &row.UpdatedAt)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		row.Vendor = vendor.String
		row.HardwareIDs = hardwareIDs.String
		row.SilentArgs = silentArgs.String
		row.Format = format.String
		row.ReleaseDate = releaseDate.String
		row.ReleaseNotes = releaseNotes.String
		cached = append(cached, &row)
	}
	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_cache_hit", "hardware_id", hardwareID, "row_count", len(cached))
	return cached, nil
}

// RecordInstall appends an installation outcome
func (r *Repository) RecordInstall(rec *InstallRecord) error {
	slog.Info("database_record_install", "device_id", rec.DeviceID, "status", rec.Status)

	query := `
		INSERT INTO install_history (run_id, device_id, hardware_id, driver_name, old_version, new_version,
			status, error_kind, restore_point_id, backup_path, needs_reboot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		rec.RunID, rec.DeviceID, rec.HardwareID, rec.DriverName,
		rec.OldVersion, rec.NewVersion, rec.Status, rec.ErrorKind,
		rec.RestorePointID, rec.BackupPath, rec.NeedsReboot)
	if err != nil {
		slog.Error("database_record_install_failed", "device_id", rec.DeviceID, "error", err)
		return errors.Wrap(err, "failed to record install")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "device_id", rec.DeviceID, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	rec.ID = id

	slog.Info("database_install_recorded", "device_id", rec.DeviceID, "record_id", rec.ID, "status", rec.Status)
	return nil
}

// LatestInstall returns the most recent install record for a device,
// or nil when the device has no history
func (r *Repository) LatestInstall(deviceID string) (*InstallRecord, error) {
	query := `
		SELECT id, run_id, device_id, hardware_id, driver_name, old_version, new_version,
		       status, error_kind, restore_point_id, backup_path, needs_reboot, created_at
		FROM install_history WHERE device_id = ? ORDER BY id DESC LIMIT 1
	`
	rec, err := scanInstall(r.db.QueryRow(query, deviceID))
	if err == sql.ErrNoRows {
		slog.Info("database_install_not_found", "device_id", deviceID)
		return nil, nil
	}
	if err != nil {
		slog.Error("database_install_query_failed", "device_id", deviceID, "error", err)
		return nil, errors.Wrap(err, "failed to query install history")
	}
	return rec, nil
}

// History returns the most recent install records, newest first
func (r *Repository) History(limit int) ([]*InstallRecord, error) {
	query := `
		SELECT id, run_id, device_id, hardware_id, driver_name, old_version, new_version,
		       status, error_kind, restore_point_id, backup_path, needs_reboot, created_at
		FROM install_history ORDER BY id DESC LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		slog.Error("database_history_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to query install history")
	}
	defer rows.Close()

	var records []*InstallRecord
	for rows.Next() {
		rec, err := scanInstall(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_history_complete", "record_count", len(records))
	return records, nil
}

// PurgeCache deletes every cached candidate and reports how many rows
// were removed
func (r *Repository) PurgeCache() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM driver_cache`)
	if err != nil {
		slog.Error("database_purge_cache_failed", "error", err)
		return 0, errors.Wrap(err, "failed to purge driver cache")
	}
	n, _ := result.RowsAffected()
	slog.Info("database_cache_purged", "row_count", n)
	return n, nil
}

// PurgeHistory deletes install records older than the retention window.
// A non-positive retention deletes everything.
func (r *Repository) PurgeHistory(retention time.Duration) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if retention > 0 {
		result, err = r.db.Exec(`DELETE FROM install_history WHERE created_at < datetime('now', ?)`,
			fmt.Sprintf("-%d seconds", int64(retention.Seconds())))
	} else {
		result, err = r.db.Exec(`DELETE FROM install_history`)
	}
	if err != nil {
		slog.Error("database_purge_history_failed", "error", err)
		return 0, errors.Wrap(err, "failed to purge install history")
	}
	n, _ := result.RowsAffected()
	slog.Info("database_history_purged", "row_count", n)
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstall(s rowScanner) (*InstallRecord, error) {
	var rec InstallRecord
	var hardwareID, oldVersion, errorKind, restorePointID, backupPath sql.NullString
	err := s.Scan(
		&rec.ID, &rec.RunID, &rec.DeviceID, &hardwareID, &rec.DriverName,
		&oldVersion, &rec.NewVersion, &rec.Status, &errorKind,
		&restorePointID, &backupPath, &rec.NeedsReboot, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.HardwareID = hardwareID.String
	rec.OldVersion = oldVersion.String
	rec.ErrorKind = errorKind.String
	rec.RestorePointID = restorePointID.String
	rec.BackupPath = backupPath.String
	return &rec, nil
}
