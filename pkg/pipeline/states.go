package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driverdock/driverdock/pkg/db"
	"github.com/driverdock/driverdock/pkg/download"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/installer"
	"github.com/superfly/fsm"
)

// handleMatch resolves the best driver candidate for the device. No
// match ends the run as a normal outcome; a recorded success for the
// same candidate short-circuits download and install.
func (m *Machine) handleMatch(ctx context.Context, req *fsm.Request[UpdateRequest, UpdateResponse]) (*fsm.Response[UpdateResponse], error) {
	device := req.Msg.Device
	slog.Info("fsm_state_match", "device_id", device.InstanceID)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.retryCount) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.retryCount))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &UpdateResponse{}
	}

	match, err := m.matcher.Best(ctx, device)
	if err != nil {
		// Source failures are downgraded inside the matcher; an error
		// here means the run's context is gone.
		return nil, fsm.Abort(errors.Wrap(err, "match failed"))
	}
	if match == nil {
		resp.Outcome = OutcomeNoMatch
		resp.Kind = errors.KindNoMatch
		slog.Info("pipeline_no_match", "device_id", device.InstanceID)
		return fsm.NewResponse(resp), nil
	}
	resp.Match = match

	if m.history != nil {
		rec, err := m.history.LatestInstall(device.InstanceID)
		if err == nil && rec != nil && rec.Status == db.StatusSucceeded &&
			rec.DriverName == match.Candidate.Name &&
			rec.NewVersion == match.Candidate.ParsedVersion().String() {
			resp.Outcome = OutcomeSucceeded
			resp.CacheHit = true
			resp.Version = rec.NewVersion
			resp.NeedsReboot = rec.NeedsReboot
			slog.Info("pipeline_already_current",
				"device_id", device.InstanceID,
				"driver", match.Candidate.Name,
				"version", rec.NewVersion)
			return fsm.NewResponse(resp), nil
		}
	}

	if req.Msg.DryRun {
		resp.Outcome = OutcomeSkipped
		resp.Version = match.Candidate.Version
		slog.Info("pipeline_dry_run_match",
			"device_id", device.InstanceID,
			"driver", match.Candidate.Name,
			"version", match.Candidate.Version,
			"score", match.Score)
	}
	return fsm.NewResponse(resp), nil
}

// handleDownload enqueues the matched candidate and waits for a
// terminal task state. Failed transfers return a plain error so the
// FSM retries the state; the deterministic task ID makes the
// re-enqueue idempotent. Exhausted retries abort the run.
func (m *Machine) handleDownload(ctx context.Context, req *fsm.Request[UpdateRequest, UpdateResponse]) (*fsm.Response[UpdateResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Outcome != "" {
		return fsm.NewResponse(resp), nil
	}

	device := req.Msg.Device
	slog.Info("fsm_state_download", "device_id", device.InstanceID)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.retryCount) {
		resp.Outcome = OutcomeDownloadFailed
		if resp.Kind == "" {
			resp.Kind = errors.KindNetwork
		}
		resp.ErrorMessage = fmt.Sprintf("download retries (%d) exhausted", m.retryCount)
		return nil, fsm.Abort(fmt.Errorf("download retries (%d) exhausted", m.retryCount))
	}

	id, err := m.queue.Enqueue(resp.Match.Candidate, device.PrimaryHardwareID())
	if err != nil {
		resp.Outcome = OutcomeDownloadFailed
		resp.Kind = errors.KindOf(err)
		resp.ErrorMessage = err.Error()
		return nil, fsm.Abort(errors.Wrap(err, "enqueue failed"))
	}
	resp.TaskID = id

	snap, err := m.queue.Wait(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "download wait interrupted")
	}

	switch snap.Status {
	case download.StatusCompleted:
		resp.FilePath = snap.Path
		return fsm.NewResponse(resp), nil
	case download.StatusCancelled:
		resp.Outcome = OutcomeDownloadFailed
		resp.Kind = errors.KindCancelled
		resp.ErrorMessage = "download cancelled"
		return nil, fsm.Abort(fmt.Errorf("download cancelled"))
	default:
		resp.Kind = snap.Kind
		if snap.Err != nil {
			resp.ErrorMessage = snap.Err.Error()
		}
		slog.Warn("pipeline_download_failed",
			"device_id", device.InstanceID,
			"task_id", id,
			"kind", snap.Kind)
		return nil, fmt.Errorf("download failed: %s", snap.Kind)
	}
}

// handleInstall hands the downloaded file to the orchestrator. Install
// failures are never retried: rollback already restored a known-good
// state, so every non-success aborts the run.
func (m *Machine) handleInstall(ctx context.Context, req *fsm.Request[UpdateRequest, UpdateResponse]) (*fsm.Response[UpdateResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Outcome != "" {
		return fsm.NewResponse(resp), nil
	}

	device := req.Msg.Device
	slog.Info("fsm_state_install", "device_id", device.InstanceID, "file", resp.FilePath)

	attempt, err := m.installer.Install(ctx, installer.Request{
		Device:    device,
		Candidate: resp.Match.Candidate,
		FilePath:  resp.FilePath,
	})
	if err != nil {
		resp.Outcome = OutcomeInstallFailed
		resp.Kind = errors.KindOf(err)
		resp.ErrorMessage = err.Error()
		return nil, fsm.Abort(errors.Wrap(err, "install failed"))
	}

	resp.OldVersion = attempt.OldVersion
	resp.NeedsReboot = attempt.NeedsReboot
	resp.BackupPath = attempt.BackupPath()
	resp.Kind = attempt.Kind
	if attempt.RestorePoint != nil {
		resp.RestorePointID = attempt.RestorePoint.ID
	}
	if attempt.Err != nil {
		resp.ErrorMessage = attempt.Err.Error()
	}

	switch attempt.Status {
	case installer.StatusSucceeded:
		resp.Outcome = OutcomeSucceeded
		resp.Version = attempt.InstalledVersion
		return fsm.NewResponse(resp), nil
	case installer.StatusRolledBack:
		resp.Outcome = OutcomeRolledBack
		return nil, fsm.Abort(attempt.Err)
	case installer.StatusRollbackFailed:
		resp.Outcome = OutcomeRollbackFailed
		slog.Error("pipeline_rollback_failed",
			"device_id", device.InstanceID,
			"backup_path", resp.BackupPath)
		return nil, fsm.Abort(attempt.Err)
	default:
		resp.Outcome = OutcomeInstallFailed
		return nil, fsm.Abort(attempt.Err)
	}
}

// handleComplete records the install history row for runs that reach
// a normal end state. Aborted runs are recorded by the controller.
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[UpdateRequest, UpdateResponse]) (*fsm.Response[UpdateResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	m.record(*req.Msg, resp)
	slog.Info("fsm_complete",
		"device_id", req.Msg.Device.InstanceID,
		"outcome", resp.Outcome,
		"version", resp.Version,
		"needs_reboot", resp.NeedsReboot)
	return fsm.NewResponse(resp), nil
}

// record persists one history row per run. Idempotent re-runs that
// short-circuited on a cache hit do not add rows.
func (m *Machine) record(reqMsg UpdateRequest, resp *UpdateResponse) {
	if m.history == nil || resp.Recorded || resp.CacheHit || resp.Outcome == "" {
		return
	}

	rec := &db.InstallRecord{
		RunID:          reqMsg.RunID,
		DeviceID:       reqMsg.Device.InstanceID,
		HardwareID:     reqMsg.Device.PrimaryHardwareID(),
		OldVersion:     resp.OldVersion,
		NewVersion:     resp.Version,
		Status:         historyStatus(resp.Outcome),
		ErrorKind:      string(resp.Kind),
		RestorePointID: resp.RestorePointID,
		BackupPath:     resp.BackupPath,
		NeedsReboot:    resp.NeedsReboot,
	}
	if resp.Match != nil {
		rec.DriverName = resp.Match.Candidate.Name
	}
	if rec.OldVersion == "" {
		rec.OldVersion = reqMsg.Device.DriverVersion
	}

	if err := m.history.RecordInstall(rec); err != nil {
		slog.Warn("history_record_failed",
			"device_id", reqMsg.Device.InstanceID,
			"error", err)
		return
	}
	resp.Recorded = true
}

func historyStatus(outcome Outcome) string {
	switch outcome {
	case OutcomeSucceeded:
		return db.StatusSucceeded
	case OutcomeRolledBack:
		return db.StatusRolledBack
	case OutcomeRollbackFailed:
		return db.StatusRollbackFailed
	case OutcomeNoMatch:
		return db.StatusNoMatch
	case OutcomeSkipped:
		return db.StatusSkipped
	default:
		return db.StatusFailed
	}
}
