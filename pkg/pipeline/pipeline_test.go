package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/driverdock/driverdock/pkg/db"
	"github.com/driverdock/driverdock/pkg/download"
	"github.com/driverdock/driverdock/pkg/driver"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/installer"
	"github.com/driverdock/driverdock/pkg/matcher"
	"github.com/driverdock/driverdock/pkg/scanner"
	"github.com/superfly/fsm"
)

type fakeMatcher struct {
	match *matcher.Match
	err   error
	calls int
}

func (f *fakeMatcher) Best(ctx context.Context, device scanner.Device) (*matcher.Match, error) {
	f.calls++
	return f.match, f.err
}

type fakeQueue struct {
	id       string
	snap     download.Snapshot
	enqueues int
}

func (f *fakeQueue) Enqueue(cand driver.Candidate, hardwareID string) (string, error) {
	f.enqueues++
	return f.id, nil
}

func (f *fakeQueue) Wait(ctx context.Context, id string) (download.Snapshot, error) {
	return f.snap, nil
}

type fakeInstaller struct {
	attempt *installer.Attempt
	err     error
	calls   int
}

func (f *fakeInstaller) Install(ctx context.Context, req installer.Request) (*installer.Attempt, error) {
	f.calls++
	return f.attempt, f.err
}

type fakeHistory struct {
	latest   *db.InstallRecord
	recorded []*db.InstallRecord
}

func (f *fakeHistory) RecordInstall(rec *db.InstallRecord) error {
	f.recorded = append(f.recorded, rec)
	return nil
}

func (f *fakeHistory) LatestInstall(deviceID string) (*db.InstallRecord, error) {
	return f.latest, nil
}

func testDevice() scanner.Device {
	return scanner.Device{
		InstanceID:  `PCI\VEN_10DE&DEV_1C82\4&2D78AB8F&0&0008`,
		HardwareIDs: []string{`PCI\VEN_10DE&DEV_1C82`},
		Name:        "NVIDIA GeForce GTX 1050 Ti",
	}
}

func testMatch() *matcher.Match {
	return &matcher.Match{
		DeviceID: testDevice().InstanceID,
		Candidate: driver.Candidate{
			Name:        "NVIDIA Graphics Driver",
			Version:     "531.18",
			DownloadURL: "https://example.com/driver.exe",
			SHA256:      "0000000000000000000000000000000000000000000000000000000000000000",
			HardwareIDs: []string{`PCI\VEN_10DE&DEV_1C82`},
			Format:      driver.FormatEXE,
		},
		Score:      300,
		Confidence: matcher.ConfidenceHigh,
	}
}

func newRequest(dryRun bool, resp *UpdateResponse) *fsm.Request[UpdateRequest, UpdateResponse] {
	if resp == nil {
		resp = &UpdateResponse{}
	}
	return fsm.NewRequest(&UpdateRequest{Device: testDevice(), RunID: "run-1", DryRun: dryRun}, resp)
}

func TestHandleMatch_NoMatchIsNormalOutcome(t *testing.T) {
	m := NewMachine(&fakeMatcher{}, &fakeQueue{}, &fakeInstaller{}, nil, 3)
	resp := &UpdateResponse{}

	if _, err := m.handleMatch(context.Background(), newRequest(false, resp)); err != nil {
		t.Fatalf("no match must not be an error: %v", err)
	}
	if resp.Outcome != OutcomeNoMatch {
		t.Errorf("expected no_match, got %q", resp.Outcome)
	}
	if resp.Kind != errors.KindNoMatch {
		t.Errorf("expected no_match kind, got %q", resp.Kind)
	}
}

func TestHandleMatch_DryRunSkipsAfterMatching(t *testing.T) {
	m := NewMachine(&fakeMatcher{match: testMatch()}, &fakeQueue{}, &fakeInstaller{}, nil, 3)
	resp := &UpdateResponse{}

	if _, err := m.handleMatch(context.Background(), newRequest(true, resp)); err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if resp.Outcome != OutcomeSkipped {
		t.Errorf("expected skipped, got %q", resp.Outcome)
	}
	if resp.Match == nil || resp.Match.Candidate.Name != "NVIDIA Graphics Driver" {
		t.Error("dry run should still report the matched candidate")
	}
}

func TestHandleMatch_RecordedSuccessShortCircuits(t *testing.T) {
	history := &fakeHistory{latest: &db.InstallRecord{
		DeviceID:   testDevice().InstanceID,
		DriverName: "NVIDIA Graphics Driver",
		NewVersion: "531.18.0.0",
		Status:     db.StatusSucceeded,
	}}
	queue := &fakeQueue{}
	m := NewMachine(&fakeMatcher{match: testMatch()}, queue, &fakeInstaller{}, history, 3)
	resp := &UpdateResponse{}

	if _, err := m.handleMatch(context.Background(), newRequest(false, resp)); err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if resp.Outcome != OutcomeSucceeded {
		t.Fatalf("expected succeeded via history, got %q", resp.Outcome)
	}
	if !resp.CacheHit {
		t.Error("cache hit flag should be set")
	}

	// The download state must pass the short-circuit through untouched.
	if _, err := m.handleDownload(context.Background(), newRequest(false, resp)); err != nil {
		t.Fatalf("pass-through download failed: %v", err)
	}
	if queue.enqueues != 0 {
		t.Errorf("idempotent rerun must not re-download, saw %d enqueues", queue.enqueues)
	}
}

func TestHandleMatch_DifferentVersionIsNotACacheHit(t *testing.T) {
	history := &fakeHistory{latest: &db.InstallRecord{
		DeviceID:   testDevice().InstanceID,
		DriverName: "NVIDIA Graphics Driver",
		NewVersion: "528.2.0.0",
		Status:     db.StatusSucceeded,
	}}
	m := NewMachine(&fakeMatcher{match: testMatch()}, &fakeQueue{}, &fakeInstaller{}, history, 3)
	resp := &UpdateResponse{}

	if _, err := m.handleMatch(context.Background(), newRequest(false, resp)); err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if resp.Outcome != "" {
		t.Errorf("newer candidate should continue the run, got outcome %q", resp.Outcome)
	}
}

func TestHandleDownload_CompletedSetsFilePath(t *testing.T) {
	queue := &fakeQueue{
		id: "abc123",
		snap: download.Snapshot{
			ID:     "abc123",
			Status: download.StatusCompleted,
			Path:   "/work/driver.exe",
		},
	}
	m := NewMachine(&fakeMatcher{}, queue, &fakeInstaller{}, nil, 3)
	resp := &UpdateResponse{Match: testMatch()}

	if _, err := m.handleDownload(context.Background(), newRequest(false, resp)); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if resp.TaskID != "abc123" {
		t.Errorf("expected task ID recorded, got %q", resp.TaskID)
	}
	if resp.FilePath != "/work/driver.exe" {
		t.Errorf("expected file path recorded, got %q", resp.FilePath)
	}
}

func TestHandleDownload_FailureIsRetryable(t *testing.T) {
	queue := &fakeQueue{
		id: "abc123",
		snap: download.Snapshot{
			ID:     "abc123",
			Status: download.StatusFailed,
			Kind:   errors.KindChecksumMismatch,
			Err:    fmt.Errorf("checksum mismatch"),
		},
	}
	m := NewMachine(&fakeMatcher{}, queue, &fakeInstaller{}, nil, 3)
	resp := &UpdateResponse{Match: testMatch()}

	_, err := m.handleDownload(context.Background(), newRequest(false, resp))
	if err == nil {
		t.Fatal("failed download must return an error so the state is retried")
	}
	if resp.Outcome != "" {
		t.Errorf("retryable failure must not classify the run yet, got %q", resp.Outcome)
	}
	if resp.Kind != errors.KindChecksumMismatch {
		t.Errorf("failure kind should be recorded, got %q", resp.Kind)
	}
}

func TestHandleInstall_MapsAttemptStatuses(t *testing.T) {
	tests := []struct {
		name        string
		attempt     *installer.Attempt
		wantOutcome Outcome
		wantErr     bool
	}{
		{
			name: "succeeded",
			attempt: &installer.Attempt{
				Status:           installer.StatusSucceeded,
				InstalledVersion: "531.18.0.0",
				NeedsReboot:      true,
			},
			wantOutcome: OutcomeSucceeded,
		},
		{
			name: "rolled back",
			attempt: &installer.Attempt{
				Status: installer.StatusRolledBack,
				Kind:   errors.KindVerification,
				Err:    fmt.Errorf("version unchanged"),
			},
			wantOutcome: OutcomeRolledBack,
			wantErr:     true,
		},
		{
			name: "rollback failed",
			attempt: &installer.Attempt{
				Status: installer.StatusRollbackFailed,
				Kind:   errors.KindRollbackFailed,
				Err:    fmt.Errorf("backup retained at /backups/x"),
			},
			wantOutcome: OutcomeRollbackFailed,
			wantErr:     true,
		},
		{
			name: "plain failure",
			attempt: &installer.Attempt{
				Status: installer.StatusFailed,
				Kind:   errors.KindRestorePoint,
				Err:    fmt.Errorf("restore point creation failed"),
			},
			wantOutcome: OutcomeInstallFailed,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(&fakeMatcher{}, &fakeQueue{}, &fakeInstaller{attempt: tt.attempt}, nil, 3)
			resp := &UpdateResponse{Match: testMatch(), FilePath: "/work/driver.exe"}

			_, err := m.handleInstall(context.Background(), newRequest(false, resp))
			if tt.wantErr && err == nil {
				t.Error("expected the run to abort")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if resp.Outcome != tt.wantOutcome {
				t.Errorf("expected outcome %q, got %q", tt.wantOutcome, resp.Outcome)
			}
			if resp.Kind != tt.attempt.Kind {
				t.Errorf("expected kind %q, got %q", tt.attempt.Kind, resp.Kind)
			}
			if tt.wantOutcome == OutcomeSucceeded && resp.Version != "531.18.0.0" {
				t.Errorf("expected installed version, got %q", resp.Version)
			}
		})
	}
}

func TestHandleComplete_RecordsHistoryOnce(t *testing.T) {
	history := &fakeHistory{}
	m := NewMachine(&fakeMatcher{}, &fakeQueue{}, &fakeInstaller{}, history, 3)
	resp := &UpdateResponse{
		Match:   testMatch(),
		Outcome: OutcomeSucceeded,
		Version: "531.18.0.0",
	}

	if _, err := m.handleComplete(context.Background(), newRequest(false, resp)); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if len(history.recorded) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(history.recorded))
	}
	rec := history.recorded[0]
	if rec.Status != db.StatusSucceeded || rec.NewVersion != "531.18.0.0" {
		t.Errorf("unexpected row: %+v", rec)
	}
	if rec.DriverName != "NVIDIA Graphics Driver" {
		t.Errorf("expected driver name on the row, got %q", rec.DriverName)
	}

	// The controller's safety call after the run must not double-write.
	m.record(UpdateRequest{Device: testDevice(), RunID: "run-1"}, resp)
	if len(history.recorded) != 1 {
		t.Errorf("expected no duplicate row, got %d", len(history.recorded))
	}
}

func TestRecord_SkipsCacheHits(t *testing.T) {
	history := &fakeHistory{}
	m := NewMachine(&fakeMatcher{}, &fakeQueue{}, &fakeInstaller{}, history, 3)
	resp := &UpdateResponse{
		Match:    testMatch(),
		Outcome:  OutcomeSucceeded,
		Version:  "531.18.0.0",
		CacheHit: true,
	}

	m.record(UpdateRequest{Device: testDevice(), RunID: "run-1"}, resp)
	if len(history.recorded) != 0 {
		t.Errorf("cache hits must not add history rows, got %d", len(history.recorded))
	}
}

func TestHistoryStatusMapping(t *testing.T) {
	tests := []struct {
		outcome Outcome
		status  string
	}{
		{OutcomeSucceeded, db.StatusSucceeded},
		{OutcomeRolledBack, db.StatusRolledBack},
		{OutcomeRollbackFailed, db.StatusRollbackFailed},
		{OutcomeNoMatch, db.StatusNoMatch},
		{OutcomeSkipped, db.StatusSkipped},
		{OutcomeDownloadFailed, db.StatusFailed},
		{OutcomeInstallFailed, db.StatusFailed},
		{OutcomeFailed, db.StatusFailed},
	}
	for _, tt := range tests {
		if got := historyStatus(tt.outcome); got != tt.status {
			t.Errorf("historyStatus(%q) = %q, want %q", tt.outcome, got, tt.status)
		}
	}
}

func TestDeviceOutcome_UnclassifiedRunIsFailed(t *testing.T) {
	out := deviceOutcome(testDevice(), &UpdateResponse{}, fmt.Errorf("fsm run crashed"))
	if out.Outcome != OutcomeFailed {
		t.Errorf("expected failed, got %q", out.Outcome)
	}
	if out.Error != "fsm run crashed" {
		t.Errorf("expected the wait error surfaced, got %q", out.Error)
	}
}

func TestDeviceOutcome_CarriesMatchDetails(t *testing.T) {
	resp := &UpdateResponse{
		Match:   testMatch(),
		Outcome: OutcomeRolledBack,
		Kind:    errors.KindVerification,
	}
	out := deviceOutcome(testDevice(), resp, fmt.Errorf("aborted"))
	if out.DriverName != "NVIDIA Graphics Driver" {
		t.Errorf("expected driver name, got %q", out.DriverName)
	}
	if out.Version != "531.18" {
		t.Errorf("expected candidate version fallback, got %q", out.Version)
	}
	if out.Kind != errors.KindVerification {
		t.Errorf("expected verification kind, got %q", out.Kind)
	}
}
