package pipeline

import (
	"time"

	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/matcher"
	"github.com/driverdock/driverdock/pkg/scanner"
)

// UpdateRequest is the FSM input: one device to drive through
// match, download, and install.
type UpdateRequest struct {
	Device scanner.Device
	RunID  string
	DryRun bool
}

// UpdateResponse is the FSM output, accumulated across transitions.
type UpdateResponse struct {
	// From Match
	Match    *matcher.Match
	CacheHit bool

	// From Download
	TaskID   string
	FilePath string

	// From Install
	OldVersion     string
	Version        string
	NeedsReboot    bool
	RestorePointID string
	BackupPath     string

	// Terminal bookkeeping
	Outcome      Outcome
	Kind         errors.Kind
	ErrorMessage string
	Recorded     bool
}

// Outcome classifies how a device's run ended.
type Outcome string

const (
	OutcomeNoMatch        Outcome = "no_match"
	OutcomeDownloadFailed Outcome = "download_failed"
	OutcomeInstallFailed  Outcome = "install_failed"
	OutcomeRolledBack     Outcome = "rolled_back"
	OutcomeRollbackFailed Outcome = "rollback_failed"
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeFailed         Outcome = "failed"
)

// State names
const (
	StateMatch    = "match"
	StateDownload = "download"
	StateInstall  = "install"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// DeviceOutcome is one device's entry in the batch report.
type DeviceOutcome struct {
	Device      scanner.Device
	Outcome     Outcome
	Kind        errors.Kind
	DriverName  string
	Version     string
	OldVersion  string
	NeedsReboot bool
	CacheHit    bool
	BackupPath  string
	Error       string
}

// Report aggregates one outcome per input device for a pipeline run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Devices    []DeviceOutcome

	Succeeded int
	Failed    int
	NoMatch   int
	Skipped   int
}

// NeedsRebootCount returns how many devices finished with a pending
// reboot.
func (r *Report) NeedsRebootCount() int {
	n := 0
	for _, d := range r.Devices {
		if d.NeedsReboot {
			n++
		}
	}
	return n
}
