// Package pipeline drives devices through the driver update workflow
// as a durable state machine: match, download, install, complete.
// Each device gets its own FSM run keyed by instance ID, so one
// device's failure never touches the others; the controller aggregates
// the per-run responses into a batch report.
package pipeline

import (
	"context"

	"github.com/driverdock/driverdock/pkg/db"
	"github.com/driverdock/driverdock/pkg/download"
	"github.com/driverdock/driverdock/pkg/driver"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/installer"
	"github.com/driverdock/driverdock/pkg/matcher"
	"github.com/driverdock/driverdock/pkg/scanner"
	"github.com/superfly/fsm"
)

// Matcher selects the best candidate for a device.
type Matcher interface {
	Best(ctx context.Context, device scanner.Device) (*matcher.Match, error)
}

// Downloader is the download queue surface the pipeline drives.
type Downloader interface {
	Enqueue(cand driver.Candidate, hardwareID string) (string, error)
	Wait(ctx context.Context, id string) (download.Snapshot, error)
}

// Installer runs one installation attempt to a terminal state.
type Installer interface {
	Install(ctx context.Context, req installer.Request) (*installer.Attempt, error)
}

// History reads and records install outcomes; *db.Repository
// satisfies it. A nil History disables the idempotent-rerun check.
type History interface {
	RecordInstall(rec *db.InstallRecord) error
	LatestInstall(deviceID string) (*db.InstallRecord, error)
}

// Machine holds dependencies for FSM transitions.
type Machine struct {
	matcher    Matcher
	queue      Downloader
	installer  Installer
	history    History
	retryCount int
}

// NewMachine creates the driver-update machine. retryCount bounds how
// often the download state is retried before the run aborts.
func NewMachine(m Matcher, queue Downloader, inst Installer, history History, retryCount int) *Machine {
	if retryCount <= 0 {
		retryCount = 3
	}
	return &Machine{
		matcher:    m,
		queue:      queue,
		installer:  inst,
		history:    history,
		retryCount: retryCount,
	}
}

// Register registers the driver-update FSM on the manager.
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[UpdateRequest, UpdateResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[UpdateRequest, UpdateResponse](manager, "driver-update").
		Start(StateMatch, m.handleMatch).
		To(StateDownload, m.handleDownload).
		To(StateInstall, m.handleInstall).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}
	return start, resume, nil
}
