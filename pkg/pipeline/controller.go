package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/scanner"
	"github.com/google/uuid"
	"github.com/superfly/fsm"
)

// Controller runs a batch of devices through the update FSM and
// aggregates the per-device responses into one report.
type Controller struct {
	machine *Machine
}

// NewController creates a controller over a registered machine's
// dependencies.
func NewController(machine *Machine) *Controller {
	return &Controller{machine: machine}
}

type runHandle struct {
	device scanner.Device
	resp   *UpdateResponse
	wait   func() error
}

// Run starts one FSM run per device, waits for all of them, and
// assembles the report. A device's failure never stops the batch;
// every input device gets exactly one outcome.
func (c *Controller) Run(ctx context.Context, manager *fsm.Manager, devices []scanner.Device, dryRun bool) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	slog.Info("pipeline_run_start",
		"run_id", report.RunID,
		"device_count", len(devices),
		"dry_run", dryRun)

	if len(devices) == 0 {
		report.FinishedAt = time.Now()
		return report, nil
	}

	start, _, err := c.machine.Register(ctx, manager)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline register failed")
	}

	handles := make([]runHandle, 0, len(devices))
	for _, device := range devices {
		req := &UpdateRequest{Device: device, RunID: report.RunID, DryRun: dryRun}
		resp := &UpdateResponse{}

		version, startErr := start(ctx, device.InstanceID, fsm.NewRequest(req, resp))
		if startErr != nil {
			slog.Error("pipeline_start_failed",
				"device_id", device.InstanceID, "error", startErr)
			failed := startErr
			handles = append(handles, runHandle{
				device: device,
				resp:   resp,
				wait:   func() error { return failed },
			})
			continue
		}

		v := version
		handles = append(handles, runHandle{
			device: device,
			resp:   resp,
			wait:   func() error { return manager.Wait(ctx, v) },
		})
	}

	for _, h := range handles {
		waitErr := h.wait()
		outcome := deviceOutcome(h.device, h.resp, waitErr)
		report.Devices = append(report.Devices, outcome)

		// Aborted runs never reach the complete state; persist their
		// history here.
		c.machine.record(UpdateRequest{Device: h.device, RunID: report.RunID, DryRun: dryRun}, h.resp)

		switch outcome.Outcome {
		case OutcomeSucceeded:
			report.Succeeded++
		case OutcomeNoMatch:
			report.NoMatch++
		case OutcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	report.FinishedAt = time.Now()
	slog.Info("pipeline_run_complete",
		"run_id", report.RunID,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"no_match", report.NoMatch,
		"skipped", report.Skipped,
		"needs_reboot", report.NeedsRebootCount())
	return report, nil
}

func deviceOutcome(device scanner.Device, resp *UpdateResponse, waitErr error) DeviceOutcome {
	out := DeviceOutcome{
		Device:      device,
		Outcome:     resp.Outcome,
		Kind:        resp.Kind,
		Version:     resp.Version,
		OldVersion:  resp.OldVersion,
		NeedsReboot: resp.NeedsReboot,
		CacheHit:    resp.CacheHit,
		BackupPath:  resp.BackupPath,
		Error:       resp.ErrorMessage,
	}
	if resp.Match != nil {
		out.DriverName = resp.Match.Candidate.Name
		if out.Version == "" {
			out.Version = resp.Match.Candidate.Version
		}
	}
	if out.Outcome == "" {
		// The run died before any handler classified it.
		out.Outcome = OutcomeFailed
	}
	if out.Error == "" && waitErr != nil && out.Outcome != OutcomeSucceeded && out.Outcome != OutcomeSkipped {
		out.Error = waitErr.Error()
	}
	return out
}
