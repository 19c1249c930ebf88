package download

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/driverdock/driverdock/pkg/driver"
	"github.com/driverdock/driverdock/pkg/errors"
)

// Status is the lifecycle state of one download task.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TaskID derives the deterministic task identifier from the candidate
// identity. Re-enqueuing the same driver for the same hardware ID
// always lands on the same task.
func TaskID(name, version, hardwareID string) string {
	sum := sha256.Sum256([]byte(name + "|" + version + "|" + hardwareID))
	return hex.EncodeToString(sum[:])[:16]
}

// task is the queue's internal bookkeeping for one transfer. All
// fields except the candidate identity are guarded by the queue mutex.
type task struct {
	id         string
	candidate  driver.Candidate
	hardwareID string
	dest       string

	status Status
	bytes  int64
	total  int64
	err    error
	kind   errors.Kind

	// High-water mark of bytes already charged against the validator's
	// total budget. Survives restarts and in-place retries so a
	// re-fetched prefix is not charged twice.
	counted int64

	pauseReq  bool
	cancelReq bool

	startedAt time.Time
	done      chan struct{}
}

func (t *task) snapshot() Snapshot {
	return Snapshot{
		ID:      t.id,
		Name:    t.candidate.Name,
		Version: t.candidate.Version,
		Status:  t.status,
		Bytes:   t.bytes,
		Total:   t.total,
		Path:    t.dest,
		Err:     t.err,
		Kind:    t.kind,
	}
}

// Snapshot is a point-in-time copy of a task's state, safe to hand to
// callers.
type Snapshot struct {
	ID      string
	Name    string
	Version string
	Status  Status
	Bytes   int64
	Total   int64
	Path    string
	Err     error
	Kind    errors.Kind
}

// Event is one progress notification delivered on the queue's bounded
// event channel.
type Event struct {
	TaskID string
	Name   string
	Status Status
	Bytes  int64
	Total  int64
	Rate   float64 // bytes per second since the transfer started
}
