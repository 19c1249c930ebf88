// Package download implements the concurrent driver download queue:
// bounded parallelism with FIFO admission, a process-wide speed
// limiter, resumable transfers, cooperative pause/cancel, and SHA-256
// verification before a file is ever handed to the installer.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/driverdock/driverdock/pkg/driver"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/security"
)

// Control sentinels observed between chunk writes.
var (
	errPaused    = fmt.Errorf("transfer paused")
	errCancelled = fmt.Errorf("transfer cancelled")
)

// Options configures a Queue. Zero values fall back to defaults.
type Options struct {
	WorkDir         string
	MaxConcurrent   int
	ChunkSize       int
	TransferRetries uint64
	Limiter         *Limiter
	Validator       *security.Validator
	ProgressBuffer  int
	Client          *http.Client
}

// Queue is the process-wide download queue. Tasks are admitted in
// FIFO order while slots below MaxConcurrent are free; each admitted
// task runs its transfer on its own goroutine.
type Queue struct {
	opts   Options
	client *http.Client

	mu      sync.Mutex
	tasks   map[string]*task
	pending []string
	active  int

	wake   chan struct{}
	events chan Event

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue. Call Start before enqueuing.
func NewQueue(opts Options) *Queue {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 64 * 1024
	}
	if opts.ProgressBuffer <= 0 {
		opts.ProgressBuffer = 64
	}
	if opts.TransferRetries == 0 {
		opts.TransferRetries = 3
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}

	slog.Info("download_queue_init",
		"work_dir", opts.WorkDir,
		"max_concurrent", opts.MaxConcurrent,
		"speed_limit", opts.Limiter.Rate())

	return &Queue{
		opts:   opts,
		client: client,
		tasks:  make(map[string]*task),
		wake:   make(chan struct{}, 1),
		events: make(chan Event, opts.ProgressBuffer),
	}
}

// Start launches the dispatcher. Transfers stop when ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.runCtx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.dispatch()
}

// Close stops the dispatcher, waits for in-flight transfers to wind
// down, and closes the event channel.
func (q *Queue) Close() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	close(q.events)
}

// Events returns the bounded progress channel. Sends never block;
// events are dropped when the consumer falls behind.
func (q *Queue) Events() <-chan Event {
	return q.events
}

// Enqueue registers a download for the candidate and returns the
// deterministic task ID. Re-enqueuing while the task is queued,
// downloading, or paused is a no-op; a completed task stays completed
// (cache hit); failed and cancelled tasks are reset and re-queued
// under the same ID.
func (q *Queue) Enqueue(cand driver.Candidate, hardwareID string) (string, error) {
	if err := cand.Validate(); err != nil {
		return "", errors.WithKind(errors.KindValidation, err)
	}
	if err := q.opts.Validator.ValidateURL(cand.DownloadURL); err != nil {
		return "", errors.WithKind(errors.KindValidation, err)
	}
	if cand.FileSize > 0 {
		if err := q.opts.Validator.ValidateFileSize(cand.FileSize); err != nil {
			return "", errors.WithKind(errors.KindValidation, err)
		}
	}

	ext := string(cand.PackageFormat())
	if ext == "" {
		ext = "bin"
	}
	fileName := security.SanitizeFileName(cand.Name, cand.Version, ext)
	dest, err := q.opts.Validator.ValidateDestination(q.opts.WorkDir, fileName)
	if err != nil {
		return "", errors.WithKind(errors.KindValidation, err)
	}

	id := TaskID(cand.Name, cand.Version, hardwareID)

	q.mu.Lock()
	t, ok := q.tasks[id]
	if ok {
		switch t.status {
		case StatusQueued, StatusDownloading, StatusPaused, StatusCompleted:
			status := t.status
			q.mu.Unlock()
			slog.Info("enqueue_download_noop", "task_id", id, "status", status)
			return id, nil
		case StatusFailed, StatusCancelled:
			t.status = StatusQueued
			t.err = nil
			t.kind = ""
			t.pauseReq = false
			t.cancelReq = false
			t.counted = 0
			t.done = make(chan struct{})
			q.pending = append(q.pending, id)
		}
	} else {
		t = &task{
			id:         id,
			candidate:  cand,
			hardwareID: hardwareID,
			dest:       dest,
			status:     StatusQueued,
			total:      cand.FileSize,
			done:       make(chan struct{}),
		}
		q.tasks[id] = t
		q.pending = append(q.pending, id)
	}
	snap := t.snapshot()
	q.mu.Unlock()

	slog.Info("enqueue_download",
		"task_id", id,
		"driver", cand.Name,
		"version", cand.Version,
		"size", cand.FileSize)
	q.publish(snap, time.Time{})
	q.signal()
	return id, nil
}

// Wait blocks until the task reaches a terminal status and returns its
// final snapshot.
func (q *Queue) Wait(ctx context.Context, id string) (Snapshot, error) {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return Snapshot{}, fmt.Errorf("unknown download task %s", id)
	}
	if t.status.Terminal() {
		snap := t.snapshot()
		q.mu.Unlock()
		return snap, nil
	}
	done := t.done
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-done:
	}

	q.mu.Lock()
	snap := t.snapshot()
	q.mu.Unlock()
	return snap, nil
}

// Snapshot returns the current state of a task.
func (q *Queue) Snapshot(id string) (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// Snapshots returns the state of every known task.
func (q *Queue) Snapshots() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Snapshot, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.snapshot())
	}
	return out
}

// Pause requests a downloading task to stop between chunk writes. Its
// slot is released; bytes written so far are kept for resume.
func (q *Queue) Pause(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok || t.status != StatusDownloading {
		return
	}
	t.pauseReq = true
	slog.Info("download_pause_requested", "task_id", id)
}

// Resume re-admits a paused task at the head of the queue. The
// transfer continues from the bytes already on disk.
func (q *Queue) Resume(id string) {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok || t.status != StatusPaused {
		q.mu.Unlock()
		return
	}
	t.status = StatusQueued
	t.pauseReq = false
	q.pending = append([]string{id}, q.pending...)
	q.mu.Unlock()

	slog.Info("download_resumed", "task_id", id)
	q.signal()
}

// Cancel stops a task. Queued and paused tasks are cancelled
// immediately; a downloading task is cancelled between chunk writes.
// The partial file is removed.
func (q *Queue) Cancel(id string) {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	switch t.status {
	case StatusQueued, StatusPaused:
		t.status = StatusCancelled
		t.kind = errors.KindCancelled
		q.removePending(id)
		close(t.done)
		snap := t.snapshot()
		q.mu.Unlock()
		os.Remove(t.dest)
		slog.Info("download_cancelled", "task_id", id)
		q.publish(snap, time.Time{})
	case StatusDownloading:
		t.cancelReq = true
		q.mu.Unlock()
		slog.Info("download_cancel_requested", "task_id", id)
	default:
		q.mu.Unlock()
	}
}

func (q *Queue) removePending(id string) {
	for i, p := range q.pending {
		if p == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) publish(snap Snapshot, startedAt time.Time) {
	ev := Event{
		TaskID: snap.ID,
		Name:   snap.Name,
		Status: snap.Status,
		Bytes:  snap.Bytes,
		Total:  snap.Total,
	}
	if !startedAt.IsZero() {
		if elapsed := time.Since(startedAt).Seconds(); elapsed > 0 {
			ev.Rate = float64(snap.Bytes) / elapsed
		}
	}
	select {
	case q.events <- ev:
	default:
	}
}

// dispatch admits pending tasks while slots are free, then sleeps
// until woken by an enqueue, resume, or a finished transfer.
func (q *Queue) dispatch() {
	defer q.wg.Done()
	for {
		q.admit()
		select {
		case <-q.runCtx.Done():
			return
		case <-q.wake:
		}
	}
}

func (q *Queue) admit() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.active < q.opts.MaxConcurrent && len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]
		t := q.tasks[id]
		if t == nil || t.status != StatusQueued {
			continue
		}
		t.status = StatusDownloading
		t.startedAt = time.Now()
		q.active++
		q.wg.Add(1)
		go q.transfer(t)
		slog.Info("download_admitted", "task_id", id, "active", q.active)
	}
}

// transfer runs one admitted task to a pause or a terminal state and
// releases its slot.
func (q *Queue) transfer(t *task) {
	defer q.wg.Done()
	err := q.run(t)

	q.mu.Lock()
	q.active--
	switch {
	case err == nil:
		t.status = StatusCompleted
		close(t.done)
	case errors.Is(err, errPaused):
		t.status = StatusPaused
		t.pauseReq = false
	case errors.Is(err, errCancelled), q.runCtx.Err() != nil:
		t.status = StatusCancelled
		t.kind = errors.KindCancelled
		t.cancelReq = false
		close(t.done)
	default:
		t.status = StatusFailed
		t.err = err
		t.kind = errors.KindOf(err)
		if t.kind == "" {
			t.kind = errors.KindNetwork
		}
		close(t.done)
	}
	snap := t.snapshot()
	startedAt := t.startedAt
	q.mu.Unlock()

	if snap.Status == StatusCancelled {
		os.Remove(t.dest)
	}

	switch snap.Status {
	case StatusCompleted:
		slog.Info("download_completed", "task_id", t.id, "bytes", snap.Bytes, "path", t.dest)
	case StatusPaused:
		slog.Info("download_paused", "task_id", t.id, "bytes", snap.Bytes)
	case StatusCancelled:
		slog.Info("download_cancelled", "task_id", t.id)
	default:
		slog.Error("download_failed", "task_id", t.id, "kind", snap.Kind, "error", err)
	}
	q.publish(snap, startedAt)
	q.signal()
}

// run performs the transfer: cache-hit check, resumable fetch with
// in-place retries, then checksum verification.
func (q *Queue) run(t *task) error {
	ctx := q.runCtx

	// A file already on disk with the expected checksum completes the
	// task without network I/O.
	if info, err := os.Stat(t.dest); err == nil {
		if sum, herr := hashFile(t.dest); herr == nil && strings.EqualFold(sum, t.candidate.SHA256) {
			q.mu.Lock()
			t.bytes = info.Size()
			t.total = info.Size()
			q.mu.Unlock()
			slog.Info("download_cache_hit", "task_id", t.id, "path", t.dest)
			return nil
		}
		if t.candidate.FileSize > 0 && info.Size() >= t.candidate.FileSize {
			// Full-size file with the wrong hash is stale, not partial.
			os.Remove(t.dest)
		}
	}

	var streamedSum string
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), q.opts.TransferRetries), ctx)
	err := backoff.Retry(func() error {
		sum, err := q.fetch(ctx, t)
		if err == nil {
			streamedSum = sum
			return nil
		}
		if errors.Is(err, errPaused) || errors.Is(err, errCancelled) {
			return backoff.Permanent(err)
		}
		if errors.KindOf(err) == errors.KindValidation {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(errCancelled)
		}
		slog.Warn("transfer_retry", "task_id", t.id, "error", err)
		return err
	}, bo)
	if err != nil {
		return err
	}

	sum := streamedSum
	if sum == "" {
		sum, err = hashFile(t.dest)
		if err != nil {
			return errors.Wrap(err, "failed to hash downloaded file")
		}
	}
	if !strings.EqualFold(sum, t.candidate.SHA256) {
		os.Remove(t.dest)
		q.mu.Lock()
		t.bytes = 0
		q.mu.Unlock()
		return errors.Kindf(errors.KindChecksumMismatch,
			"checksum mismatch for %s: got %s want %s", t.candidate.Name, sum, t.candidate.SHA256)
	}
	return nil
}

// fetch performs one HTTP attempt, resuming from whatever is already
// on disk. It returns the streamed SHA-256 when the transfer ran from
// offset zero in a single pass, empty otherwise.
func (q *Queue) fetch(ctx context.Context, t *task) (string, error) {
	var offset int64
	if info, err := os.Stat(t.dest); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.candidate.DownloadURL, nil)
	if err != nil {
		return "", errors.WithKind(errors.KindValidation, err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return "", errors.WithKind(errors.KindNetwork, err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the range header; restart from zero.
		if offset > 0 {
			slog.Info("download_range_unsupported", "task_id", t.id)
		}
		offset = 0
		flags |= os.O_TRUNC
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	default:
		return "", errors.Kindf(errors.KindNetwork, "unexpected download status %s", resp.Status)
	}

	total := t.candidate.FileSize
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	q.mu.Lock()
	t.bytes = offset
	t.total = total
	if t.counted < offset {
		// A partial file carried over from an earlier run; its bytes
		// were charged when they were first downloaded.
		t.counted = offset
	}
	startedAt := t.startedAt
	q.mu.Unlock()

	f, err := os.OpenFile(t.dest, flags, 0644)
	if err != nil {
		return "", errors.Wrap(err, "failed to open destination file")
	}
	defer f.Close()

	hasher := sha256.New()
	var out io.Writer = f
	streaming := offset == 0
	if streaming {
		out = io.MultiWriter(f, hasher)
	}

	buf := make([]byte, q.opts.ChunkSize)
	for {
		if err := q.checkCtrl(t); err != nil {
			return "", err
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if err := q.opts.Limiter.Acquire(ctx, int64(n)); err != nil {
				return "", errCancelled
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return "", errors.Wrap(werr, "failed to write chunk")
			}
			q.mu.Lock()
			t.bytes += int64(n)
			// Charge only bytes beyond the task's high-water mark, so a
			// restart after a flaky transfer does not consume the
			// process-wide budget twice.
			var delta int64
			if t.bytes > t.counted {
				delta = t.bytes - t.counted
				t.counted = t.bytes
			}
			snap := t.snapshot()
			q.mu.Unlock()
			if delta > 0 {
				if verr := q.opts.Validator.AddDownloadedSize(delta); verr != nil {
					return "", errors.WithKind(errors.KindValidation, verr)
				}
			}
			q.publish(snap, startedAt)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", errors.WithKind(errors.KindNetwork, rerr)
		}
	}

	if streaming {
		return hex.EncodeToString(hasher.Sum(nil)), nil
	}
	return "", nil
}

// checkCtrl observes pause and cancel flags between chunk writes.
func (q *Queue) checkCtrl(t *task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.cancelReq {
		return errCancelled
	}
	if t.pauseReq {
		return errPaused
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
