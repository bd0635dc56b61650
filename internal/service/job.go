package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/space-downloader/spacedl/internal/model"
)

// EventBuffer is the capacity of a job's event channel.
const EventBuffer = 128

// Job is the state of one download. Status and progress are last value
// wins observables, events form an ordered bounded stream. A non-terminal
// event that finds the stream full is dropped and counted. A terminal one
// evicts the oldest buffered event instead, so consumers always see how
// the job ended.
type Job struct {
	id  uuid.UUID
	url string

	mx       sync.RWMutex
	status   model.JobStatus
	progress *model.Progress
	changed  chan struct{}
	summary  *model.DownloadSummary
	err      error

	sendMx  sync.Mutex
	closed  bool
	events  chan model.Event
	dropped atomic.Uint64

	done chan struct{}
}

func newJob(id uuid.UUID, url string) *Job {
	return &Job{
		id:      id,
		url:     url,
		status:  model.JobStatusQueued,
		changed: make(chan struct{}),
		events:  make(chan model.Event, EventBuffer),
		done:    make(chan struct{}),
	}
}

func isValidTransition(from, to model.JobStatus) bool {
	switch from {
	case model.JobStatusQueued:
		return to == model.JobStatusRunning || to == model.JobStatusCanceled
	case model.JobStatusRunning:
		return to == model.JobStatusSucceeded || to == model.JobStatusFailed || to == model.JobStatusCanceled
	default:
		return false
	}
}

// transition moves the job to status and publishes a status event. It
// reports false, and changes nothing, for a transition the lifecycle does
// not allow.
func (j *Job) transition(to model.JobStatus) bool {
	j.mx.Lock()
	if !isValidTransition(j.status, to) {
		j.mx.Unlock()
		return false
	}
	j.status = to
	j.notifyLocked()
	j.mx.Unlock()

	j.publish(model.Event{Type: model.EventStatus, Status: to})
	return true
}

func (j *Job) setProgress(p model.Progress) {
	j.mx.Lock()
	if j.status.Terminal() {
		j.mx.Unlock()
		return
	}
	stored := p.Clone()
	j.progress = &stored
	j.notifyLocked()
	j.mx.Unlock()

	published := p.Clone()
	j.publish(model.Event{Type: model.EventProgress, Progress: &published})
}

func (j *Job) notifyLocked() {
	close(j.changed)
	j.changed = make(chan struct{})
}

func (j *Job) publish(ev model.Event) {
	j.sendMx.Lock()
	defer j.sendMx.Unlock()
	if j.closed {
		return
	}
	select {
	case j.events <- ev:
		return
	default:
	}
	if !ev.Terminal() {
		j.dropped.Add(1)
		return
	}
	for {
		select {
		case j.events <- ev:
			return
		default:
		}
		select {
		case <-j.events:
			j.dropped.Add(1)
		default:
		}
	}
}

// finish stores the outcome, closes the event stream and releases
// waiters. Only the first call has an effect.
func (j *Job) finish(summary model.DownloadSummary, err error) {
	j.sendMx.Lock()
	if j.closed {
		j.sendMx.Unlock()
		return
	}
	j.closed = true
	close(j.events)
	j.sendMx.Unlock()

	j.mx.Lock()
	j.summary = &summary
	j.err = err
	j.notifyLocked()
	j.mx.Unlock()
	close(j.done)
}

// JobHandle is the caller's view of a queued job.
type JobHandle struct {
	job    *Job
	cancel context.CancelFunc
}

func (h *JobHandle) ID() uuid.UUID {
	return h.job.id
}

func (h *JobHandle) URL() string {
	return h.job.url
}

func (h *JobHandle) Status() model.JobStatus {
	h.job.mx.RLock()
	defer h.job.mx.RUnlock()
	return h.job.status
}

// Progress returns the latest reading, nil before the first one.
func (h *JobHandle) Progress() *model.Progress {
	h.job.mx.RLock()
	defer h.job.mx.RUnlock()
	if h.job.progress == nil {
		return nil
	}
	p := h.job.progress.Clone()
	return &p
}

// Changed returns a channel closed on the next status or progress change.
// Read Status or Progress after obtaining it to never miss an update.
func (h *JobHandle) Changed() <-chan struct{} {
	h.job.mx.RLock()
	defer h.job.mx.RUnlock()
	return h.job.changed
}

// Events is the ordered event stream. It is closed after the terminal
// event.
func (h *JobHandle) Events() <-chan model.Event {
	return h.job.events
}

// Dropped counts events lost because the stream was full.
func (h *JobHandle) Dropped() uint64 {
	return h.job.dropped.Load()
}

// Done is closed once the job reached a terminal state and its history
// row was finalized.
func (h *JobHandle) Done() <-chan struct{} {
	return h.job.done
}

// Wait blocks until the job ends or ctx is done. The summary is returned
// for every terminal state, the error is the reason of a failure or
// ErrCanceled.
func (h *JobHandle) Wait(ctx context.Context) (model.DownloadSummary, error) {
	select {
	case <-h.job.done:
	case <-ctx.Done():
		return model.DownloadSummary{}, ctx.Err()
	}
	h.job.mx.RLock()
	defer h.job.mx.RUnlock()
	return *h.job.summary, h.job.err
}

// Cancel requests cancellation. It is safe to call at any time and more
// than once.
func (h *JobHandle) Cancel() {
	h.cancel()
}
