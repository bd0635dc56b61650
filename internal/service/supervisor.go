package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/space-downloader/spacedl/internal/model"
)

// Report is one line written by the Supervisor for every finished or
// rejected request.
type Report struct {
	model.DownloadSummary
	Code    string `json:"code,omitempty"`
	Dropped uint64 `json:"dropped_events,omitempty"`
}

// Supervisor is the long running front of a Downloader. It serializes
// submissions and configuration reloads through one event loop, reports
// every outcome as a JSON line and runs the optional history janitor.
type Supervisor struct {
	downloader *Downloader
	janitor    *Janitor

	requests chan model.DownloadRequest
	configs  chan model.Config
	drain    chan struct{}
	drainMx  sync.Once

	outMx sync.Mutex
	enc   *json.Encoder

	jobsMx sync.Mutex
	jobs   map[uuid.UUID]*JobHandle
	jobsWg sync.WaitGroup
}

func NewSupervisor(downloader *Downloader, out io.Writer) *Supervisor {
	return &Supervisor{
		downloader: downloader,
		requests:   make(chan model.DownloadRequest),
		configs:    make(chan model.Config, 1),
		drain:      make(chan struct{}),
		enc:        json.NewEncoder(out),
		jobs:       make(map[uuid.UUID]*JobHandle),
	}
}

// WithJanitor makes Do run j alongside the event loop.
func (s *Supervisor) WithJanitor(j *Janitor) *Supervisor {
	s.janitor = j
	return s
}

// Submit hands req to the event loop. It blocks until Do accepted it or
// ctx is done.
func (s *Supervisor) Submit(ctx context.Context, req model.DownloadRequest) error {
	select {
	case s.requests <- req:
		return nil
	case <-s.drain:
		return errors.New("supervisor is draining")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconfigure schedules a configuration replacement. A pending one not yet
// applied is superseded.
func (s *Supervisor) Reconfigure(cfg model.Config) {
	for {
		select {
		case s.configs <- cfg:
			return
		default:
		}
		select {
		case <-s.configs:
		default:
		}
	}
}

// Drain tells Do to stop accepting requests, wait for the queued jobs and
// return.
func (s *Supervisor) Drain() {
	s.drainMx.Do(func() { close(s.drain) })
}

// Cancel cancels a running or waiting job.
func (s *Supervisor) Cancel(id uuid.UUID) bool {
	s.jobsMx.Lock()
	defer s.jobsMx.Unlock()
	h, ok := s.jobs[id]
	if ok {
		h.Cancel()
	}
	return ok
}

// Do runs the supervisor event loop until ctx is done or Drain was called
// and every job ended. Canceling ctx cancels the jobs it started.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor")
	defer s.jobsWg.Wait()

	if s.janitor != nil {
		jctx, cancel := context.WithCancel(ctx)
		var jwg sync.WaitGroup
		jwg.Go(func() {
			_ = s.janitor.Do(jctx)
		})
		defer func() {
			cancel()
			jwg.Wait()
		}()
	}

	for {
		// a pending reload goes before the next request
		select {
		case cfg := <-s.configs:
			s.applyConfig(ctx, cfg)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.drain:
			s.jobsWg.Wait()
			return nil
		case cfg := <-s.configs:
			s.applyConfig(ctx, cfg)
		case req := <-s.requests:
			s.handleRequest(ctx, req)
		}
	}
}

func (s *Supervisor) applyConfig(ctx context.Context, cfg model.Config) {
	slog.InfoContext(ctx, "applying new configuration", "concurrency", cfg.EffectiveConcurrency(), "format", cfg.Download.Format)
	s.downloader.UpdateConfig(cfg)
}

func (s *Supervisor) handleRequest(ctx context.Context, req model.DownloadRequest) {
	h, err := s.downloader.Queue(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "request rejected", "url", req.URL, "error", err)
		msg := Message(err)
		s.report(ctx, Report{
			DownloadSummary: model.DownloadSummary{URL: req.URL, Status: model.JobStatusFailed, Error: &msg},
			Code:            ErrorCode(err),
		})
		return
	}

	s.jobsMx.Lock()
	s.jobs[h.ID()] = h
	s.jobsMx.Unlock()

	s.jobsWg.Go(func() {
		// drain the stream so producers never hit a full buffer
		for range h.Events() {
		}
		summary, err := h.Wait(context.WithoutCancel(ctx))

		s.jobsMx.Lock()
		delete(s.jobs, h.ID())
		s.jobsMx.Unlock()

		s.report(ctx, Report{DownloadSummary: summary, Code: ErrorCode(err), Dropped: h.Dropped()})
	})
}

func (s *Supervisor) report(ctx context.Context, r Report) {
	s.outMx.Lock()
	defer s.outMx.Unlock()
	if err := s.enc.Encode(r); err != nil {
		slog.ErrorContext(ctx, "writing report failed", "error", err)
	}
}
