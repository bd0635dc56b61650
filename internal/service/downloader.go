package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/space-downloader/spacedl/internal/deps"
	"github.com/space-downloader/spacedl/internal/log"
	"github.com/space-downloader/spacedl/internal/model"
	"github.com/space-downloader/spacedl/internal/progress"
)

const defaultRetryDelay = 2 * time.Second

// permits is one generation of the permit pool. replaced is closed once
// UpdateConfig installed a successor.
type permits struct {
	sem      *semaphore.Weighted
	replaced chan struct{}
}

func newPermits(n int) *permits {
	return &permits{
		sem:      semaphore.NewWeighted(int64(n)),
		replaced: make(chan struct{}),
	}
}

type Option func(*Downloader)

// WithRetryDelay sets the base delay between attempts after a command
// failure. The n-th retry waits n times the delay.
func WithRetryDelay(d time.Duration) Option {
	return func(dl *Downloader) {
		dl.retryDelay = d
	}
}

// WithResolver replaces deps.Resolve for locating yt-dlp.
func WithResolver(resolve func(string) (string, error)) Option {
	return func(dl *Downloader) {
		dl.resolve = resolve
	}
}

// Downloader admits download jobs and runs each in its own goroutine,
// bounded by a permit pool sized from the configuration.
type Downloader struct {
	mx      sync.RWMutex
	cfg     model.Config
	permits *permits

	history    HistoryStore
	resolve    func(string) (string, error)
	retryDelay time.Duration
	wg         sync.WaitGroup
}

func NewDownloader(cfg model.Config, history HistoryStore, opts ...Option) *Downloader {
	d := &Downloader{
		cfg:        cfg.Clone(),
		permits:    newPermits(cfg.EffectiveConcurrency()),
		history:    history,
		resolve:    deps.Resolve,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// jobRuntime is owned by the goroutine running the job.
type jobRuntime struct {
	job         *Job
	req         model.DownloadRequest
	cfg         model.Config
	recorder    *recorder
	runner      *Runner
	destination string
}

// Config returns the current configuration snapshot.
func (d *Downloader) Config() model.Config {
	d.mx.RLock()
	defer d.mx.RUnlock()
	return d.cfg.Clone()
}

// UpdateConfig replaces the configuration and the permit pool. Running
// jobs keep their settings and their permit. Jobs still waiting move to
// the new pool.
func (d *Downloader) UpdateConfig(cfg model.Config) {
	next := newPermits(cfg.EffectiveConcurrency())
	d.mx.Lock()
	d.cfg = cfg.Clone()
	prev := d.permits
	d.permits = next
	d.mx.Unlock()
	close(prev.replaced)
}

// Queue validates req, fills its blanks from the configuration, records
// it in the history and starts the job. The job inherits the values and
// the cancellation of ctx; pass context.WithoutCancel(ctx) to detach it.
func (d *Downloader) Queue(ctx context.Context, req model.DownloadRequest) (*JobHandle, error) {
	u, err := url.Parse(req.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, req.URL)
	}

	cfg := d.Config()
	if req.OutputDir == "" {
		req.OutputDir = cfg.General.OutputDir
	}
	if req.Format == "" {
		req.Format = cfg.Download.Format
	}
	format, err := model.ParseAudioFormat(req.Format.String())
	if err != nil {
		return nil, err
	}
	req.Format = format
	if len(req.ExtraArgs) == 0 {
		req.ExtraArgs = append([]string(nil), cfg.Advanced.ExtraArgs...)
	}
	if req.CookieFile == "" {
		req.CookieFile = cfg.Advanced.CookieFile
	}
	if req.OutputDir == "" {
		req.OutputDir = "."
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating output directory: %w", ErrIO, err)
	}

	id := uuid.New()
	rowID, err := d.history.RecordQueued(ctx, id, req.URL, req.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: recording job: %w", ErrIO, err)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	jobCtx = log.ContextAttrs(jobCtx,
		slog.String("job_id", id.String()),
		slog.String("url", req.URL),
	)
	rt := &jobRuntime{
		job:      newJob(id, req.URL),
		req:      req,
		cfg:      cfg,
		recorder: newRecorder(d.history, id, rowID),
		runner:   NewRunner(),
	}

	slog.DebugContext(jobCtx, "job queued", "output_dir", req.OutputDir, "format", req.Format)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		d.run(jobCtx, rt)
	}()
	return &JobHandle{job: rt.job, cancel: cancel}, nil
}

// Wait blocks until every queued job has ended.
func (d *Downloader) Wait() {
	d.wg.Wait()
}

func (d *Downloader) currentPermits() *permits {
	d.mx.RLock()
	defer d.mx.RUnlock()
	return d.permits
}

// acquire takes a permit from the current pool, following replacements
// while it waits.
func (d *Downloader) acquire(ctx context.Context) (*permits, error) {
	for {
		p := d.currentPermits()
		actx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-p.replaced:
				cancel()
			case <-actx.Done():
			}
		}()
		err := p.sem.Acquire(actx, 1)
		cancel()
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
	}
}

func (d *Downloader) run(ctx context.Context, rt *jobRuntime) {
	p, err := d.acquire(ctx)
	if err != nil {
		d.finish(ctx, rt, model.DownloadSummary{}, err)
		return
	}
	defer p.sem.Release(1)

	if ctx.Err() != nil {
		d.finish(ctx, rt, model.DownloadSummary{}, ErrCanceled)
		return
	}

	rt.job.transition(model.JobStatusRunning)
	slog.InfoContext(ctx, "starting download")
	summary, err := d.execute(ctx, rt)
	d.finish(ctx, rt, summary, err)
}

func (d *Downloader) execute(ctx context.Context, rt *jobRuntime) (model.DownloadSummary, error) {
	path, err := d.resolve(rt.cfg.Advanced.YtDlpPath)
	if err != nil {
		return model.DownloadSummary{}, fmt.Errorf("%w: %w", ErrMissingDependency, err)
	}
	cmd := Command{
		Path:    path,
		Args:    buildArgs(rt.req),
		Timeout: rt.cfg.DownloadTimeout(),
	}

	retries := max(rt.cfg.Download.MaxRetries, 0)
	for attempt := 0; ; attempt++ {
		_, err = rt.runner.Run(ctx, cmd, rt.onLine)
		var commandErr *CommandError
		if err == nil || !errors.As(err, &commandErr) || attempt >= retries {
			break
		}
		msg := fmt.Sprintf("retrying after exit code %d (attempt %d of %d)", commandErr.ExitCode, attempt+2, retries+1)
		slog.WarnContext(ctx, msg)
		rt.job.publish(model.Event{Type: model.EventLog, Line: msg})
		select {
		case <-time.After(d.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return model.DownloadSummary{}, ErrCanceled
		}
	}
	if err != nil {
		return model.DownloadSummary{}, err
	}

	meta := readMetadata(rt.req.OutputDir, rt.req.Format, rt.destination)
	return model.DownloadSummary{
		Title:    meta.Title,
		Uploader: meta.Uploader,
		FilePath: meta.FilePath,
	}, nil
}

func (rt *jobRuntime) onLine(ctx context.Context, line string) {
	slog.DebugContext(ctx, "yt-dlp", "line", line)
	rt.job.publish(model.Event{Type: model.EventLog, Line: line})
	if dest, ok := progress.Destination(line); ok {
		rt.destination = dest
	}
	if p, ok := progress.Parse(line); ok {
		rt.job.setProgress(p)
	}
}

// finish derives the terminal status from err, finalizes the history row
// and only then publishes the terminal events.
func (d *Downloader) finish(ctx context.Context, rt *jobRuntime, summary model.DownloadSummary, err error) {
	status := model.JobStatusSucceeded
	switch {
	case errors.Is(err, ErrCanceled):
		status = model.JobStatusCanceled
	case err != nil:
		status = model.JobStatusFailed
	}

	summary.ID = rt.job.id
	summary.URL = rt.req.URL
	summary.Status = status
	summary.CompletedAt = time.Now().UTC()
	if err != nil {
		msg := Message(err)
		summary.Error = &msg
	}

	if rt.recorder.complete(ctx, status, summary.FilePath, err) && status == model.JobStatusSucceeded {
		rt.recorder.metadata(ctx, summary.Title, summary.Uploader)
	}

	rt.job.transition(status)
	switch status {
	case model.JobStatusSucceeded:
		slog.InfoContext(ctx, "download succeeded", "file", deref(summary.FilePath))
		s := summary
		rt.job.publish(model.Event{Type: model.EventCompleted, Summary: &s})
	case model.JobStatusFailed:
		slog.ErrorContext(ctx, "download failed", "code", ErrorCode(err), "error", err)
		rt.job.publish(model.Event{Type: model.EventFailed, Message: *summary.Error})
	default:
		slog.WarnContext(ctx, "download canceled")
	}
	rt.job.finish(summary, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
