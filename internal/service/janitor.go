package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/space-downloader/spacedl/internal/model"
)

// Pruner deletes finished history rows older than a point in time.
type Pruner interface {
	PruneBefore(ctx context.Context, t time.Time) (int, error)
}

// Janitor prunes the history on a cron schedule.
type Janitor struct {
	pruner    Pruner
	retention time.Duration
	scheduler gocron.Scheduler
	now       func() time.Time
}

// NewJanitor validates cfg.Prune and cfg.Retention and prepares, without
// starting, the schedule.
func NewJanitor(ctx context.Context, cfg model.History, pruner Pruner) (*Janitor, error) {
	sched, err := model.ParseCron(cfg.Prune)
	if err != nil {
		return nil, fmt.Errorf("parsing history.prune: %w", err)
	}
	retention, err := model.ParseDuration(cfg.Retention)
	if err != nil {
		return nil, fmt.Errorf("parsing history.retention: %w", err)
	}
	slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Prune, "next", sched.Next(time.Now()), "retention", retention.String())

	j := &Janitor{
		pruner:    pruner,
		retention: retention,
		now:       time.Now,
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.CronJob(cfg.Prune, false),
		gocron.NewTask(func() {
			_, _ = j.Prune(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	j.scheduler = s
	return j, nil
}

// Prune runs one pass immediately.
func (j *Janitor) Prune(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		slog.ErrorContext(ctx, "pruning history failed", "error", err)
		return 0, err
	}
	slog.InfoContext(ctx, "pruned history", "deleted", n, "before", cutoff)
	return n, nil
}

// Do starts the schedule and blocks until ctx is done.
func (j *Janitor) Do(ctx context.Context) error {
	j.scheduler.Start()
	<-ctx.Done()
	if err := j.scheduler.Shutdown(); err != nil {
		slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		return err
	}
	return nil
}

// Close releases the scheduler of a janitor that never ran Do.
func (j *Janitor) Close() error {
	return j.scheduler.Shutdown()
}
