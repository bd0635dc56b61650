package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/space-downloader/spacedl/internal/model"
	"github.com/space-downloader/spacedl/internal/service"
)

const progressEvery = 500 * time.Millisecond

// printer writes job events for humans. Lines of concurrent jobs are
// prefixed with a short job id and never interleave.
type printer struct {
	mx  sync.Mutex
	out io.Writer
}

func (p *printer) printf(h *service.JobHandle, format string, args ...any) {
	p.mx.Lock()
	defer p.mx.Unlock()
	fmt.Fprintf(p.out, "[%s] %s\n", h.ID().String()[:8], fmt.Sprintf(format, args...))
}

// follow renders the events of h until the stream ends and returns the
// outcome. Progress lines are throttled, the final reading always shows.
func (p *printer) follow(ctx context.Context, h *service.JobHandle) (model.DownloadSummary, error) {
	limiter := rate.NewLimiter(rate.Every(progressEvery), 1)
	var pending *model.Progress
	for ev := range h.Events() {
		switch ev.Type {
		case model.EventStatus:
			if pending != nil && ev.Status == model.JobStatusSucceeded {
				p.printf(h, "%s", formatProgress(*pending))
			}
			pending = nil
			p.printf(h, "%s %s", ev.Status, h.URL())
		case model.EventProgress:
			if limiter.Allow() {
				p.printf(h, "%s", formatProgress(*ev.Progress))
				pending = nil
			} else {
				pending = ev.Progress
			}
		case model.EventCompleted:
			if path := deref(ev.Summary.FilePath); path != "" {
				p.printf(h, "saved %s", path)
			}
		case model.EventFailed:
			p.printf(h, "error: %s", ev.Message)
		}
	}
	if n := h.Dropped(); n > 0 {
		p.printf(h, "%d events dropped", n)
	}
	return h.Wait(ctx)
}

func formatProgress(p model.Progress) string {
	var parts []string
	if p.Percent != nil {
		parts = append(parts, fmt.Sprintf("%5.1f%%", *p.Percent))
	}
	if p.TotalBytes != nil {
		parts = append(parts, "of "+humanize.IBytes(*p.TotalBytes))
	} else if p.DownloadedBytes != nil {
		parts = append(parts, humanize.IBytes(*p.DownloadedBytes))
	}
	if p.SpeedBytesPerSec != nil {
		parts = append(parts, "at "+humanize.IBytes(*p.SpeedBytesPerSec)+"/s")
	}
	if p.ETA != nil {
		parts = append(parts, "ETA "+p.ETA.String())
	}
	if len(parts) == 0 {
		return "downloading"
	}
	return strings.Join(parts, " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
