package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/space-downloader/spacedl/internal/model"
)

// HistoryStore is the part of history.Store the downloader writes to.
type HistoryStore interface {
	RecordQueued(ctx context.Context, jobID uuid.UUID, url string, format model.AudioFormat) (int64, error)
	UpdateMetadata(ctx context.Context, jobID uuid.UUID, title, uploader *string) error
	MarkCompleted(ctx context.Context, jobID uuid.UUID, status model.JobStatus, filePath, errorCode, errorMessage *string) error
}

// recorder finalizes the history row of one job at most once. Write
// failures are logged and swallowed.
type recorder struct {
	store HistoryStore
	jobID uuid.UUID
	row   atomic.Pointer[int64]
}

func newRecorder(store HistoryStore, jobID uuid.UUID, rowID int64) *recorder {
	r := &recorder{store: store, jobID: jobID}
	r.row.Store(&rowID)
	return r
}

// complete writes the terminal row. It reports false when the row was
// finalized before.
func (r *recorder) complete(ctx context.Context, status model.JobStatus, filePath *string, err error) bool {
	row := r.row.Swap(nil)
	if row == nil {
		return false
	}
	ctx = context.WithoutCancel(ctx)

	var code, msg *string
	if err != nil {
		c, m := ErrorCode(err), Message(err)
		code, msg = &c, &m
	}
	if err := r.store.MarkCompleted(ctx, r.jobID, status, filePath, code, msg); err != nil {
		slog.ErrorContext(ctx, "finalizing history failed", "row", *row, "error", err)
	}
	return true
}

func (r *recorder) metadata(ctx context.Context, title, uploader *string) {
	if title == nil && uploader == nil {
		return
	}
	if err := r.store.UpdateMetadata(context.WithoutCancel(ctx), r.jobID, title, uploader); err != nil {
		slog.ErrorContext(ctx, "updating history metadata failed", "error", err)
	}
}
