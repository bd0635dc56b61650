// Package history keeps the durable record of download jobs.
//
// Two backends implement Store: SQLite through modernc.org/sqlite and an
// embedded Badger database through badgerhold. Every backend failure is
// wrapped in ErrStore.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/space-downloader/spacedl/internal/model"
)

var (
	ErrStore           = errors.New("history store")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyFinished = errors.New("already finished")
)

// Entry is one row of the history.
type Entry struct {
	ID           int64
	JobID        uuid.UUID
	URL          string
	Format       model.AudioFormat
	Title        *string
	Uploader     *string
	Status       model.JobStatus
	StartedAt    time.Time
	EndedAt      *time.Time
	FilePath     *string
	ErrorCode    *string
	ErrorMessage *string
}

type Store interface {
	// RecordQueued inserts a row in the Queued state and returns its id.
	RecordQueued(ctx context.Context, jobID uuid.UUID, url string, format model.AudioFormat) (int64, error)
	UpdateMetadata(ctx context.Context, jobID uuid.UUID, title, uploader *string) error
	// MarkCompleted finalizes a row. ErrAlreadyFinished is returned for a
	// row that was finalized before.
	MarkCompleted(ctx context.Context, jobID uuid.UUID, status model.JobStatus, filePath, errorCode, errorMessage *string) error
	Get(ctx context.Context, jobID uuid.UUID) (Entry, error)
	// Recent returns at most limit rows, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	// PruneBefore deletes finished rows that ended before t.
	PruneBefore(ctx context.Context, t time.Time) (int, error)
	Close() error
}

// Open creates the parent directory of path and opens the backend.
func Open(ctx context.Context, backend, path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrStore)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating directory: %w", ErrStore, err)
	}
	switch backend {
	case "", model.BackendSQLite:
		return OpenSQLite(ctx, path)
	case model.BackendBadger:
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrStore, backend)
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
