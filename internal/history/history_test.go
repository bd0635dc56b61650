package history_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/space-downloader/spacedl/internal/history"
	"github.com/space-downloader/spacedl/internal/model"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func backends(t *testing.T) map[string]history.Store {
	t.Helper()
	out := make(map[string]history.Store)
	for _, backend := range []string{model.BackendSQLite, model.BackendBadger} {
		path := filepath.Join(t.TempDir(), "nested", backend)
		store, err := history.Open(t.Context(), backend, path)
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, store.Close()) })
		out[backend] = store
	}
	return out
}

func TestStore_Lifecycle(t *testing.T) {
	t.Parallel()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			jobID := uuid.New()

			rowID, err := store.RecordQueued(ctx, jobID, "https://example.com/a", model.AudioFormatMP3)
			require.NoError(t, err)
			require.Positive(t, rowID)

			e, err := store.Get(ctx, jobID)
			require.NoError(t, err)
			require.Equal(t, rowID, e.ID)
			require.Equal(t, jobID, e.JobID)
			require.Equal(t, "https://example.com/a", e.URL)
			require.Equal(t, model.AudioFormatMP3, e.Format)
			require.Equal(t, model.JobStatusQueued, e.Status)
			require.Nil(t, e.EndedAt)
			require.WithinDuration(t, time.Now(), e.StartedAt, time.Minute)

			require.NoError(t, store.UpdateMetadata(ctx, jobID, ptr("Title"), nil))
			require.NoError(t, store.UpdateMetadata(ctx, jobID, nil, ptr("Uploader")))

			require.NoError(t, store.MarkCompleted(ctx, jobID, model.JobStatusSucceeded, ptr("/music/Title.mp3"), nil, nil))
			err = store.MarkCompleted(ctx, jobID, model.JobStatusFailed, nil, ptr("failed"), ptr("late"))
			require.ErrorIs(t, err, history.ErrAlreadyFinished)

			e, err = store.Get(ctx, jobID)
			require.NoError(t, err)
			require.Equal(t, model.JobStatusSucceeded, e.Status)
			require.Equal(t, ptr("Title"), e.Title)
			require.Equal(t, ptr("Uploader"), e.Uploader)
			require.Equal(t, ptr("/music/Title.mp3"), e.FilePath)
			require.Nil(t, e.ErrorCode)
			require.NotNil(t, e.EndedAt)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	t.Parallel()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			missing := uuid.New()
			_, err := store.Get(ctx, missing)
			require.ErrorIs(t, err, history.ErrNotFound)
			require.ErrorIs(t, store.UpdateMetadata(ctx, missing, ptr("x"), nil), history.ErrNotFound)
			require.ErrorIs(t, store.MarkCompleted(ctx, missing, model.JobStatusCanceled, nil, nil, nil), history.ErrNotFound)
		})
	}
}

func TestStore_RecentAndPrune(t *testing.T) {
	t.Parallel()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			var ids []uuid.UUID
			for i := range 4 {
				id := uuid.New()
				_, err := store.RecordQueued(ctx, id, "https://example.com/"+string(rune('a'+i)), model.AudioFormatM4A)
				require.NoError(t, err)
				ids = append(ids, id)
				time.Sleep(2 * time.Millisecond)
			}

			recent, err := store.Recent(ctx, 3)
			require.NoError(t, err)
			require.Len(t, recent, 3)
			require.Equal(t, ids[3], recent[0].JobID)
			require.Equal(t, ids[1], recent[2].JobID)

			require.NoError(t, store.MarkCompleted(ctx, ids[0], model.JobStatusFailed, nil, ptr("command_failed"), ptr("exit 1")))
			require.NoError(t, store.MarkCompleted(ctx, ids[1], model.JobStatusCanceled, nil, ptr("canceled"), ptr("download canceled")))

			n, err := store.PruneBefore(ctx, time.Now().Add(-time.Hour))
			require.NoError(t, err)
			require.Zero(t, n)

			n, err = store.PruneBefore(ctx, time.Now().Add(time.Second))
			require.NoError(t, err)
			require.Equal(t, 2, n)

			recent, err = store.Recent(ctx, 10)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			for _, e := range recent {
				require.Equal(t, model.JobStatusQueued, e.Status)
			}
		})
	}
}

// row ids are 1-based and sequential on every backend
func TestStore_RowIDs(t *testing.T) {
	t.Parallel()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			var jobs []uuid.UUID
			for want := int64(1); want <= 3; want++ {
				id := uuid.New()
				rowID, err := store.RecordQueued(ctx, id, "https://example.com/row", model.AudioFormatOpus)
				require.NoError(t, err)
				require.Equal(t, want, rowID)
				jobs = append(jobs, id)
			}

			e, err := store.Get(ctx, jobs[0])
			require.NoError(t, err)
			require.EqualValues(t, 1, e.ID)

			recent, err := store.Recent(ctx, 3)
			require.NoError(t, err)
			var ids []int64
			for _, e := range recent {
				ids = append(ids, e.ID)
			}
			require.ElementsMatch(t, []int64{1, 2, 3}, ids)
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()
	_, err := history.Open(t.Context(), "mongo", filepath.Join(t.TempDir(), "x"))
	require.ErrorIs(t, err, history.ErrStore)
}
