package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/space-downloader/spacedl/internal/model"
	"github.com/space-downloader/spacedl/internal/service"
)

func reports(t *testing.T, out *bytes.Buffer) map[string]service.Report {
	t.Helper()
	got := make(map[string]service.Report)
	dec := json.NewDecoder(out)
	for dec.More() {
		var r service.Report
		require.NoError(t, dec.Decode(&r))
		got[r.URL] = r
	}
	return got
}

func TestSupervisor(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	var out bytes.Buffer
	d := e.downloader(e.config(2), newFakeStore())
	s := service.NewSupervisor(d, &out)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Do(t.Context())
	}()

	for _, u := range []string{mediaURL("ok-1"), mediaURL("fail-2"), "nope"} {
		require.NoError(t, s.Submit(t.Context(), model.DownloadRequest{URL: u}))
	}
	next := e.config(1)
	next.Download.Format = model.AudioFormatOpus
	s.Reconfigure(e.config(3))
	s.Reconfigure(next)
	require.NoError(t, s.Submit(t.Context(), model.DownloadRequest{URL: mediaURL("ok-3")}))
	require.False(t, s.Cancel(uuid.New()))

	s.Drain()
	s.Drain()
	require.NoError(t, <-errCh)
	require.Error(t, s.Submit(t.Context(), model.DownloadRequest{URL: mediaURL("ok-4")}))
	d.Wait()

	got := reports(t, &out)
	require.Len(t, got, 4)

	ok := got[mediaURL("ok-1")]
	require.Equal(t, model.JobStatusSucceeded, ok.Status)
	require.Empty(t, ok.Code)
	require.Equal(t, "Title ok-1", *ok.Title)
	require.NotEqual(t, uuid.Nil, ok.ID)

	failed := got[mediaURL("fail-2")]
	require.Equal(t, model.JobStatusFailed, failed.Status)
	require.Equal(t, service.CodeCommandFailed, failed.Code)
	require.Equal(t, "command failed (exit code 2): ERROR: second", *failed.Error)

	rejected := got["nope"]
	require.Equal(t, model.JobStatusFailed, rejected.Status)
	require.Equal(t, uuid.Nil, rejected.ID)
	require.Equal(t, service.CodeInvalidURL, rejected.Code)
	require.Contains(t, *rejected.Error, "invalid url")

	// submitted after the reload
	reloaded := got[mediaURL("ok-3")]
	require.Equal(t, model.JobStatusSucceeded, reloaded.Status)
	require.Equal(t, ".opus", filepath.Ext(*reloaded.FilePath))
}

func TestSupervisor_Cancel(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	var out bytes.Buffer
	d := e.downloader(e.config(1), newFakeStore())
	s := service.NewSupervisor(d, &out)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Do(ctx)
	}()
	require.NoError(t, s.Submit(t.Context(), model.DownloadRequest{URL: mediaURL("sleep-sv")}))
	e.waitSpawned(t, "sleep-sv")

	cancel()
	require.NoError(t, <-errCh)
	d.Wait()

	got := reports(t, &out)
	require.Equal(t, model.JobStatusCanceled, got[mediaURL("sleep-sv")].Status)
	require.Equal(t, service.CodeCanceled, got[mediaURL("sleep-sv")].Code)
}

func TestSupervisor_Janitor(t *testing.T) {
	t.Parallel()
	pruner := &fakePruner{}
	j, err := service.NewJanitor(t.Context(), model.History{Prune: "@every 1s", Retention: "1d"}, pruner)
	require.NoError(t, err)

	e := newEnv(t)
	s := service.NewSupervisor(e.downloader(e.config(1), newFakeStore()), &bytes.Buffer{}).WithJanitor(j)
	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Do(ctx)
	}()
	require.Eventually(t, func() bool {
		return pruner.calls() > 0
	}, 10*time.Second, 50*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
}
