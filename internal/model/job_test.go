package model_test

import (
	"testing"
	"time"

	"github.com/space-downloader/spacedl/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseAudioFormat(t *testing.T) {
	t.Parallel()
	f, err := model.ParseAudioFormat(" MP3 ")
	require.NoError(t, err)
	require.Equal(t, model.AudioFormatMP3, f)

	_, err = model.ParseAudioFormat("flac")
	require.ErrorIs(t, err, model.ErrUnknownFormat)
}

func TestJobStatus(t *testing.T) {
	t.Parallel()
	require.False(t, model.JobStatusQueued.Terminal())
	require.False(t, model.JobStatusRunning.Terminal())
	require.True(t, model.JobStatusSucceeded.Terminal())
	require.True(t, model.JobStatusFailed.Terminal())
	require.True(t, model.JobStatusCanceled.Terminal())

	require.Equal(t, model.JobStatusCanceled, model.ParseJobStatus("Canceled"))
	require.Equal(t, model.JobStatusFailed, model.ParseJobStatus("bogus"))
}

func TestEventTerminal(t *testing.T) {
	t.Parallel()
	require.False(t, model.Event{Type: model.EventLog, Line: "x"}.Terminal())
	require.False(t, model.Event{Type: model.EventStatus, Status: model.JobStatusRunning}.Terminal())
	require.True(t, model.Event{Type: model.EventStatus, Status: model.JobStatusCanceled}.Terminal())
	require.True(t, model.Event{Type: model.EventFailed, Message: "boom"}.Terminal())
}

func TestProgressClone(t *testing.T) {
	t.Parallel()
	pct, total, eta := 12.5, uint64(1024), 3*time.Second
	p := model.Progress{Percent: &pct, TotalBytes: &total, ETA: &eta}

	c := p.Clone()
	require.Equal(t, p, c)
	*c.Percent, *c.TotalBytes, *c.ETA = 99, 1, time.Hour
	require.InDelta(t, 12.5, *p.Percent, 0.001)
	require.Equal(t, uint64(1024), *p.TotalBytes)
	require.Equal(t, 3*time.Second, *p.ETA)
	require.Nil(t, c.DownloadedBytes)
	require.Nil(t, c.SpeedBytesPerSec)
}
