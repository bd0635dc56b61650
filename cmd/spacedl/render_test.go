package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/space-downloader/spacedl/internal/model"
)

func ptr[T any](v T) *T {
	return &v
}

func TestFormatProgress(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		given    model.Progress
		then     string
	}{
		{"empty", model.Progress{}, "downloading"},
		{
			"full",
			model.Progress{
				Percent:          ptr(45.2),
				TotalBytes:       ptr(uint64(3_670_016)),
				SpeedBytesPerSec: ptr(uint64(1_268_889)),
				ETA:              ptr(83 * time.Second),
			},
			" 45.2% of 3.5 MiB at 1.2 MiB/s ETA 1m23s",
		},
		{"unknown total", model.Progress{DownloadedBytes: ptr(uint64(2048))}, "2.0 KiB"},
		{"done", model.Progress{Percent: ptr(100.0)}, "100.0%"},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.then, formatProgress(tc.given))
		})
	}
}
