package service_test

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/space-downloader/spacedl/internal/history"
	"github.com/space-downloader/spacedl/internal/model"
	"github.com/space-downloader/spacedl/internal/service"
)

func TestErrorCode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		given    error
		then     string
	}{
		{"nil", nil, ""},
		{"invalid url", fmt.Errorf("%w: ftp", service.ErrInvalidURL), service.CodeInvalidURL},
		{"invalid format", model.ErrUnknownFormat, service.CodeInvalidFormat},
		{"canceled", fmt.Errorf("job: %w", service.ErrCanceled), service.CodeCanceled},
		{"timeout", &service.TimeoutError{Timeout: time.Minute}, service.CodeTimeout},
		{"command", &service.CommandError{ExitCode: 1, Stderr: "x"}, service.CodeCommandFailed},
		{"dependency", fmt.Errorf("%w: yt-dlp", service.ErrMissingDependency), service.CodeMissingDependency},
		{"spawn", &service.SpawnError{Path: "yt-dlp", Err: os.ErrPermission}, service.CodeSpawnFailure},
		{"store", fmt.Errorf("%w: %w", service.ErrIO, history.ErrStore), service.CodeStore},
		{"io", fmt.Errorf("%w: mkdir", service.ErrIO), service.CodeIO},
		{"other", errors.New("boom"), service.CodeFailed},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.then, service.ErrorCode(tc.given))
		})
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()
	require.Empty(t, service.Message(nil))
	require.Equal(t, "download timed out after 90 seconds", service.Message(&service.TimeoutError{Timeout: 90 * time.Second}))
	require.Equal(t, "download canceled", service.Message(service.ErrCanceled))

	err := &service.CommandError{ExitCode: 1, Stderr: "WARNING: slow\nERROR: Video unavailable\n"}
	require.Equal(t, "command failed (exit code 1): ERROR: Video unavailable", service.Message(err))
	require.Equal(t, "command failed (exit code 1): WARNING: slow\nERROR: Video unavailable\n", err.Error())

	spawnErr := &service.SpawnError{Path: "/bin/yt-dlp", Err: os.ErrPermission}
	require.ErrorIs(t, spawnErr, os.ErrPermission)
	require.Equal(t, "failed to spawn command /bin/yt-dlp: permission denied", service.Message(spawnErr))
}
