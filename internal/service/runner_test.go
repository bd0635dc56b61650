package service_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/space-downloader/spacedl/internal/service"
	"github.com/stretchr/testify/require"
)

func lookSh(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	return sh
}

func TestRunner(t *testing.T) {
	t.Parallel()
	sh := lookSh(t)

	runner := service.NewRunner()
	t.Run("not yet started", func(t *testing.T) {
		res := runner.LastResult()
		require.ErrorIs(t, res.Err, service.ErrNotStarted)
	})

	t.Run("stdout and stderr", func(t *testing.T) {
		cmd := service.Command{
			Path: sh,
			Args: []string{"-c", "echo stdout; printf 'one\\ntwo\\r\\n' >&2; echo $SPACEDL_X >&2"},
			Env:  []string{"SPACEDL_X=three"},
		}
		var lines []string
		res, err := runner.Run(t.Context(), cmd, func(_ context.Context, line string) {
			lines = append(lines, line)
		})
		require.NoError(t, err)
		require.Equal(t, "stdout\n", res.Stdout.String())
		require.Equal(t, []string{"one", "two", "three"}, lines)
		require.Equal(t, lines, res.Stderr)
		require.Equal(t, sh, res.Path)
		require.NotZero(t, res.Started)
		require.False(t, res.Stopped.Before(res.Started))
		require.Equal(t, 0, res.State.ExitCode())

		last := runner.LastResult()
		require.NoError(t, last.Err)
		require.Equal(t, res.Stderr, last.Stderr)
	})

	t.Run("exit code", func(t *testing.T) {
		cmd := service.Command{
			Path: sh,
			Args: []string{"-c", "echo first >&2; echo second >&2; echo third >&2; exit 3"},
		}
		_, err := runner.Run(t.Context(), cmd, nil)
		var commandErr *service.CommandError
		require.ErrorAs(t, err, &commandErr)
		require.Equal(t, 3, commandErr.ExitCode)
		require.Equal(t, "first\nsecond\nthird", commandErr.Stderr)
		require.Equal(t, service.CodeCommandFailed, service.ErrorCode(err))
		require.Equal(t, "command failed (exit code 3): third", service.Message(err))
	})

	t.Run("spawn error", func(t *testing.T) {
		_, err := runner.Run(t.Context(), service.Command{Path: "/does/not/exist"}, nil)
		var spawnErr *service.SpawnError
		require.ErrorAs(t, err, &spawnErr)
		require.Equal(t, "/does/not/exist", spawnErr.Path)
		require.Equal(t, service.CodeSpawnFailure, service.ErrorCode(err))
	})
}

func TestRunner_Timeout(t *testing.T) {
	t.Parallel()
	sh := lookSh(t)

	cmd := service.Command{
		Path:    sh,
		Args:    []string{"-c", "echo started >&2; sleep 30; echo never >&2"},
		Timeout: 200 * time.Millisecond,
	}
	start := time.Now()
	res, err := service.NewRunner().Run(t.Context(), cmd, nil)
	var timeoutErr *service.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, 200*time.Millisecond, timeoutErr.Timeout)
	require.Less(t, time.Since(start), 10*time.Second)
	require.GreaterOrEqual(t, res.Stopped.Sub(res.Started), 200*time.Millisecond)
	require.Equal(t, service.CodeTimeout, service.ErrorCode(err))
}

func TestRunner_Cancel(t *testing.T) {
	t.Parallel()
	sh := lookSh(t)

	ctx, cancel := context.WithCancel(t.Context())
	cmd := service.Command{
		Path: sh,
		// the grandchild must die with the group
		Args: []string{"-c", "echo ready >&2; sleep 30 & wait"},
	}
	ready := make(chan struct{})
	var got []string
	start := time.Now()
	go func() {
		<-ready
		cancel()
	}()
	_, err := service.NewRunner().Run(ctx, cmd, func(_ context.Context, line string) {
		got = append(got, line)
		if line == "ready" {
			close(ready)
		}
	})
	require.ErrorIs(t, err, service.ErrCanceled)
	require.Less(t, time.Since(start), 10*time.Second)
	require.Equal(t, []string{"ready"}, got)
}

func TestRunner_InProgress(t *testing.T) {
	t.Parallel()
	sh := lookSh(t)

	runner := service.NewRunner()
	ctx, cancel := context.WithCancel(t.Context())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(ctx, service.Command{Path: sh, Args: []string{"-c", "echo x >&2; sleep 30"}}, func(context.Context, string) {
			close(started)
		})
		done <- err
	}()
	<-started
	_, err := runner.Run(t.Context(), service.Command{Path: sh}, nil)
	require.ErrorIs(t, err, service.ErrInProgress)
	require.ErrorIs(t, runner.LastResult().Err, service.ErrInProgress)

	cancel()
	require.ErrorIs(t, <-done, service.ErrCanceled)
}

func TestRunner_CanceledBeforeStart(t *testing.T) {
	t.Parallel()
	sh := lookSh(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	res, err := service.NewRunner().Run(ctx, service.Command{Path: sh, Args: []string{"-c", "exit 0"}}, nil)
	require.ErrorIs(t, err, service.ErrCanceled)
	require.Zero(t, res.Started)
}
