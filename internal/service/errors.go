package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/space-downloader/spacedl/internal/history"
	"github.com/space-downloader/spacedl/internal/model"
)

var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrCanceled          = errors.New("download canceled")
	ErrMissingDependency = errors.New("missing dependency")
	ErrIO                = errors.New("io error")
)

// SpawnError is returned when the process could not be started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn command %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// CommandError is a nonzero exit. Stderr holds every diagnostic line the
// process printed, joined by newlines.
type CommandError struct {
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed (exit code %d): %s", e.ExitCode, e.Stderr)
}

type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("download timed out after %d seconds", int64(e.Timeout/time.Second))
}

// Error codes stored in the history.
const (
	CodeInvalidURL        = "invalid_url"
	CodeInvalidFormat     = "invalid_format"
	CodeCanceled          = "canceled"
	CodeTimeout           = "timeout"
	CodeCommandFailed     = "command_failed"
	CodeSpawnFailure      = "spawn_failure"
	CodeMissingDependency = "missing_dependency"
	CodeIO                = "io_failure"
	CodeStore             = "store_failure"
	CodeFailed            = "failed"
)

// ErrorCode maps err to a stable code. It returns "" for nil.
func ErrorCode(err error) string {
	var (
		spawnErr   *SpawnError
		commandErr *CommandError
		timeoutErr *TimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidURL):
		return CodeInvalidURL
	case errors.Is(err, model.ErrUnknownFormat):
		return CodeInvalidFormat
	case errors.Is(err, ErrCanceled):
		return CodeCanceled
	case errors.As(err, &timeoutErr):
		return CodeTimeout
	case errors.As(err, &commandErr):
		return CodeCommandFailed
	case errors.Is(err, ErrMissingDependency):
		return CodeMissingDependency
	case errors.As(err, &spawnErr):
		return CodeSpawnFailure
	case errors.Is(err, history.ErrStore):
		return CodeStore
	case errors.Is(err, ErrIO):
		return CodeIO
	default:
		return CodeFailed
	}
}

// Message renders err on one line. A command failure keeps only the
// last diagnostic line, the full text stays in CommandError.Stderr.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var commandErr *CommandError
	if errors.As(err, &commandErr) {
		return fmt.Sprintf("command failed (exit code %d): %s", commandErr.ExitCode, lastLine(commandErr.Stderr))
	}
	return err.Error()
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
