package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotStarted = errors.New("command not started")
	ErrInProgress = errors.New("command in progress")
)

const (
	// bound on Wait once the process group was killed
	waitDelay = 2 * time.Second
	// yt-dlp prints long lines for playlists and json dumps
	maxLineSize = 1 << 20
)

// LineFunc receives every line the process writes to stderr.
type LineFunc func(ctx context.Context, line string)

// Runner runs one command at a time.
type Runner struct {
	mx      sync.Mutex
	running bool
	result  Result
}

func NewRunner() *Runner {
	return &Runner{
		result: Result{Err: ErrNotStarted},
	}
}

type Command struct {
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration // 0 means no limit
}

type Result struct {
	Path    string
	Args    []string
	Started time.Time
	Stopped time.Time
	State   *os.ProcessState
	Stdout  *bytes.Buffer
	Stderr  []string
	Err     error
}

// Run starts the command and blocks until it has exited. Stdout is
// buffered, stderr is passed to lineFunc line by line. Canceling ctx kills
// the whole process group and yields ErrCanceled. A nonzero
// proto.Timeout, measured from spawn, kills it with a *TimeoutError.
func (r *Runner) Run(ctx context.Context, proto Command, lineFunc LineFunc) (Result, error) {
	r.mx.Lock()
	if r.running {
		r.mx.Unlock()
		return Result{}, ErrInProgress
	}
	r.running = true
	r.result = Result{Err: ErrInProgress}
	r.mx.Unlock()

	res := r.run(ctx, proto, lineFunc)

	r.mx.Lock()
	r.running = false
	r.result = res
	r.mx.Unlock()
	return res, res.Err
}

func (r *Runner) run(ctx context.Context, proto Command, lineFunc LineFunc) Result {
	res := Result{
		Path: proto.Path,
		Args: append([]string(nil), proto.Args...),
	}
	if err := ctx.Err(); err != nil {
		res.Err = ErrCanceled
		return res
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if proto.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, proto.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, proto.Path, res.Args...)
	if len(proto.Env) > 0 {
		cmd.Env = append(os.Environ(), proto.Env...)
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	res.Stdout = &stdout
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		res.Err = &SpawnError{Path: proto.Path, Err: err}
		return res
	}

	res.Started = time.Now().UTC()
	if err := cmd.Start(); err != nil {
		res.Stopped = time.Now().UTC()
		if ctx.Err() != nil {
			res.Err = ErrCanceled
			return res
		}
		res.Err = &SpawnError{Path: proto.Path, Err: err}
		return res
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		res.Stderr = processStderr(ctx, stderr, lineFunc)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		// the process group is being killed, Wait closes the pipe
	}
	waitErr := cmd.Wait()
	<-done
	res.Stopped = time.Now().UTC()
	res.State = cmd.ProcessState

	switch {
	case ctx.Err() != nil:
		res.Err = ErrCanceled
	case runCtx.Err() != nil:
		res.Err = &TimeoutError{Timeout: proto.Timeout}
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Err = &CommandError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.Join(res.Stderr, "\n"),
			}
		} else {
			res.Err = waitErr
		}
	}
	return res
}

func processStderr(ctx context.Context, stderr io.Reader, lineFunc LineFunc) []string {
	var lines []string
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lines = append(lines, line)
		if lineFunc != nil {
			lineFunc(ctx, line)
		}
	}
	err := scanner.Err()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		slog.DebugContext(ctx, "processing stderr", "error", err)
	}
	return lines
}

// LastResult returns the result of the last finished command, or a
// result with ErrNotStarted or ErrInProgress.
func (r *Runner) LastResult() Result {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.result
}
