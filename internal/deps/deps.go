// Package deps locates the external binaries spacedl drives and probes
// their versions.
package deps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/space-downloader/spacedl/internal/model"
	"github.com/space-downloader/spacedl/internal/parallel"
)

const probeTimeout = 5 * time.Second

var ErrNotFound = errors.New("command not found")

// Check is the outcome of a version probe.
type Check struct {
	Binary    string `json:"binary"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Resolver finds executables. The zero value looks next to the running
// executable, in BinDir and finally in $PATH.
type Resolver struct {
	// BinDir holds downloaded binaries, model.DataDir()/bin when empty.
	BinDir string
	// ExeDir overrides the directory of the running executable.
	ExeDir string
}

// Resolve returns the path of candidate. A candidate with a directory
// component must exist as given. A bare name is looked up next to the
// running executable, in the bin directory and in $PATH, in that order.
func (r Resolver) Resolve(candidate string) (string, error) {
	if candidate == "" {
		return "", fmt.Errorf("%w: empty name", ErrNotFound)
	}
	if strings.ContainsRune(candidate, filepath.Separator) || strings.ContainsRune(candidate, '/') {
		if isFile(candidate) {
			return candidate, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, candidate)
	}

	for _, dir := range []string{r.exeDir(), r.binDir()} {
		if dir == "" {
			continue
		}
		for _, name := range names(candidate) {
			if p := filepath.Join(dir, name); isFile(p) {
				return p, nil
			}
		}
	}

	p, err := exec.LookPath(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, candidate)
	}
	return p, nil
}

// Resolve uses the zero Resolver.
func Resolve(candidate string) (string, error) {
	return Resolver{}.Resolve(candidate)
}

// Check runs binary with args and reports the first line it printed.
// A missing binary, a failing or a hanging probe is reported in the
// result, the error is reserved for spawn failures.
func (r Resolver) Check(ctx context.Context, binary string, args ...string) (Check, error) {
	check := Check{Binary: binary}
	path, err := r.Resolve(binary)
	if err != nil {
		check.Error = ErrNotFound.Error()
		return check, nil
	}
	check.Path = path

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		check.Error = "version check timed out"
		return check, nil
	case errors.As(err, &exitErr):
		check.Error = strings.TrimSpace(stderr.String())
		if check.Error == "" {
			check.Error = exitErr.Error()
		}
		return check, nil
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		check.Error = ErrNotFound.Error()
		return check, nil
	case err != nil:
		return check, fmt.Errorf("spawning %s: %w", binary, err)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		text = strings.TrimSpace(stderr.String())
	}
	check.Available = true
	check.Version = firstLine(text)
	return check, nil
}

// CheckAll probes yt-dlp and ffmpeg concurrently.
func (r Resolver) CheckAll(ctx context.Context, adv model.Advanced) ([]Check, error) {
	type probe struct {
		binary string
		args   []string
	}
	probes := []probe{
		{adv.YtDlpPath, []string{"--version"}},
		{adv.FFmpegPath, []string{"-version"}},
	}
	return parallel.Map(ctx, len(probes), probes, func(ctx context.Context, p probe) (Check, error) {
		return r.Check(ctx, p.binary, p.args...)
	})
}

func (r Resolver) exeDir() string {
	if r.ExeDir != "" {
		return r.ExeDir
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}

func (r Resolver) binDir() string {
	if r.BinDir != "" {
		return r.BinDir
	}
	return filepath.Join(model.DataDir(), "bin")
}

func names(candidate string) []string {
	if runtime.GOOS == "windows" && filepath.Ext(candidate) == "" {
		return []string{candidate + ".exe", candidate}
	}
	return []string{candidate}
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
