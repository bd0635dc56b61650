package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/space-downloader/spacedl/internal/log"
	"github.com/stretchr/testify/require"
)

func TestContextHandler(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(log.NewContextHandler(slog.NewJSONHandler(&buf, nil))).With("component", "test")

	ctx := log.ContextAttrs(context.Background(), slog.String("job_id", "42"))
	child := log.ContextAttrs(ctx, slog.String("url", "https://example.com"))
	// sibling must not observe child's attrs
	_ = log.ContextAttrs(ctx, slog.String("other", "x"))

	logger.InfoContext(child, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "hello", rec["msg"])
	require.Equal(t, "test", rec["component"])
	require.Equal(t, "42", rec["job_id"])
	require.Equal(t, "https://example.com", rec["url"])
	require.NotContains(t, rec, "other")
}

func TestNew(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "spacedl.log")
	logger, closer, err := log.New(log.Settings{Level: "warn", Output: path})
	require.NoError(t, err)

	logger.Info("skipped")
	logger.Warn("kept")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(b), "skipped")
	require.Contains(t, string(b), "kept")

	_, _, err = log.New(log.Settings{Level: "loud"})
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	for given, then := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		l, err := log.ParseLevel(given)
		require.NoError(t, err)
		require.Equal(t, then, l)
	}
}
