package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/space-downloader/spacedl/internal/model"
)

func testCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "get"}
	cmd.Flags().String("format", "", "")
	cmd.Flags().String("output-dir", "", "")
	cmd.Flags().Int("concurrency", 0, "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestApplyOverrides(t *testing.T) {
	t.Setenv("SPACEDL_DOWNLOAD_CONCURRENCY", "2")
	t.Setenv("SPACEDL_DOWNLOAD_FORMAT", "mp3")
	t.Setenv("SPACEDL_HISTORY_BACKEND", "badger")

	cfg := model.DefaultConfig()
	require.NoError(t, applyOverrides(newViper(testCmd(t, "--format", "OPUS", "--output-dir", "/srv/music")), &cfg))
	require.Equal(t, model.AudioFormatOpus, cfg.Download.Format)
	require.Equal(t, "/srv/music", cfg.General.OutputDir)
	require.Equal(t, 2, cfg.Download.Concurrency)
	require.Equal(t, model.BackendBadger, cfg.History.Backend)
	// untouched
	require.Equal(t, 3, cfg.Download.MaxRetries)
	require.Equal(t, "yt-dlp", cfg.Advanced.YtDlpPath)
	require.NoError(t, cfg.Validate())
}

func TestApplyOverrides_Fail(t *testing.T) {
	cases := []struct {
		scenario string
		env      map[string]string
		args     []string
		then     string
	}{
		{
			scenario: "bad number",
			env:      map[string]string{"SPACEDL_DOWNLOAD_TIMEOUT": "soon"},
			then:     `overriding download.timeout: strconv.Atoi: parsing "soon": invalid syntax`,
		},
		{
			scenario: "bad format",
			args:     []string{"--format", "wav"},
			then:     `overriding download.format: unknown audio format: "wav"`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg := model.DefaultConfig()
			err := applyOverrides(newViper(testCmd(t, tc.args...)), &cfg)
			require.EqualError(t, err, tc.then)
		})
	}
}
