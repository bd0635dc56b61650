package service

import (
	"path/filepath"

	"github.com/space-downloader/spacedl/internal/model"
)

const outputTemplate = "%(title)s.%(ext)s"

// buildArgs renders the yt-dlp command line for req.
func buildArgs(req model.DownloadRequest) []string {
	args := []string{
		"--extract-audio",
		"--audio-format", req.Format.String(),
		"--audio-quality", "0",
		"--write-info-json",
		"--no-playlist",
		"--progress",
		"--newline",
		"--output", filepath.Join(req.OutputDir, outputTemplate),
	}
	if req.CookieFile != "" {
		args = append(args, "--cookies", req.CookieFile)
	}
	args = append(args, req.ExtraArgs...)
	return append(args, req.URL)
}
