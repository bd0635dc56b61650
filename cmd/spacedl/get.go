package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/space-downloader/spacedl/internal/history"
	"github.com/space-downloader/spacedl/internal/log"
	"github.com/space-downloader/spacedl/internal/model"
	"github.com/space-downloader/spacedl/internal/service"
)

var getCmd = &cobra.Command{
	Use:   "get URL...",
	Short: "download the audio of one or more URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doGet,
}

func init() {
	getCmd.Flags().String("format", "", "audio format: m4a, mp3 or opus")
	getCmd.Flags().String("output-dir", "", "directory the audio files are written to")
	getCmd.Flags().String("cookies", "", "cookie file passed to yt-dlp")
	getCmd.Flags().Int("concurrency", 0, "number of parallel downloads (1-3)")
	getCmd.Flags().Int("retries", 0, "attempts after a failed run of yt-dlp")
	getCmd.Flags().Int("timeout", 0, "download time limit in seconds, 0 disables it")
}

func doGet(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextAttrs(ctx, slog.Group("spacedl",
		slog.String("cmd", "get"),
		slog.Int("pid", os.Getpid()),
	))

	store, err := history.Open(ctx, config.History.Backend, config.History.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.ErrorContext(ctx, "closing history failed", "error", err)
		}
	}()

	downloader := service.NewDownloader(config, store)
	defer downloader.Wait()

	p := &printer{out: cmd.OutOrStdout()}
	var (
		wg     sync.WaitGroup
		mx     sync.Mutex
		failed int
	)
	fail := func() {
		mx.Lock()
		failed++
		mx.Unlock()
	}

	for _, u := range args {
		h, err := downloader.Queue(ctx, model.DownloadRequest{URL: u})
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", u, service.Message(err))
			fail()
			continue
		}
		wg.Go(func() {
			summary, err := p.follow(ctx, h)
			if err != nil || summary.Status != model.JobStatusSucceeded {
				fail()
			}
		})
	}
	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads did not succeed", failed, len(args))
	}
	return nil
}
