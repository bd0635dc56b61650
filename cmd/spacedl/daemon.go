package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/space-downloader/spacedl/internal/history"
	"github.com/space-downloader/spacedl/internal/log"
	"github.com/space-downloader/spacedl/internal/model"
	"github.com/space-downloader/spacedl/internal/service"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "read URLs from stdin, one per line, and report every outcome as JSON",
	Long: `daemon queues every URL read from standard input and writes one JSON
report per finished job to standard output. It exits once the input
ended and all jobs finished. SIGHUP reloads the configuration file,
SIGINT and SIGTERM cancel the running jobs.`,
	Args: cobra.NoArgs,
	RunE: doDaemon,
}

func doDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextAttrs(ctx, slog.Group("spacedl",
		slog.String("cmd", "daemon"),
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

	janitor, err := service.NewJanitor(ctx, config.History, store)
	if err != nil {
		return err
	}
	downloader := service.NewDownloader(config, store)
	supervisor := service.NewSupervisor(downloader, cmd.OutOrStdout()).WithJanitor(janitor)

	go reloadOnHangup(ctx, cmd, supervisor)
	go readRequests(ctx, cmd, supervisor)

	err = supervisor.Do(ctx)
	downloader.Wait()
	return err
}

func readRequests(ctx context.Context, cmd *cobra.Command, supervisor *service.Supervisor) {
	defer supervisor.Drain()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := supervisor.Submit(ctx, model.DownloadRequest{URL: line}); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		slog.ErrorContext(ctx, "reading requests failed", "error", err)
	}
}

func reloadOnHangup(ctx context.Context, cmd *cobra.Command, supervisor *service.Supervisor) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}
		cfg, err := model.LoadConfigFile(configPath)
		if err != nil {
			slog.ErrorContext(ctx, "reloading config failed", "path", configPath, "error", err)
			continue
		}
		if err := applyOverrides(newViper(cmd), cfg); err != nil {
			slog.ErrorContext(ctx, "reloading config failed", "error", err)
			continue
		}
		cfg.ResolvePaths()
		slog.InfoContext(ctx, "configuration reloaded", "path", configPath)
		supervisor.Reconfigure(*cfg)
	}
}
