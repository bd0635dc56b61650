package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/space-downloader/spacedl/internal/history"
	"github.com/space-downloader/spacedl/internal/model"
	"github.com/space-downloader/spacedl/internal/service"
)

var (
	flagLimit     int
	flagOlderThan string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "list recent downloads",
	Args:  cobra.NoArgs,
	RunE:  doHistory,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "delete finished downloads older than --older-than (default history.retention)",
	Args:  cobra.NoArgs,
	RunE:  doPrune,
}

func init() {
	historyCmd.Flags().IntVar(&flagLimit, "limit", 20, "number of rows to show")
	pruneCmd.Flags().StringVar(&flagOlderThan, "older-than", "", "age such as 30d or 12h30m")
	historyCmd.AddCommand(pruneCmd)
}

func doHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := history.Open(ctx, config.History.Backend, config.History.Path)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	entries, err := store.Recent(ctx, flagLimit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATUS\tFORMAT\tTITLE\tURL\tDETAIL")
	for _, e := range entries {
		detail := deref(e.FilePath)
		if e.Status != model.JobStatusSucceeded && e.ErrorMessage != nil {
			detail = *e.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime),
			e.Status,
			e.Format,
			deref(e.Title),
			e.URL,
			detail,
		)
	}
	return w.Flush()
}

func doPrune(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := config.History
	if flagOlderThan != "" {
		cfg.Retention = flagOlderThan
	}

	store, err := history.Open(ctx, cfg.Backend, cfg.Path)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	janitor, err := service.NewJanitor(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer func() {
		_ = janitor.Close()
	}()
	n, err := janitor.Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", n)
	return nil
}
