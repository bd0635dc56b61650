package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/space-downloader/spacedl/internal/deps"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "check that yt-dlp and ffmpeg can be found and run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		checks, err := deps.Resolver{}.CheckAll(cmd.Context(), config.Advanced)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BINARY\tAVAILABLE\tVERSION\tPATH")
		missing := 0
		for _, c := range checks {
			version := c.Version
			if !c.Available {
				missing++
				version = c.Error
			}
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", c.Binary, c.Available, version, c.Path)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if missing > 0 {
			return fmt.Errorf("%w: %d of %d binaries unavailable", deps.ErrNotFound, missing, len(checks))
		}
		return nil
	},
}
