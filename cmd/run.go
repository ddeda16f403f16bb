package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/venuewatch/refresh-cli/internal/pipeline"
)

var runDry bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one refresh pass over the venue registry",
	Long:  "Rotates snapshots, fetches every registered venue, detects content changes, and extracts facts for the changed venues. With --dry-run it stops after change detection.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, venues, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("registry loaded", zap.Int("venues", len(venues)))

		report, runErr := p.Run(ctx, venues, runDry)

		// The summary is printed even when the run aborted partway.
		if report != nil {
			fmt.Fprintln(os.Stdout, pipeline.FormatReport(report))
		}
		if runErr != nil {
			return eris.Wrap(runErr, "refresh run")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "stop after change detection; no LLM calls, no results written")
	rootCmd.AddCommand(runCmd)
}
