package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Force-release the pipeline lock",
	Long:  "Removes the pipeline lock file. Only needed when a run died without cleanup and the staleness window has not elapsed yet.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := newLock().Release(cfg.Pipeline.Name); err != nil {
			return eris.Wrap(err, "release lock")
		}
		fmt.Fprintf(os.Stdout, "Lock released for pipeline %q.\n", cfg.Pipeline.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}
