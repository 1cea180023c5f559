package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunDueCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run-due",
		Short: "Run every source that is due, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			summary, err := a.scheduler.RunDue(cmd.Context(), force)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), summary.String())
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d tasks failed", summary.Failed, summary.Due-summary.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "ignore intervals and run every runnable source")

	return cmd
}
