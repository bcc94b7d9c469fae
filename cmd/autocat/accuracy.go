package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thinkdifferentdot/maybe/internal/cli"
	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/feedback"
)

func accuracyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accuracy",
		Short: "Show how often AI categories were approved",
		Long: `Report, per category, how many reviewed AI suggestions were approved.
The window is one of 7d, 30d (default) or all.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			windowFlag, _ := cmd.Flags().GetString("window")
			window, err := feedback.ParseWindow(windowFlag)
			if err != nil {
				return common.NewUserError(err.Error(), err)
			}

			family, store, cleanup, err := openFamilyStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			accuracy, err := feedback.NewHandler(store, nil).Accuracy(ctx, family, window)
			if err != nil {
				return err
			}
			if len(accuracy) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No feedback recorded in this window"))
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle(cli.ChartIcon+" AI accuracy ("+string(window)+")"))

			var approved, total int
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "CATEGORY\tAPPROVED\tREVIEWED\tACCURACY")
			_, _ = fmt.Fprintln(w, "────────\t────────\t────────\t────────")
			for _, a := range accuracy {
				approved += a.Approved
				total += a.Total
				_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\n", a.CategoryName, a.Approved, a.Total, a.Rate()*100)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			overall := float64(approved) / float64(total)
			fmt.Fprintln(cmd.OutOrStdout(), "\nOverall: "+cli.FormatPercent(overall))
			return nil
		},
	}

	cmd.Flags().StringP("window", "w", "30d", "Time window: 7d, 30d or all")
	return cmd
}
