package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/thinkdifferentdot/maybe/internal/cli"
	"github.com/thinkdifferentdot/maybe/internal/usage"
)

func usageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show LLM usage and estimated cost",
		Long: `Summarize the family's LLM calls per provider and model: number of calls,
failures, tokens and estimated cost in USD.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			family, store, cleanup, err := openFamilyStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var since *time.Time
			if days, _ := cmd.Flags().GetInt("days"); days > 0 {
				t := time.Now().UTC().AddDate(0, 0, -days)
				since = &t
			}

			summaries, err := usage.NewLedger(store, nil).Summary(ctx, family, since)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No LLM usage recorded"))
				return nil
			}

			total := decimal.Zero
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PROVIDER\tMODEL\tCALLS\tFAILURES\tPROMPT\tCOMPLETION\tTOTAL\tCOST (USD)")
			_, _ = fmt.Fprintln(w, "────────\t─────\t─────\t────────\t──────\t──────────\t─────\t──────────")
			for _, s := range summaries {
				total = total.Add(s.TotalCost)
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					s.Provider, s.Model, s.Calls, s.Failures,
					s.PromptTokens, s.CompletionTokens, s.TotalTokens,
					s.TotalCost.StringFixed(4))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "\n"+cli.FormatInfo("Total estimated cost: $"+total.StringFixed(4)))
			return nil
		},
	}

	cmd.Flags().Int("days", 0, "Only include the last N days (0 for all time)")
	return cmd
}
