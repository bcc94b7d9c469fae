package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thinkdifferentdot/maybe/internal/cli"
	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/engine"
	"github.com/thinkdifferentdot/maybe/internal/usage"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize [transaction-id...]",
		Short: "Categorize uncategorized transactions",
		Long: `Assign categories to the family's uncategorized transactions.

Learned patterns are tried first. Transactions without a matching pattern are
sent to the preferred LLM provider. With no arguments every uncategorized,
unlocked transaction of the family is considered.`,
		RunE: runCategorize,
	}

	cmd.Flags().Bool("estimate", false, "Print the estimated AI cost and exit without categorizing")
	return cmd
}

func runCategorize(cmd *cobra.Command, args []string) error {
	family, err := familyID()
	if err != nil {
		return err
	}
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	interrupts := cli.NewInterruptHandler(os.Stderr)
	ctx, cancel := interrupts.HandleInterrupts(cmd.Context(),
		"Categories written so far are kept. Run autocat categorize again to continue.")
	defer cancel()

	store, cleanup, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := newRegistry(settings, store)
	defer registry.Close()

	if estimate, _ := cmd.Flags().GetBool("estimate"); estimate {
		provider, err := registry.Preferred()
		if err != nil {
			return common.NewUserError("no LLM provider configured", err)
		}
		txns, err := store.GetTransactionsToCategorize(ctx, family, args)
		if err != nil {
			return err
		}
		categories, err := store.GetCategories(ctx, family)
		if err != nil {
			return err
		}

		cost := "unknown (model not priced)"
		if c := usage.EstimateAutoCategorizeCost(provider.Model(), len(txns), len(categories)); c != nil {
			cost = "$" + c.StringFixed(4)
		}
		fmt.Fprintln(cmd.OutOrStdout(), cli.RenderSummary("Estimate", [][2]string{
			{"Provider", provider.Name() + " / " + provider.Model()},
			{"Transactions", strconv.Itoa(len(txns))},
			{"Categories", strconv.Itoa(len(categories))},
			{"Upper bound", cost},
		}))
		return nil
	}

	progress := cli.NewProgress(os.Stderr, "Categorizing transactions...")
	categorizer := engine.New(store, registry, engine.Config{
		Settings: settings.Categorization,
		Progress: progress.Update,
	})

	result, runErr := categorizer.Run(ctx, family, args)

	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderSummary(cli.RobotIcon+" Categorization", [][2]string{
		{"Candidates", strconv.Itoa(result.Candidates)},
		{"From patterns", strconv.Itoa(result.PatternMatched)},
		{"From AI", strconv.Itoa(result.AIMatched)},
		{"Left open", strconv.Itoa(result.Unmatched)},
	}))

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, common.ErrNoProvider):
		return common.NewUserError("pattern matching done, but no LLM provider is configured for the rest", runErr)
	case interrupts.WasInterrupted():
		return nil
	default:
		return runErr
	}
}
