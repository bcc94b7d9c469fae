package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thinkdifferentdot/maybe/internal/cli"
	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/feedback"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Manage learned merchant patterns",
		Long: `Manage the family's learned patterns. A pattern maps a normalized merchant
name to a category and is applied before any AI call.`,
	}

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsAddCmd())
	cmd.AddCommand(patternsDeleteCmd())
	return cmd
}

func patternsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned patterns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			family, store, cleanup, err := openFamilyStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			patterns, err := store.GetLearnedPatterns(ctx, family)
			if err != nil {
				return fmt.Errorf("failed to get learned patterns: %w", err)
			}
			if len(patterns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No learned patterns yet"))
				return nil
			}

			categories, err := store.GetCategories(ctx, family)
			if err != nil {
				return fmt.Errorf("failed to get categories: %w", err)
			}
			names := make(map[string]string, len(categories))
			for _, c := range categories {
				names[c.ID] = c.Name
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tMERCHANT\tNORMALIZED\tCATEGORY\tCREATED")
			_, _ = fmt.Fprintln(w, "──\t────────\t──────────\t────────\t───────")
			for _, p := range patterns {
				category := names[p.CategoryID]
				if category == "" {
					category = p.CategoryID
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					p.ID,
					truncateString(p.MerchantName, 30),
					truncateString(p.NormalizedMerchant, 30),
					category,
					p.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func patternsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <merchant> <category>",
		Short: "Learn a merchant pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			family, store, cleanup, err := openFamilyStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			category, err := store.GetCategoryByName(ctx, family, args[1])
			if errors.Is(err, common.ErrNotFound) {
				return common.NewUserError(fmt.Sprintf("category %q does not exist", args[1]), err)
			}
			if err != nil {
				return err
			}

			p, created, err := feedback.NewHandler(store, nil).Learn(ctx, family, args[0], category.ID)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("A pattern for %q already exists", p.NormalizedMerchant)))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Learned %q → %s", p.NormalizedMerchant, category.Name)))
			return nil
		},
	}
}

func patternsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <pattern-id>",
		Short: "Delete a learned pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			family, store, cleanup, err := openFamilyStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.DeleteLearnedPattern(ctx, family, args[0]); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError(fmt.Sprintf("pattern %s not found", args[0]), err)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted pattern "+args[0]))
			return nil
		},
	}
}
