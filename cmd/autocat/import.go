package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/thinkdifferentdot/maybe/internal/cli"
	"github.com/thinkdifferentdot/maybe/internal/seed"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import families, categories and transactions from YAML",
		Long: `Load seed data from a YAML file. Categories are matched by name and
transactions by id, so importing the same file again is safe.

Example:

  families:
    - id: family-1
      categories:
        - name: Groceries
      transactions:
        - date: 2025-03-14
          description: WHOLEFDS MKT 10234
          merchant: Whole Foods
          amount: 84.12
      patterns:
        - merchant: Whole Foods
          category: Groceries`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open seed file: %w", err)
			}
			defer func() { _ = f.Close() }()

			doc, err := seed.Parse(f)
			if err != nil {
				return err
			}

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, cleanup, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := seed.NewImporter(store, nil).Import(ctx, doc)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderSummary(cli.FormatSuccess("Import complete"), [][2]string{
				{"Families", strconv.Itoa(stats.Families)},
				{"Categories", strconv.Itoa(stats.Categories)},
				{"Transactions", strconv.Itoa(stats.Transactions)},
				{"New patterns", strconv.Itoa(stats.Patterns)},
			}))
			return nil
		},
	}
}
