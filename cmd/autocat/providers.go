package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thinkdifferentdot/maybe/internal/cli"
	"github.com/thinkdifferentdot/maybe/internal/llm"
)

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured LLM providers",
		Long: `List the LLM providers that have credentials, preferred provider first.
Credentials come from OPENAI_ACCESS_TOKEN, ANTHROPIC_API_KEY and GEMINI_API_KEY,
or from the llm.<provider>.api_key settings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			registry := llm.NewRegistry(settings)
			defer registry.Close()

			providers := registry.List()
			if len(providers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("No LLM provider configured"))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "PROVIDER\tMODEL\tPREFERRED")
			_, _ = fmt.Fprintln(w, "────────\t─────\t─────────")
			for _, p := range providers {
				preferred := ""
				if p.Name() == settings.LLM.PreferredProvider {
					preferred = cli.SuccessIcon
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name(), p.Model(), preferred)
			}
			return w.Flush()
		},
	}
}
