package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thinkdifferentdot/maybe/internal/cli"
	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/feedback"
)

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Approve or reject AI categorizations",
		Long: `Review categories assigned by the AI.

Approving keeps the category and learns the merchant as a pattern so future
transactions from it skip the AI. Rejecting clears the category and unlocks it
so the next run can try again.`,
	}

	cmd.AddCommand(feedbackApproveCmd())
	cmd.AddCommand(feedbackRejectCmd())
	return cmd
}

func feedbackApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <transaction-id>...",
		Short: "Approve AI categorizations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFeedbackHandler(cmd, func(h *feedback.Handler, family string) error {
				for _, id := range args {
					approval, err := h.Approve(cmd.Context(), family, id)
					if err != nil {
						return feedbackError(id, err)
					}
					msg := fmt.Sprintf("Approved %s", id)
					if approval.PatternCreated {
						msg += fmt.Sprintf(" and learned %q", approval.Pattern.MerchantName)
					}
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(msg))
				}
				return nil
			})
		},
	}
}

func feedbackRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <transaction-id>...",
		Short: "Reject AI categorizations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFeedbackHandler(cmd, func(h *feedback.Handler, family string) error {
				for _, id := range args {
					if err := h.Reject(cmd.Context(), family, id); err != nil {
						return feedbackError(id, err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Rejected "+id))
				}
				return nil
			})
		},
	}
}

func withFeedbackHandler(cmd *cobra.Command, fn func(h *feedback.Handler, family string) error) error {
	family, store, cleanup, err := openFamilyStore(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(feedback.NewHandler(store, nil), family)
}

func feedbackError(id string, err error) error {
	switch {
	case errors.Is(err, feedback.ErrNotAICategorized):
		return common.NewUserError(fmt.Sprintf("transaction %s has no pending AI categorization", id), err)
	case errors.Is(err, common.ErrNotFound):
		return common.NewUserError(fmt.Sprintf("transaction %s not found", id), err)
	default:
		return err
	}
}
