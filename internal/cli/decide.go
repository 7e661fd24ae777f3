package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/investable/accessgate/internal/accessgate/lifecycle"
	"github.com/investable/accessgate/internal/accessgate/types"
)

func init() {
	rootCmd.AddCommand(approveCmd, denyCmd)
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending access request (approvers only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecide(cmd, args[0], types.StatusApproved)
	},
}

var denyCmd = &cobra.Command{
	Use:   "deny <id>",
	Short: "Deny a pending access request (approvers only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecide(cmd, args[0], types.StatusDenied)
	},
}

func runDecide(cmd *cobra.Command, id string, status types.Status) error {
	ctx := cmd.Context()
	env, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	rec, err := env.ledger.UpdateStatus(ctx, id, status)
	if errors.Is(err, lifecycle.ErrInvalidTransition) {
		return fmt.Errorf("request %s is no longer pending", id)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Request %s (%s for %s) is now %s\n", rec.ID, rec.RequesterID, rec.ResourceID, rec.Status)
	return nil
}
