package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/investable/accessgate/internal/gate"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <resourceId>",
	Short: "Fetch the ledger status for a resource once",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	resourceID := args[0]
	requester, err := identity()
	if err != nil {
		return err
	}
	kind, err := principalKind()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	env, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	status, err := env.scheduler().Fetch(ctx, requester, resourceID)
	if err != nil {
		return fmt.Errorf("status unresolved: %w", err)
	}
	if err := env.cache.Put(ctx, requester, resourceID, status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s %s\n", requester, resourceID, status)
	fmt.Fprintln(out, describe(resourceID, gate.Evaluate(kind, status, true, policy())))
	return nil
}
