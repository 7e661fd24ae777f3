package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/types"
)

func init() {
	rootCmd.AddCommand(approvedCmd)
}

var approvedCmd = &cobra.Command{
	Use:   "approved",
	Short: "List resources the acting identity may view",
	RunE:  runApproved,
}

func runApproved(cmd *cobra.Command, args []string) error {
	requester, err := identity()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	env, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	recs, err := env.ledger.ListByRequester(ctx, requester)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ids := types.ApprovedResourceIDs(recs)
	if len(ids) == 0 {
		fmt.Fprintln(out, "No approved resources.")
		return nil
	}
	for _, id := range ids {
		if err := env.cache.Put(ctx, requester, id, types.StatusApproved); err != nil {
			env.logger.Warn("status cache write failed", zap.Error(err))
		}
		fmt.Fprintln(out, id)
	}
	return nil
}
