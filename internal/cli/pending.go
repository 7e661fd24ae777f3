package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/investable/accessgate/internal/accessgate/types"
)

var pendingAll bool

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().BoolVar(&pendingAll, "all", false, "Include decided requests")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending access requests (approvers only)",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	list, err := env.ledger.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list requests: %w", err)
	}

	out := cmd.OutOrStdout()
	shown := 0
	for _, r := range list {
		if !pendingAll && r.Status != types.StatusPending {
			continue
		}
		if shown == 0 {
			fmt.Fprintf(out, "%-36s %-9s %-24s %-28s %s\n", "ID", "STATUS", "RESOURCE", "REQUESTER", "CREATED")
		}
		shown++
		fmt.Fprintf(out, "%-36s %-9s %-24s %-28s %s\n",
			r.ID,
			r.Status,
			truncate(r.ResourceName+" ("+r.ResourceID+")", 24),
			truncate(r.RequesterID, 28),
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	if shown == 0 {
		fmt.Fprintln(out, "No pending requests.")
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
