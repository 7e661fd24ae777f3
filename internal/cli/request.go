package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/types"
	"github.com/investable/accessgate/internal/gate"
	"github.com/investable/accessgate/internal/scheduler"
)

var requestResourceName string

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.Flags().StringVar(&requestResourceName, "resource-name", "", "Display name of the resource (required)")
	_ = requestCmd.MarkFlagRequired("resource-name")
}

var requestCmd = &cobra.Command{
	Use:   "request <resourceId>",
	Short: "Ask for access to a resource",
	Long:  "Resolves the current status first and files a request only when the gate offers one. The local cache shows the request as pending immediately.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequest,
}

func runRequest(cmd *cobra.Command, args []string) error {
	resourceID := args[0]
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

	// Resolve through the cache so a stale local view cannot file a
	// duplicate request.
	sched := env.scheduler()
	status, err := currentStatus(cmd, env, sched, requester, resourceID)
	if err != nil {
		return err
	}

	pol := policy()
	out := cmd.OutOrStdout()
	if d := gate.Evaluate(types.PrincipalGatedViewer, status, true, pol); !d.CanSubmit {
		fmt.Fprintln(out, describe(resourceID, d))
		return fmt.Errorf("%w: status is %s", gate.ErrSubmissionNotAllowed, status)
	}

	sub := gate.NewSubmitter(env.cache, env.ledger, sched, pol, env.logger)
	rec, err := sub.Submit(ctx, types.CreateAccessRequest{
		ResourceID:    resourceID,
		ResourceName:  requestResourceName,
		RequesterID:   requester,
		RequesterName: displayName(),
	})
	if err != nil {
		if errors.Is(err, gate.ErrSubmissionFailed) {
			d := gate.Evaluate(types.PrincipalGatedViewer, types.StatusUnknown, true, pol)
			fmt.Fprintln(out, describe(resourceID, d))
		}
		return err
	}

	fmt.Fprintf(out, "Requested access to %s (%s), request id %s\n", rec.ResourceID, rec.ResourceName, rec.ID)
	fmt.Fprintln(out, describe(resourceID, gate.Evaluate(types.PrincipalGatedViewer, rec.Status, true, pol)))
	return nil
}

// currentStatus returns the fresh cached status, or fetches and caches it.
func currentStatus(cmd *cobra.Command, env *clientEnv, sched *scheduler.Scheduler, requester, resourceID string) (types.Status, error) {
	ctx := cmd.Context()
	if e, ok := env.cache.Get(ctx, requester, resourceID); ok {
		return e.Status, nil
	}
	status, err := sched.Fetch(ctx, requester, resourceID)
	if err != nil {
		return "", fmt.Errorf("status unresolved: %w", err)
	}
	if err := env.cache.Put(ctx, requester, resourceID, status); err != nil {
		env.logger.Warn("status cache write failed", zap.Error(err))
	}
	return status, nil
}
