package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/investable/accessgate/internal/gate"
	"github.com/investable/accessgate/internal/scheduler"
)

var viewWatch bool

func init() {
	rootCmd.AddCommand(viewCmd)
	viewCmd.Flags().BoolVar(&viewWatch, "watch", false, "Keep revalidating until the status is final (SIGUSR1 forces a refresh)")
}

var viewCmd = &cobra.Command{
	Use:   "view <resourceId>",
	Short: "Show what the acting identity may see of a resource",
	Long:  "Mounts a view of the resource and prints each gate decision. A fresh cached status is shown without contacting the ledger.",
	Args:  cobra.ExactArgs(1),
	RunE:  runView,
}

func runView(cmd *cobra.Command, args []string) error {
	resourceID := args[0]
	requester, err := identity()
	if err != nil {
		return err
	}
	kind, err := principalKind()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	done := make(chan struct{})
	defer close(done)
	updates := make(chan scheduler.Resolution, 16)

	v := env.scheduler().Mount(ctx, scheduler.Target{
		RequesterID: requester,
		ResourceID:  resourceID,
		Kind:        kind,
	}, func(r scheduler.Resolution) {
		select {
		case updates <- r:
		case <-done:
		}
	})
	defer v.Close()

	if viewWatch {
		v.ListenFocus(focusSignals(ctx))
	}

	out := cmd.OutOrStdout()
	pol := policy()
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-updates:
			d := gate.Evaluate(kind, r.Status, r.Resolved, pol)
			if r.Err != nil {
				fmt.Fprintf(out, "%s (ledger unavailable: %v)\n", describe(resourceID, d), r.Err)
				if !viewWatch {
					return fmt.Errorf("status unresolved: %w", r.Err)
				}
				continue
			}
			fmt.Fprintln(out, describe(resourceID, d))

			if !r.Resolved {
				continue
			}
			if !viewWatch || r.Source == scheduler.SourceBypass || r.Status.Terminal() {
				return nil
			}
		}
	}
}
