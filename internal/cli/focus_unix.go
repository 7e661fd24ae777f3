//go:build unix

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// focusSignals turns SIGUSR1 into focus events until ctx ends.
func focusSignals(ctx context.Context) <-chan struct{} {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)

	out := make(chan struct{}, 1)
	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
