//go:build !unix

package cli

import "context"

// focusSignals has no signal source on this platform.
func focusSignals(context.Context) <-chan struct{} { return nil }
