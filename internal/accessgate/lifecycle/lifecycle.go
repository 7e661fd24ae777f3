// Package lifecycle owns the legal status transitions of an access request.
//
// A request starts pending. An approver moves it to approved or denied, and
// both are terminal: nothing re-opens a request and access never lapses.
// Stores do not enforce this themselves, so every status change goes
// through Transition first.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/investable/accessgate/internal/accessgate/types"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("status must be approved or denied")
)

// Initial is the status assigned to every new request.
func Initial() types.Status { return types.StatusPending }

// Transition validates an approver action moving a request from its current
// status to target.
func Transition(current, target types.Status) error {
	if target != types.StatusApproved && target != types.StatusDenied {
		return fmt.Errorf("%w: got %q", ErrInvalidStatus, target)
	}
	if current != types.StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
	}
	return nil
}
