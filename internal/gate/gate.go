// Package gate decides, per render, what a principal may see of a
// protected resource and whether it may ask for access.
package gate

import (
	"github.com/investable/accessgate/internal/accessgate/types"
)

type Mode int

const (
	// ModeLoading shows neither content nor a request prompt.
	ModeLoading Mode = iota
	ModeFull
	ModeRedacted
)

func (m Mode) String() string {
	switch m {
	case ModeLoading:
		return "loading"
	case ModeFull:
		return "full"
	case ModeRedacted:
		return "redacted"
	}
	return "invalid"
}

type Indicator int

const (
	IndicatorNone Indicator = iota
	IndicatorPending
	IndicatorDenied
	IndicatorRequestable
)

func (i Indicator) String() string {
	switch i {
	case IndicatorNone:
		return "none"
	case IndicatorPending:
		return "pending"
	case IndicatorDenied:
		return "denied"
	case IndicatorRequestable:
		return "requestable"
	}
	return "invalid"
}

type Decision struct {
	Mode      Mode
	Indicator Indicator
	CanSubmit bool
}

// ShowsContent reports whether protected data may be rendered.
func (d Decision) ShowsContent() bool { return d.Mode == ModeFull }

type Policy struct {
	AllowRerequestAfterDenial bool
}

var (
	loading  = Decision{Mode: ModeLoading}
	full     = Decision{Mode: ModeFull}
	redacted = Decision{Mode: ModeRedacted}
)

// Evaluate maps a principal and its resolved status to a decision. It has
// no side effects. Anything it does not recognise renders redacted with no
// way to submit.
func Evaluate(kind types.PrincipalKind, status types.Status, resolved bool, policy Policy) Decision {
	switch kind {
	case types.PrincipalOperator, types.PrincipalApprover:
		return full
	case types.PrincipalGatedViewer:
	default:
		return redacted
	}

	if !resolved {
		return loading
	}

	switch status {
	case types.StatusApproved:
		return full
	case types.StatusPending:
		return Decision{Mode: ModeRedacted, Indicator: IndicatorPending}
	case types.StatusDenied:
		return Decision{Mode: ModeRedacted, Indicator: IndicatorDenied, CanSubmit: policy.AllowRerequestAfterDenial}
	case types.StatusUnknown:
		return Decision{Mode: ModeRedacted, Indicator: IndicatorRequestable, CanSubmit: true}
	}
	return redacted
}
