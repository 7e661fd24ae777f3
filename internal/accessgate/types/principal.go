package types

import "strings"

// PrincipalKind tags the three fixed kinds of actor. The zero value is the
// gated viewer so an unset kind never bypasses the gate.
type PrincipalKind int

const (
	PrincipalGatedViewer PrincipalKind = iota
	PrincipalOperator
	PrincipalApprover
)

func (k PrincipalKind) String() string {
	switch k {
	case PrincipalGatedViewer:
		return "viewer"
	case PrincipalOperator:
		return "operator"
	case PrincipalApprover:
		return "approver"
	}
	return "invalid"
}

// Gated reports whether access for k depends on an approved request.
// Values outside the enum are gated.
func (k PrincipalKind) Gated() bool {
	switch k {
	case PrincipalOperator, PrincipalApprover:
		return false
	}
	return true
}

// ParsePrincipalKind also accepts the product's role names
// (investor, company, superadmin).
func ParsePrincipalKind(s string) (PrincipalKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "viewer", "gated-viewer", "investor":
		return PrincipalGatedViewer, true
	case "operator", "company":
		return PrincipalOperator, true
	case "approver", "admin", "superadmin":
		return PrincipalApprover, true
	}
	return PrincipalGatedViewer, false
}
