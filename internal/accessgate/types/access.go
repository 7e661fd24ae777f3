package types

import (
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of an access request. StatusUnknown never
// appears on a ledger record; clients use it for "no request seen".
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusUnknown  Status = "unknown"
)

// ParseStatus accepts the three ledger statuses plus "unknown".
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved:
		return StatusApproved, true
	case StatusDenied:
		return StatusDenied, true
	case StatusUnknown:
		return StatusUnknown, true
	}
	return "", false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Recorded reports whether s may be stored on a ledger record.
func (s Status) Recorded() bool {
	return s == StatusPending || s == StatusApproved || s == StatusDenied
}

// AccessRequest is one requester's ask to view one resource's protected data.
// ResourceName is a snapshot taken at request time.
type AccessRequest struct {
	ID            string    `json:"id"`
	ResourceID    string    `json:"resourceId"`
	ResourceName  string    `json:"resourceName"`
	RequesterID   string    `json:"requesterId"`
	RequesterName string    `json:"requesterName"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

type CreateAccessRequest struct {
	ResourceID    string `json:"resourceId"`
	ResourceName  string `json:"resourceName"`
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status"`
}

type ClearResponse struct {
	Deleted int64 `json:"deleted"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NormalizeIdentity folds an email-shaped identity to its canonical key form.
func NormalizeIdentity(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// LatestFor returns the newest request for resourceID. A re-request after
// denial produces several records per pair; only the newest one counts.
func LatestFor(reqs []AccessRequest, resourceID string) (AccessRequest, bool) {
	var (
		latest AccessRequest
		found  bool
	)
	for _, r := range reqs {
		if r.ResourceID != resourceID {
			continue
		}
		if !found || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
			found = true
		}
	}
	return latest, found
}

// ApprovedResourceIDs lists resources whose newest request is approved,
// sorted for stable output.
func ApprovedResourceIDs(reqs []AccessRequest) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range reqs {
		if _, ok := seen[r.ResourceID]; ok {
			continue
		}
		seen[r.ResourceID] = struct{}{}
		if latest, ok := LatestFor(reqs, r.ResourceID); ok && latest.Status == StatusApproved {
			out = append(out, r.ResourceID)
		}
	}
	sort.Strings(out)
	return out
}
