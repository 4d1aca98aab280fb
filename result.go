package statusboard

import (
	"time"

	"github.com/jpalmerr/statusboard/poll"
)

// StatusResult describes one completed node refresh, as passed to callbacks
// registered with [WithStatusCallback].
type StatusResult struct {
	// Type and Key identify the node.
	Type string
	Key  string

	// Name is the node's display name.
	Name string

	// Group is the node's group, if it has one.
	Group string

	// Status is the node's health after the refresh.
	Status poll.Status

	// Previous is the status before the refresh; Unknown for the first one.
	Previous poll.Status

	// Reason explains a non-good status.
	Reason string

	// Labels are the node's labels, if it has any. Each callback receives
	// its own copy.
	Labels map[string]string

	// CheckedAt is when the refresh completed.
	CheckedAt time.Time

	// OnDemand is set for refreshes triggered through [Service.PollNow] or
	// the poll API.
	OnDemand bool

	// CorrelationID is set for on-demand refreshes.
	CorrelationID string
}

// Changed reports whether the refresh moved the node to a new status.
func (r StatusResult) Changed() bool {
	return r.Status != r.Previous
}
