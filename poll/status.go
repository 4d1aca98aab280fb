package poll

import (
	"fmt"
	"strings"
)

// Status represents the health state of an entry, node, group or module.
//
// The numeric order defines rollup severity: Unknown < Good < Warning < Critical.
// [StatusMaintenance] sits outside that order; it suppresses escalation from
// Unknown and Good members but never hides a Warning or Critical one.
type Status int

const (
	// StatusUnknown indicates that no data has been collected yet.
	StatusUnknown Status = iota

	// StatusGood indicates confirmed health.
	StatusGood

	// StatusWarning indicates a degraded but functioning target.
	StatusWarning

	// StatusCritical indicates a failing or unreachable target.
	StatusCritical

	// StatusMaintenance indicates the target is intentionally out of rotation.
	StatusMaintenance
)

var statusNames = [...]string{
	StatusUnknown:     "unknown",
	StatusGood:        "good",
	StatusWarning:     "warning",
	StatusCritical:    "critical",
	StatusMaintenance: "maintenance",
}

// String returns the lower-case name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus converts a status name back into a [Status].
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if strings.EqualFold(s, name) {
			return Status(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", s)
}

// MarshalText implements encoding.TextMarshaler so statuses render as names in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Health pairs a [Status] with the human-readable reason that produced it.
type Health struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// OK reports whether the health is Good or Maintenance.
func (h Health) OK() bool {
	return h.Status == StatusGood || h.Status == StatusMaintenance
}

// Worst returns the aggregate status of a set.
//
// An empty set is Unknown. Otherwise the result is the most severe
// non-maintenance status, unless a Maintenance member is present and nothing
// reached Warning, in which case the result is Maintenance.
func Worst(statuses ...Status) Status {
	if len(statuses) == 0 {
		return StatusUnknown
	}

	worst := StatusUnknown
	maintenance := false
	for _, s := range statuses {
		if s == StatusMaintenance {
			maintenance = true
			continue
		}
		if s > worst {
			worst = s
		}
	}

	if maintenance && worst < StatusWarning {
		return StatusMaintenance
	}
	return worst
}

// Reason returns the reason attached to the first item carrying the worst
// status of the set. When a Warning or Critical member overrides a member in
// maintenance, the maintenance member is noted as well.
func Reason(items []Health) string {
	if len(items) == 0 {
		return ""
	}

	worst := Worst(statuses(items)...)

	var reason string
	found := false
	var maint *Health
	for i := range items {
		if !found && items[i].Status == worst {
			reason = items[i].Reason
			found = true
		}
		if maint == nil && items[i].Status == StatusMaintenance {
			maint = &items[i]
		}
	}

	if maint != nil && worst >= StatusWarning && worst != StatusMaintenance {
		note := maint.Reason
		if note == "" {
			note = "member in maintenance"
		}
		if reason == "" {
			return "maintenance: " + note
		}
		return reason + " (maintenance: " + note + ")"
	}
	return reason
}

// Rollup combines a set of healths into one using [Worst] and [Reason].
func Rollup(items []Health) Health {
	return Health{
		Status: Worst(statuses(items)...),
		Reason: Reason(items),
	}
}

// Counts tallies how many members are in each status, for badge counters.
// It marshals to JSON keyed by status name.
type Counts map[Status]int

// Count tallies a set of healths.
func Count(items []Health) Counts {
	counts := make(Counts, len(statusNames))
	for _, h := range items {
		counts[h.Status]++
	}
	return counts
}

func statuses(items []Health) []Status {
	out := make([]Status, len(items))
	for i, h := range items {
		out[i] = h.Status
	}
	return out
}
