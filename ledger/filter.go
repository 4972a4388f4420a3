package ledger

import (
	"fmt"
	"time"
)

// DefaultFilterLimit bounds a filtered history read when the caller does
// not specify a limit.
const DefaultFilterLimit = 50

// HistoryFilter narrows a filtered history read. All set predicates are
// combined with AND; zero values mean "no restriction".
//
// ChangedField is not applied by the engines: matching on it requires a
// diff of every candidate against its predecessor, which is the job of
// the read-side history service.
type HistoryFilter struct {
	ActorID       string
	EventType     EventType
	OccurredFrom  time.Time
	OccurredUntil time.Time
	ChangedField  string
	Limit         int
}

// Violations validates the filter input.
func (f HistoryFilter) Violations() []Violation {
	var violations []Violation

	if f.EventType != "" && !f.EventType.IsValid() {
		violations = append(violations, Violation{
			Field:   "event_type",
			Rule:    "enum",
			Message: fmt.Sprintf("invalid event_type %q, must be one of: %s", f.EventType, allEventTypesJoined()),
		})
	}

	if f.Limit < 0 {
		violations = append(violations, Violation{
			Field:   "limit",
			Rule:    "range",
			Message: "limit must not be negative",
		})
	}

	if !f.OccurredFrom.IsZero() && !f.OccurredUntil.IsZero() && f.OccurredUntil.Before(f.OccurredFrom) {
		violations = append(violations, Violation{
			Field:   "occurred_until",
			Rule:    "range",
			Message: "occurred_until must not be before occurred_from",
		})
	}

	return violations
}

// EffectiveLimit returns the limit to apply, falling back to
// DefaultFilterLimit when unset.
func (f HistoryFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultFilterLimit
	}

	return f.Limit
}
