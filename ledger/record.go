package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Event is the write-side DTO handed to an engine's Append. It carries
// the complete snapshot of the entity after the change plus the event
// metadata describing who changed what and why.
//
// Construct it with BuildEvent; the engines validate it on Append and
// reject it with a ValidationError listing every broken rule.
type Event struct {
	EntityID   string
	EventType  EventType
	ActorID    string
	ActorName  string
	Reason     string
	Snapshot   Snapshot
	Metadata   Metadata
	OccurredAt time.Time
}

// EventOption configures optional fields of an Event.
type EventOption func(*Event)

// WithReason attaches a human-readable reason for the change.
func WithReason(reason string) EventOption {
	return func(e *Event) {
		e.Reason = reason
	}
}

// WithMetadata attaches additional context to the event.
func WithMetadata(metadata Metadata) EventOption {
	return func(e *Event) {
		e.Metadata = metadata
	}
}

// WithOccurredAt overrides the event timestamp, mainly for tests that
// need a deterministic clock.
func WithOccurredAt(occurredAt time.Time) EventOption {
	return func(e *Event) {
		e.OccurredAt = occurredAt
	}
}

// BuildEvent is the factory method for Event. The timestamp defaults to
// the current time in UTC.
func BuildEvent(
	entityID string,
	eventType EventType,
	actorID string,
	actorName string,
	snapshot Snapshot,
	options ...EventOption,
) Event {

	event := Event{
		EntityID:   entityID,
		EventType:  eventType,
		ActorID:    actorID,
		ActorName:  actorName,
		Snapshot:   snapshot,
		OccurredAt: time.Now().UTC(),
	}

	for _, option := range options {
		option(&event)
	}

	return event
}

// Violations checks the structural preconditions for appending the event:
// non-empty entity and actor identifiers, an event type from the closed
// set, and a snapshot carrying the required keys. Business-rule checks on
// the snapshot fields are the job of a SnapshotValidator.
func (e Event) Violations() []Violation {
	var violations []Violation

	if e.EntityID == "" {
		violations = append(violations, Violation{
			Field:   "entity_id",
			Rule:    "required",
			Message: "entity_id is required",
		})
	}

	if !e.EventType.IsValid() {
		violations = append(violations, Violation{
			Field:   "event_type",
			Rule:    "enum",
			Message: fmt.Sprintf("invalid event_type %q, must be one of: %s", e.EventType, allEventTypesJoined()),
		})
	}

	if e.ActorID == "" {
		violations = append(violations, Violation{
			Field:   "actor_id",
			Rule:    "required",
			Message: "actor_id is required",
		})
	}

	if strings.TrimSpace(e.ActorName) == "" {
		violations = append(violations, Violation{
			Field:   "actor_name",
			Rule:    "required",
			Message: "actor_name is required and cannot be empty",
		})
	}

	if len(e.Snapshot) == 0 {
		violations = append(violations, Violation{
			Field:   "snapshot",
			Rule:    "required",
			Message: "snapshot is required and cannot be empty",
		})

		return violations
	}

	if missing := e.Snapshot.MissingRequiredKeys(); len(missing) > 0 {
		violations = append(violations, Violation{
			Field:   "snapshot",
			Rule:    "required_keys",
			Message: fmt.Sprintf("snapshot missing required fields: %s", strings.Join(missing, ", ")),
		})
	}

	return violations
}

// SnapshotValidator checks the business-rule validity of a snapshot
// before a write is accepted. Implementations must be pure; they are
// consulted by the engines on every Append.
type SnapshotValidator interface {
	Validate(snapshot Snapshot) []Violation
}

// VersionRecord is one immutable entry of an entity's version history.
// Once written it is never updated or deleted.
type VersionRecord struct {
	EntityID   string        `json:"entity_id"`
	VersionNo  int           `json:"version_no"`
	EventType  EventType     `json:"event_type"`
	ActorID    string        `json:"actor_id"`
	ActorName  string        `json:"actor_name"`
	Reason     string        `json:"reason,omitempty"`
	Snapshot   Snapshot      `json:"snapshot"`
	Metadata   Metadata      `json:"metadata,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}
