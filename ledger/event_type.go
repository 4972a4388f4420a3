package ledger

import (
	"sort"
	"strings"
)

// EventType identifies what kind of change produced a version.
type EventType string

const (
	EventTypeCreated       EventType = "created"
	EventTypeUpdated       EventType = "updated"
	EventTypeStatusChanged EventType = "status_changed"
	EventTypeRestored      EventType = "restored"
	EventTypeFileAdded     EventType = "file_added"
	EventTypeFileRemoved   EventType = "file_removed"
	EventTypeDeleted       EventType = "deleted"
	EventTypeArchived      EventType = "archived"
)

var validEventTypes = map[EventType]struct{}{
	EventTypeCreated:       {},
	EventTypeUpdated:       {},
	EventTypeStatusChanged: {},
	EventTypeRestored:      {},
	EventTypeFileAdded:     {},
	EventTypeFileRemoved:   {},
	EventTypeDeleted:       {},
	EventTypeArchived:      {},
}

// IsValid reports whether the event type belongs to the closed set of
// supported event types.
func (t EventType) IsValid() bool {
	_, ok := validEventTypes[t]
	return ok
}

func (t EventType) String() string {
	return string(t)
}

// AllEventTypes returns the closed set of supported event types in
// alphabetical order, mainly for error messages.
func AllEventTypes() []EventType {
	all := make([]EventType, 0, len(validEventTypes))
	for t := range validEventTypes {
		all = append(all, t)
	}

	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	return all
}

func allEventTypesJoined() string {
	all := AllEventTypes()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = string(t)
	}

	return strings.Join(names, ", ")
}
