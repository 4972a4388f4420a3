package memoryengine

import (
	"context"
	"sync"
	"time"

	"github.com/freightdesk/shipledger/ledger"
)

// Ledger is an in-memory version ledger. The zero value is not usable;
// construct it with NewLedger.
type Ledger struct {
	mu        sync.Mutex // guards entities
	entities  map[string]*entityHistory
	validator ledger.SnapshotValidator
}

type entityHistory struct {
	mu      sync.Mutex // serializes appenders on this entity
	records []ledger.VersionRecord
}

// Option defines a functional option for configuring the Ledger.
type Option func(*Ledger)

// WithSnapshotValidator sets the business-rule validator consulted in
// collect-all mode on every Append.
func WithSnapshotValidator(validator ledger.SnapshotValidator) Option {
	return func(l *Ledger) {
		l.validator = validator
	}
}

// NewLedger creates a new in-memory ledger.
func NewLedger(options ...Option) *Ledger {
	l := &Ledger{
		entities: make(map[string]*entityHistory),
	}

	for _, option := range options {
		option(l)
	}

	return l
}

// Append assigns the next version number for the entity and appends the
// snapshot plus event metadata, returning the assigned version number.
// Writers to the same entity are serialized; writers to different
// entities never contend.
func (l *Ledger) Append(ctx context.Context, event ledger.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	violations := event.Violations()
	if l.validator != nil && len(event.Snapshot) > 0 {
		violations = append(violations, l.validator.Validate(event.Snapshot)...)
	}
	if len(violations) > 0 {
		return 0, ledger.NewValidationError(violations...)
	}

	recordedAt := event.OccurredAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	history := l.historyFor(event.EntityID)

	history.mu.Lock()
	defer history.mu.Unlock()

	versionNo := len(history.records) + 1

	history.records = append(history.records, ledger.VersionRecord{
		EntityID:   event.EntityID,
		VersionNo:  versionNo,
		EventType:  event.EventType,
		ActorID:    event.ActorID,
		ActorName:  event.ActorName,
		Reason:     event.Reason,
		Snapshot:   event.Snapshot.Clone(),
		Metadata:   event.Metadata.Clone(),
		RecordedAt: recordedAt,
	})

	return versionNo, nil
}

// GetVersion retrieves one immutable version record, or
// ledger.ErrNotFound when the entity has no such version.
func (l *Ledger) GetVersion(ctx context.Context, entityID string, versionNo int) (ledger.VersionRecord, error) {
	if err := ctx.Err(); err != nil {
		return ledger.VersionRecord{}, err
	}

	history := l.historyFor(entityID)

	history.mu.Lock()
	defer history.mu.Unlock()

	if versionNo < 1 || versionNo > len(history.records) {
		return ledger.VersionRecord{}, ledger.ErrNotFound
	}

	return cloneRecord(history.records[versionNo-1]), nil
}

// LatestVersionNo returns the highest version number assigned to the
// entity so far, or 0 if the entity has no versions yet.
func (l *Ledger) LatestVersionNo(ctx context.Context, entityID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	history := l.historyFor(entityID)

	history.mu.Lock()
	defer history.mu.Unlock()

	return len(history.records), nil
}

// Versions returns a window of the entity's version records ordered by
// version number descending (newest first).
func (l *Ledger) Versions(ctx context.Context, entityID string, limit, offset int) ([]ledger.VersionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = ledger.DefaultFilterLimit
	}
	if offset < 0 {
		offset = 0
	}

	history := l.historyFor(entityID)

	history.mu.Lock()
	defer history.mu.Unlock()

	records := make([]ledger.VersionRecord, 0, limit)

	for i := len(history.records) - 1 - offset; i >= 0 && len(records) < limit; i-- {
		records = append(records, cloneRecord(history.records[i]))
	}

	return records, nil
}

// FilteredVersions returns the entity's version records matching every
// set predicate of the filter, newest first. The ChangedField predicate
// is intentionally not applied here; see ledger.HistoryFilter.
func (l *Ledger) FilteredVersions(ctx context.Context, entityID string, filter ledger.HistoryFilter) ([]ledger.VersionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if violations := filter.Violations(); len(violations) > 0 {
		return nil, ledger.NewValidationError(violations...)
	}

	history := l.historyFor(entityID)

	history.mu.Lock()
	defer history.mu.Unlock()

	limit := filter.EffectiveLimit()
	records := make([]ledger.VersionRecord, 0)

	for i := len(history.records) - 1; i >= 0 && len(records) < limit; i-- {
		record := history.records[i]

		if filter.ActorID != "" && record.ActorID != filter.ActorID {
			continue
		}
		if filter.EventType != "" && record.EventType != filter.EventType {
			continue
		}
		if !filter.OccurredFrom.IsZero() && record.RecordedAt.Before(filter.OccurredFrom) {
			continue
		}
		if !filter.OccurredUntil.IsZero() && record.RecordedAt.After(filter.OccurredUntil) {
			continue
		}

		records = append(records, cloneRecord(record))
	}

	return records, nil
}

func (l *Ledger) historyFor(entityID string) *entityHistory {
	l.mu.Lock()
	defer l.mu.Unlock()

	history, ok := l.entities[entityID]
	if !ok {
		history = &entityHistory{}
		l.entities[entityID] = history
	}

	return history
}

// cloneRecord copies a record deeply, so stored history cannot be
// mutated through a snapshot handed out to a caller.
func cloneRecord(record ledger.VersionRecord) ledger.VersionRecord {
	record.Snapshot = record.Snapshot.Clone()
	record.Metadata = record.Metadata.Clone()

	return record
}
