package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/freightdesk/shipledger/ledger"
)

// Ledger is the read surface of a version ledger the service needs.
// Both engines satisfy it.
type Ledger interface {
	GetVersion(ctx context.Context, entityID string, versionNo int) (ledger.VersionRecord, error)
	Versions(ctx context.Context, entityID string, limit, offset int) ([]ledger.VersionRecord, error)
	FilteredVersions(ctx context.Context, entityID string, filter ledger.HistoryFilter) ([]ledger.VersionRecord, error)
}

// Entry is one version of an entity together with the changes that
// version introduced. Changes is nil for version 1 and for records whose
// predecessor could not be loaded under the SkipRecord policy.
type Entry struct {
	ledger.VersionRecord
	Changes ledger.FieldChanges `json:"changes,omitempty"`
}

// DiffErrorPolicy decides what happens when the predecessor of a record
// cannot be loaded while computing its changes.
type DiffErrorPolicy int

const (
	// SkipRecord leaves the entry's Changes nil and carries on.
	SkipRecord DiffErrorPolicy = iota
	// Abort fails the whole read.
	Abort
)

// Service answers history queries over a version ledger.
type Service struct {
	ledger Ledger
	policy DiffErrorPolicy
}

// Option defines a functional option for configuring the Service.
type Option func(*Service)

// WithDiffErrorPolicy overrides the default SkipRecord policy.
func WithDiffErrorPolicy(policy DiffErrorPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// NewService creates a history service reading from the given ledger.
func NewService(l Ledger, options ...Option) *Service {
	s := &Service{ledger: l, policy: SkipRecord}

	for _, option := range options {
		option(s)
	}

	return s
}

// History returns a page of the entity's versions, newest first, each
// enriched with the field changes against its predecessor.
//
// It over-fetches one record past the page so the oldest entry of the
// page can be diffed without a second round trip; only when the page
// ends exactly at version 1 is there no predecessor to fetch.
func (s *Service) History(ctx context.Context, entityID string, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = ledger.DefaultFilterLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.ledger.Versions(ctx, entityID, limit+1, offset)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return []Entry{}, nil
	}

	page := records
	if len(page) > limit {
		page = page[:limit]
	}

	entries := make([]Entry, 0, len(page))

	for i, record := range page {
		entry := Entry{VersionRecord: record}

		if record.VersionNo > 1 {
			predecessor, ok, predErr := s.predecessorOf(ctx, records, i, record)
			if predErr != nil {
				return nil, predErr
			}
			if ok {
				entry.Changes = ledger.Diff(predecessor.Snapshot, record.Snapshot)
			}
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// Filter returns the entity's versions matching the filter, newest
// first, enriched with field changes. When ChangedField is set, only
// versions that changed that field survive; version 1 matches iff the
// field is present in its snapshot.
func (s *Service) Filter(ctx context.Context, entityID string, filter ledger.HistoryFilter) ([]Entry, error) {
	records, err := s.ledger.FilteredVersions(ctx, entityID, filter)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(records))

	for _, record := range records {
		entry := Entry{VersionRecord: record}
		diffed := false

		if record.VersionNo > 1 {
			predecessor, getErr := s.ledger.GetVersion(ctx, entityID, record.VersionNo-1)
			switch {
			case getErr == nil:
				entry.Changes = ledger.Diff(predecessor.Snapshot, record.Snapshot)
				diffed = true
			case s.policy == Abort:
				return nil, fmt.Errorf("loading predecessor of version %d: %w", record.VersionNo, getErr)
			}
		}

		if filter.ChangedField != "" && !matchesChangedField(filter.ChangedField, record, entry.Changes, diffed) {
			continue
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// predecessorOf resolves the record preceding page index i, preferring
// the already-fetched neighbor over a ledger round trip.
func (s *Service) predecessorOf(ctx context.Context, records []ledger.VersionRecord, i int, record ledger.VersionRecord) (ledger.VersionRecord, bool, error) {
	if i+1 < len(records) && records[i+1].VersionNo == record.VersionNo-1 {
		return records[i+1], true, nil
	}

	predecessor, err := s.ledger.GetVersion(ctx, record.EntityID, record.VersionNo-1)
	if err != nil {
		if s.policy == Abort {
			return ledger.VersionRecord{}, false, fmt.Errorf("loading predecessor of version %d: %w", record.VersionNo, err)
		}

		return ledger.VersionRecord{}, false, nil
	}

	return predecessor, true, nil
}

func matchesChangedField(field string, record ledger.VersionRecord, changes ledger.FieldChanges, diffed bool) bool {
	if record.VersionNo == 1 {
		_, present := record.Snapshot[field]
		return present
	}

	return diffed && changes.Contains(field)
}

// Version returns one version of the entity enriched with its field
// changes, or ledger.ErrNotFound.
func (s *Service) Version(ctx context.Context, entityID string, versionNo int) (Entry, error) {
	record, err := s.ledger.GetVersion(ctx, entityID, versionNo)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{VersionRecord: record}

	if record.VersionNo > 1 {
		predecessor, getErr := s.ledger.GetVersion(ctx, entityID, record.VersionNo-1)
		switch {
		case getErr == nil:
			entry.Changes = ledger.Diff(predecessor.Snapshot, record.Snapshot)
		case s.policy == Abort && !errors.Is(getErr, ledger.ErrNotFound):
			return Entry{}, fmt.Errorf("loading predecessor of version %d: %w", versionNo, getErr)
		}
	}

	return entry, nil
}
