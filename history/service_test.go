package history_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/shipledger/history"
	"github.com/freightdesk/shipledger/ledger"
	"github.com/freightdesk/shipledger/ledger/memoryengine"
)

func seedShipment(t *testing.T, l *memoryengine.Ledger, statuses ...string) {
	t.Helper()

	for i, status := range statuses {
		eventType := ledger.EventTypeUpdated
		if i == 0 {
			eventType = ledger.EventTypeCreated
		}

		_, err := l.Append(context.Background(), ledger.BuildEvent(
			"S-1", eventType, "u-1", "Ada Lovelace", ledger.Snapshot{
				"id":     "S-1",
				"title":  "Hamburg to Shanghai",
				"status": status,
			}))
		require.NoError(t, err)
	}
}

func Test_History_ReturnsNewestFirstWithChanges(t *testing.T) {
	l := memoryengine.NewLedger()
	seedShipment(t, l, "new", "pending", "completed")
	service := history.NewService(l)

	entries, err := service.History(context.Background(), "S-1", 10, 0)

	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, 3, entries[0].VersionNo)
	assert.Equal(t, ledger.FieldChanges{
		"status": {From: "pending", To: "completed"},
	}, entries[0].Changes)

	assert.Equal(t, 2, entries[1].VersionNo)
	assert.Equal(t, ledger.FieldChanges{
		"status": {From: "new", To: "pending"},
	}, entries[1].Changes)

	// version 1 has no predecessor, so no changes
	assert.Equal(t, 1, entries[2].VersionNo)
	assert.Nil(t, entries[2].Changes)
}

func Test_History_DiffsAcrossThePageBoundary(t *testing.T) {
	l := memoryengine.NewLedger()
	seedShipment(t, l, "new", "pending", "in_progress", "completed")
	service := history.NewService(l)

	// page [3, 2]: the oldest entry of the page needs version 1 for its diff
	entries, err := service.History(context.Background(), "S-1", 2, 1)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].VersionNo)
	assert.Equal(t, 2, entries[1].VersionNo)
	assert.Equal(t, ledger.FieldChanges{
		"status": {From: "new", To: "pending"},
	}, entries[1].Changes)
}

func Test_History_UnknownEntityYieldsEmptySlice(t *testing.T) {
	service := history.NewService(memoryengine.NewLedger())

	entries, err := service.History(context.Background(), "S-unknown", 10, 0)

	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_Filter_ChangedFieldKeepsOnlyVersionsThatChangedIt(t *testing.T) {
	l := memoryengine.NewLedger()
	seedShipment(t, l, "new", "new", "pending")

	_, err := l.Append(context.Background(), ledger.BuildEvent(
		"S-1", ledger.EventTypeUpdated, "u-1", "Ada Lovelace", ledger.Snapshot{
			"id":          "S-1",
			"title":       "Hamburg to Shanghai",
			"status":      "pending",
			"vessel_name": "MSC Oscar",
		}))
	require.NoError(t, err)

	service := history.NewService(l)

	entries, err := service.Filter(context.Background(), "S-1", ledger.HistoryFilter{
		ChangedField: "status",
	})

	require.NoError(t, err)
	require.Len(t, entries, 2)
	// version 3 changed status, version 1 introduced it, versions 2 and 4 did not touch it
	assert.Equal(t, 3, entries[0].VersionNo)
	assert.Equal(t, 1, entries[1].VersionNo)
}

func Test_Filter_CombinesLedgerPredicatesWithChangedField(t *testing.T) {
	l := memoryengine.NewLedger()
	seedShipment(t, l, "new", "pending", "completed")
	service := history.NewService(l)

	entries, err := service.Filter(context.Background(), "S-1", ledger.HistoryFilter{
		EventType:    ledger.EventTypeUpdated,
		ChangedField: "status",
	})

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].VersionNo)
	assert.Equal(t, 2, entries[1].VersionNo)
}

func Test_Filter_InvalidFilterFailsValidation(t *testing.T) {
	service := history.NewService(memoryengine.NewLedger())

	_, err := service.Filter(context.Background(), "S-1", ledger.HistoryFilter{
		EventType: "teleported",
	})

	_, ok := ledger.AsValidationError(err)
	assert.True(t, ok)
}

func Test_Version_EnrichesSingleRecordWithChanges(t *testing.T) {
	l := memoryengine.NewLedger()
	seedShipment(t, l, "new", "pending")
	service := history.NewService(l)

	entry, err := service.Version(context.Background(), "S-1", 2)

	require.NoError(t, err)
	assert.Equal(t, 2, entry.VersionNo)
	assert.Equal(t, ledger.FieldChanges{
		"status": {From: "new", To: "pending"},
	}, entry.Changes)
}

func Test_Version_UnknownVersionIsNotFound(t *testing.T) {
	service := history.NewService(memoryengine.NewLedger())

	_, err := service.Version(context.Background(), "S-1", 1)

	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// flakyLedger fails GetVersion for one version number, to exercise the
// diff error policies.
type flakyLedger struct {
	history.Ledger
	failFor int
}

func (f flakyLedger) GetVersion(ctx context.Context, entityID string, versionNo int) (ledger.VersionRecord, error) {
	if versionNo == f.failFor {
		return ledger.VersionRecord{}, fmt.Errorf("%w: connection reset", ledger.ErrStorage)
	}

	return f.Ledger.GetVersion(ctx, entityID, versionNo)
}

func Test_Filter_SkipRecordPolicyLeavesChangesNil(t *testing.T) {
	l := memoryengine.NewLedger()
	seedShipment(t, l, "new", "pending")
	service := history.NewService(flakyLedger{Ledger: l, failFor: 1})

	entries, err := service.Filter(context.Background(), "S-1", ledger.HistoryFilter{})

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].Changes)
}

func Test_Filter_AbortPolicyFailsTheRead(t *testing.T) {
	l := memoryengine.NewLedger()
	seedShipment(t, l, "new", "pending")
	service := history.NewService(
		flakyLedger{Ledger: l, failFor: 1},
		history.WithDiffErrorPolicy(history.Abort))

	_, err := service.Filter(context.Background(), "S-1", ledger.HistoryFilter{})

	assert.True(t, errors.Is(err, ledger.ErrStorage))
}

func Test_History_DiffsUseRecordsFromTheSameFetch(t *testing.T) {
	l := memoryengine.NewLedger()
	seedShipment(t, l, "new", "pending", "completed")
	service := history.NewService(
		flakyLedger{Ledger: l, failFor: 1},
		history.WithDiffErrorPolicy(history.Abort))

	// the over-fetched neighbor covers the page boundary, so History never
	// has to look version 1 up separately even under the Abort policy
	entries, err := service.History(context.Background(), "S-1", 1, 1)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.FieldChanges{
		"status": {From: "new", To: "pending"},
	}, entries[0].Changes)
}
