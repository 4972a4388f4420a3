package postgresengine_test

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/shipledger/ledger"
	"github.com/freightdesk/shipledger/ledger/postgresengine"
)

// Integration tests against a real PostgreSQL instance. They are skipped
// unless SHIPLEDGER_TEST_DSN points at a database with the
// shipment_history schema applied.

func setupLedger(t *testing.T) (postgresengine.Ledger, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("SHIPLEDGER_TEST_DSN")
	if dsn == "" {
		t.Skip("SHIPLEDGER_TEST_DSN not set, skipping postgres integration test")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err, "error connecting to DB pool in test setup")
	t.Cleanup(pool.Close)

	shipmentLedger, err := postgresengine.NewLedgerFromPGXPool(pool)
	require.NoError(t, err, "creating the ledger failed")

	return shipmentLedger, pool
}

func uniqueEntityID(t *testing.T) string {
	t.Helper()
	return "test-" + uuid.NewString()
}

func testSnapshot(status string) ledger.Snapshot {
	return ledger.Snapshot{
		"id":     "S-1",
		"title":  "Hamburg to Shanghai",
		"status": status,
	}
}

func Test_Append_AssignsSequentialVersionNumbers(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shipmentLedger, _ := setupLedger(t)
	entityID := uniqueEntityID(t)

	// act + assert
	for expected := 1; expected <= 3; expected++ {
		versionNo, err := shipmentLedger.Append(ctx, ledger.BuildEvent(
			entityID, ledger.EventTypeUpdated, "u-1", "Ada Lovelace", testSnapshot("new")))
		require.NoError(t, err, "error appending the event")
		assert.Equal(t, expected, versionNo)
	}

	latest, err := shipmentLedger.LatestVersionNo(ctx, entityID)
	assert.NoError(t, err)
	assert.Equal(t, 3, latest)
}

func Test_Append_ConcurrentWritersProduceGapFreeSequence(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	shipmentLedger, _ := setupLedger(t)
	entityID := uniqueEntityID(t)
	const writers = 20

	// act
	var wg sync.WaitGroup
	results := make(chan int, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			versionNo, err := shipmentLedger.Append(ctx, ledger.BuildEvent(
				entityID, ledger.EventTypeUpdated, "u-1", "Ada Lovelace", testSnapshot("new")))
			assert.NoError(t, err, "error appending the event concurrently")
			results <- versionNo
		}()
	}

	wg.Wait()
	close(results)

	// assert: every number from 1..writers exactly once
	assigned := make([]int, 0, writers)
	for versionNo := range results {
		assigned = append(assigned, versionNo)
	}
	sort.Ints(assigned)

	for i, versionNo := range assigned {
		assert.Equal(t, i+1, versionNo)
	}
}

func Test_Append_WithCanceledContextFailsFast(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shipmentLedger, _ := setupLedger(t)
	entityID := uniqueEntityID(t)

	_, err := shipmentLedger.Append(ctx, ledger.BuildEvent(
		entityID, ledger.EventTypeCreated, "u-1", "Ada Lovelace", testSnapshot("new")))
	require.NoError(t, err)

	canceledCtx, cancelAppend := context.WithCancel(ctx)
	cancelAppend()

	// act
	_, err = shipmentLedger.Append(canceledCtx, ledger.BuildEvent(
		entityID, ledger.EventTypeUpdated, "u-1", "Ada Lovelace", testSnapshot("pending")))

	// assert: the append failed and left the history untouched
	require.Error(t, err)

	latest, err := shipmentLedger.LatestVersionNo(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)
}

func Test_Append_CanceledMidProtocolLeavesNoPartialVersion(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shipmentLedger, pool := setupLedger(t)
	entityID := uniqueEntityID(t)

	_, err := shipmentLedger.Append(ctx, ledger.BuildEvent(
		entityID, ledger.EventTypeCreated, "u-1", "Ada Lovelace", testSnapshot("new")))
	require.NoError(t, err)

	// hold the entity's advisory lock in a separate transaction, so the
	// append blocks after its own transaction has begun
	blocker, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = blocker.Rollback(ctx) }()

	_, err = blocker.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", entityID)
	require.NoError(t, err)

	// act: the deadline expires while the append waits for the lock
	appendCtx, cancelAppend := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancelAppend()

	_, err = shipmentLedger.Append(appendCtx, ledger.BuildEvent(
		entityID, ledger.EventTypeUpdated, "u-1", "Ada Lovelace", testSnapshot("pending")))
	require.Error(t, err)

	require.NoError(t, blocker.Rollback(ctx))

	// assert: the aborted transaction rolled back, no half-applied
	// version remains
	latest, err := shipmentLedger.LatestVersionNo(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)

	_, err = shipmentLedger.GetVersion(ctx, entityID, 2)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func Test_Append_RoundTripsSnapshotAndMetadata(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shipmentLedger, _ := setupLedger(t)
	entityID := uniqueEntityID(t)
	occurredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// act
	_, err := shipmentLedger.Append(ctx, ledger.BuildEvent(
		entityID, ledger.EventTypeCreated, "u-1", "Ada Lovelace", testSnapshot("new"),
		ledger.WithReason("initial import"),
		ledger.WithMetadata(ledger.Metadata{"source": "import"}),
		ledger.WithOccurredAt(occurredAt)))
	require.NoError(t, err)

	// assert
	record, err := shipmentLedger.GetVersion(ctx, entityID, 1)
	require.NoError(t, err)
	assert.Equal(t, entityID, record.EntityID)
	assert.Equal(t, ledger.EventTypeCreated, record.EventType)
	assert.Equal(t, "initial import", record.Reason)
	assert.Equal(t, "new", record.Snapshot["status"])
	assert.Equal(t, "import", record.Metadata["source"])
	assert.True(t, record.RecordedAt.Equal(occurredAt))
}

func Test_GetVersion_UnknownVersionIsNotFound(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shipmentLedger, _ := setupLedger(t)

	// act
	_, err := shipmentLedger.GetVersion(ctx, uniqueEntityID(t), 1)

	// assert
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func Test_Versions_ReturnsNewestFirstWindow(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shipmentLedger, _ := setupLedger(t)
	entityID := uniqueEntityID(t)

	for i := 1; i <= 5; i++ {
		_, err := shipmentLedger.Append(ctx, ledger.BuildEvent(
			entityID, ledger.EventTypeUpdated, "u-1", "Ada Lovelace",
			testSnapshot(fmt.Sprintf("status-%d", i))))
		require.NoError(t, err)
	}

	// act
	records, err := shipmentLedger.Versions(ctx, entityID, 2, 1)

	// assert
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 4, records[0].VersionNo)
	assert.Equal(t, 3, records[1].VersionNo)
}

func Test_FilteredVersions_AppliesPredicates(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shipmentLedger, _ := setupLedger(t)
	entityID := uniqueEntityID(t)

	_, err := shipmentLedger.Append(ctx, ledger.BuildEvent(
		entityID, ledger.EventTypeCreated, "u-1", "Ada Lovelace", testSnapshot("new")))
	require.NoError(t, err)

	_, err = shipmentLedger.Append(ctx, ledger.BuildEvent(
		entityID, ledger.EventTypeStatusChanged, "u-2", "Grace Hopper", testSnapshot("pending")))
	require.NoError(t, err)

	// act
	records, err := shipmentLedger.FilteredVersions(ctx, entityID, ledger.HistoryFilter{
		ActorID: "u-2",
	})

	// assert
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].VersionNo)
	assert.Equal(t, ledger.EventTypeStatusChanged, records[0].EventType)
}
