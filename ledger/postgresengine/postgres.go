package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/freightdesk/shipledger/ledger"
	"github.com/freightdesk/shipledger/ledger/postgresengine/internal/adapters"
)

const (
	defaultHistoryTableName      = "shipment_history"
	defaultMaxAppendAttempts     = 6
	logMsgBuildQueryFailed       = "failed to build query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgBuildRecordFailed      = "failed to build version record from database row"
	logMsgDBExecFailed           = "database execution failed during version append"
	logMsgBeginTxFailed          = "failed to begin append transaction"
	logMsgCommitTxFailed         = "failed to commit append transaction"
	logMsgRollbackTxFailed       = "failed to roll back append transaction"
	logMsgVersionAppended        = "version appended"
	logMsgQueryCompleted         = "query completed"
	logMsgDuplicateVersion       = "duplicate version number detected, retrying"
	logMsgRetriesExhausted       = "version conflict persisted after retries"
	logMsgSQLExecuted            = "executed sql for: "
	logMsgOperation              = "ledger operation: "
	logAttrError                 = "error"
	logAttrQuery                 = "query"
	logAttrEntityID              = "entity_id"
	logAttrVersionNo             = "version_no"
	logAttrEventType             = "event_type"
	logAttrRecordCount           = "record_count"
	logAttrDurationMS            = "duration_ms"
	logAttrAttempts              = "attempts"
	logActionQuery               = "query"
	logActionAppend              = "append"
	colEntityID                  = "entity_id"
	colVersionNo                 = "version_no"
	colEventType                 = "event_type"
	colActorID                   = "actor_id"
	colActorName                 = "actor_name"
	colReason                    = "reason"
	colSnapshot                  = "snapshot"
	colMetadata                  = "metadata"
	colRecordedAt                = "recorded_at"
	dialectPostgres              = "postgres"
	aliasMaxVersion              = "max_version"
	castJsonb                    = "?::jsonb"
	lockExpr                     = "pg_advisory_xact_lock(hashtextextended(?, 0))"
)

// Ledger is the durable version ledger backed by a PostgreSQL history
// table. It leverages a database adapter and supports customizable
// logging, metrics, snapshot validation, and table configuration.
type Ledger struct {
	db                adapters.DBAdapter
	tableName         string
	logger            Logger
	metricsCollector  MetricsCollector
	validator         ledger.SnapshotValidator
	maxAppendAttempts int
	retryBaseDelay    time.Duration
}

// NewLedgerFromPGXPool creates a new Ledger using a pgx pool with optional configuration.
func NewLedgerFromPGXPool(pool *pgxpool.Pool, options ...Option) (Ledger, error) {
	if pool == nil {
		return Ledger{}, ledger.ErrNilDatabaseConnection
	}

	return newLedger(adapters.NewPGXAdapter(pool), options...)
}

// NewLedgerFromSQLDB creates a new Ledger using a sql.DB with optional configuration.
func NewLedgerFromSQLDB(db *sql.DB, options ...Option) (Ledger, error) {
	if db == nil {
		return Ledger{}, ledger.ErrNilDatabaseConnection
	}

	return newLedger(adapters.NewSQLAdapter(db), options...)
}

// NewLedgerFromSQLX creates a new Ledger using a sqlx.DB with optional configuration.
func NewLedgerFromSQLX(db *sqlx.DB, options ...Option) (Ledger, error) {
	if db == nil {
		return Ledger{}, ledger.ErrNilDatabaseConnection
	}

	return newLedger(adapters.NewSQLXAdapter(db), options...)
}

func newLedger(db adapters.DBAdapter, options ...Option) (Ledger, error) {
	l := Ledger{
		db:                db,
		tableName:         defaultHistoryTableName,
		maxAppendAttempts: defaultMaxAppendAttempts,
	}

	for _, option := range options {
		if err := option(&l); err != nil {
			return Ledger{}, err
		}
	}

	return l, nil
}

// Append atomically assigns the next version number for the entity and
// durably appends the full snapshot plus event metadata, returning the
// assigned version number.
//
// The assignment and the insert happen inside one transaction guarded by
// a per-entity advisory lock, so for N concurrent appends against one
// entity all N succeed and receive the contiguous numbers max+1..max+N.
// A writer that still loses the race trips the unique constraint on
// (entity_id, version_no) and is retried internally with exponential
// backoff; after the bounded attempts are exhausted the append fails
// with ledger.ErrConflict.
//
// Invalid input fails with a *ledger.ValidationError before any write is
// attempted; the configured snapshot validator runs in collect-all mode
// and its violations are merged into the same error.
func (l Ledger) Append(ctx context.Context, event ledger.Event) (int, error) {
	if err := l.validateEvent(event); err != nil {
		return 0, err
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	start := time.Now()
	attempts := 0
	versionNo := 0

	attempt := func(ctx context.Context) error {
		attempts++

		assigned, attemptErr := l.attemptAppend(ctx, event)
		if attemptErr != nil {
			return attemptErr
		}

		versionNo = assigned

		return nil
	}

	retryOptions := []ledger.RetryOption{ledger.WithMaxAttempts(l.maxAppendAttempts)}
	if l.retryBaseDelay > 0 {
		retryOptions = append(retryOptions, ledger.WithBaseDelay(l.retryBaseDelay))
	}

	retryErr := ledger.RetryWithExponentialBackoff(ctx, attempt, retryOptions...)

	if errors.Is(retryErr, ledger.ErrDuplicateVersion) {
		l.logOperation(logMsgRetriesExhausted, logAttrEntityID, event.EntityID, logAttrAttempts, attempts)
		l.incrementCounter(metricAppendConflicts, map[string]string{labelOutcome: outcomeExhausted})

		return 0, errors.Join(ledger.ErrConflict, retryErr)
	}

	if retryErr != nil {
		return 0, retryErr
	}

	l.logOperation(
		logMsgVersionAppended,
		logAttrEntityID, event.EntityID,
		logAttrVersionNo, versionNo,
		logAttrEventType, event.EventType.String(),
		logAttrDurationMS, l.toMilliseconds(time.Since(start)),
	)
	l.recordDuration(metricAppendDuration, time.Since(start), map[string]string{labelOutcome: outcomeSuccess})

	return versionNo, nil
}

// attemptAppend runs one lock-read-insert-commit cycle. A unique
// violation on the insert surfaces as ledger.ErrDuplicateVersion so the
// caller can retry; everything else is wrapped as ledger.ErrStorage.
func (l Ledger) attemptAppend(ctx context.Context, event ledger.Event) (int, error) {
	tx, beginErr := l.db.Begin(ctx)
	if beginErr != nil {
		l.logError(logMsgBeginTxFailed, beginErr)
		return 0, errors.Join(ledger.ErrStorage, beginErr)
	}

	// A rollback after commit is a no-op, so the transaction can never
	// leak; a canceled attempt leaves no trace.
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			l.logWarn(logMsgRollbackTxFailed, rollbackErr)
		}
	}()

	if lockErr := l.lockEntity(ctx, tx, event.EntityID); lockErr != nil {
		return 0, lockErr
	}

	currentMax, maxErr := l.readMaxVersionNo(ctx, tx, event.EntityID)
	if maxErr != nil {
		return 0, maxErr
	}

	nextVersion := currentMax + 1

	if insertErr := l.insertVersion(ctx, tx, event, nextVersion); insertErr != nil {
		return 0, insertErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		if adapters.IsUniqueViolation(commitErr) {
			return 0, errors.Join(ledger.ErrDuplicateVersion, commitErr)
		}

		l.logError(logMsgCommitTxFailed, commitErr)

		return 0, errors.Join(ledger.ErrStorage, commitErr)
	}

	return nextVersion, nil
}

// lockEntity serializes appenders on one entity without blocking writers
// to other entities. The advisory lock is transaction scoped and is
// released by PostgreSQL on commit or rollback.
func (l Ledger) lockEntity(ctx context.Context, tx adapters.DBTx, entityID string) error {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Select(goqu.L(lockExpr, entityID)).
		ToSQL()
	if toSQLErr != nil {
		l.logError(logMsgBuildQueryFailed, toSQLErr)
		return errors.Join(ledger.ErrStorage, toSQLErr)
	}

	if _, execErr := tx.Exec(ctx, sqlQuery); execErr != nil {
		l.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(ledger.ErrStorage, execErr)
	}

	return nil
}

func (l Ledger) readMaxVersionNo(ctx context.Context, tx adapters.DBTx, entityID string) (int, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(l.tableName).
		Select(goqu.COALESCE(goqu.MAX(colVersionNo), 0).As(aliasMaxVersion)).
		Where(goqu.Ex{colEntityID: entityID}).
		ToSQL()
	if toSQLErr != nil {
		l.logError(logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(ledger.ErrStorage, toSQLErr)
	}

	rows, queryErr := tx.Query(ctx, sqlQuery)
	if queryErr != nil {
		l.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return 0, errors.Join(ledger.ErrStorage, queryErr)
	}
	defer l.closeRows(rows)

	maxVersion := 0
	if rows.Next() {
		if scanErr := rows.Scan(&maxVersion); scanErr != nil {
			l.logError(logMsgScanRowFailed, scanErr)
			return 0, errors.Join(ledger.ErrStorage, scanErr)
		}
	}

	return maxVersion, nil
}

func (l Ledger) insertVersion(ctx context.Context, tx adapters.DBTx, event ledger.Event, versionNo int) error {
	snapshotJSON, snapshotErr := event.Snapshot.ToJSON()
	if snapshotErr != nil {
		return errors.Join(ledger.ErrStorage, snapshotErr)
	}

	record := goqu.Record{
		colEntityID:   event.EntityID,
		colVersionNo:  versionNo,
		colEventType:  event.EventType.String(),
		colActorID:    event.ActorID,
		colActorName:  event.ActorName,
		colSnapshot:   goqu.L(castJsonb, string(snapshotJSON)),
		colRecordedAt: event.OccurredAt,
	}

	if event.Reason != "" {
		record[colReason] = event.Reason
	} else {
		record[colReason] = nil
	}

	if event.Metadata != nil {
		metadataJSON, metadataErr := ledger.Snapshot(event.Metadata).ToJSON()
		if metadataErr != nil {
			return errors.Join(ledger.ErrStorage, metadataErr)
		}
		record[colMetadata] = goqu.L(castJsonb, string(metadataJSON))
	} else {
		record[colMetadata] = nil
	}

	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		Insert(l.tableName).
		Rows(record).
		ToSQL()
	if toSQLErr != nil {
		l.logError(logMsgBuildQueryFailed, toSQLErr)
		return errors.Join(ledger.ErrStorage, toSQLErr)
	}

	start := time.Now()
	_, execErr := tx.Exec(ctx, sqlQuery)
	l.logQueryWithDuration(sqlQuery, logActionAppend, time.Since(start))

	if execErr != nil {
		if adapters.IsUniqueViolation(execErr) {
			l.logOperation(logMsgDuplicateVersion, logAttrEntityID, event.EntityID, logAttrVersionNo, versionNo)
			l.incrementCounter(metricAppendConflicts, map[string]string{labelOutcome: outcomeRetried})

			return errors.Join(ledger.ErrDuplicateVersion, execErr)
		}

		l.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)

		return errors.Join(ledger.ErrStorage, execErr)
	}

	return nil
}

// GetVersion retrieves one immutable version record. Past versions never
// change, so the lookup takes no lock. Returns ledger.ErrNotFound when
// the entity has no such version.
func (l Ledger) GetVersion(ctx context.Context, entityID string, versionNo int) (ledger.VersionRecord, error) {
	var empty ledger.VersionRecord

	selectStmt := l.selectRecords().
		Where(goqu.Ex{colEntityID: entityID, colVersionNo: versionNo})

	records, err := l.queryRecords(ctx, selectStmt)
	if err != nil {
		return empty, err
	}

	if len(records) == 0 {
		return empty, ledger.ErrNotFound
	}

	return records[0], nil
}

// LatestVersionNo returns the highest version number assigned to the
// entity so far, or 0 if the entity has no versions yet.
func (l Ledger) LatestVersionNo(ctx context.Context, entityID string) (int, error) {
	sqlQuery, _, toSQLErr := goqu.Dialect(dialectPostgres).
		From(l.tableName).
		Select(goqu.COALESCE(goqu.MAX(colVersionNo), 0).As(aliasMaxVersion)).
		Where(goqu.Ex{colEntityID: entityID}).
		ToSQL()
	if toSQLErr != nil {
		l.logError(logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(ledger.ErrStorage, toSQLErr)
	}

	rows, queryErr := l.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		return 0, queryErr
	}
	defer l.closeRows(rows)

	maxVersion := 0
	if rows.Next() {
		if scanErr := rows.Scan(&maxVersion); scanErr != nil {
			l.logError(logMsgScanRowFailed, scanErr)
			return 0, errors.Join(ledger.ErrStorage, scanErr)
		}
	}

	return maxVersion, nil
}

// Versions returns a window of the entity's version records ordered by
// version number descending (newest first).
func (l Ledger) Versions(ctx context.Context, entityID string, limit, offset int) ([]ledger.VersionRecord, error) {
	if limit <= 0 {
		limit = ledger.DefaultFilterLimit
	}
	if offset < 0 {
		offset = 0
	}

	selectStmt := l.selectRecords().
		Where(goqu.Ex{colEntityID: entityID}).
		Order(goqu.I(colVersionNo).Desc()).
		Limit(uint(limit)).
		Offset(uint(offset))

	return l.queryRecords(ctx, selectStmt)
}

// FilteredVersions returns the entity's version records matching every
// set predicate of the filter, newest first. The ChangedField predicate
// is intentionally not applied here; see ledger.HistoryFilter.
func (l Ledger) FilteredVersions(ctx context.Context, entityID string, filter ledger.HistoryFilter) ([]ledger.VersionRecord, error) {
	if violations := filter.Violations(); len(violations) > 0 {
		return nil, ledger.NewValidationError(violations...)
	}

	selectStmt := l.selectRecords().
		Where(l.filterExpressions(entityID, filter)).
		Order(goqu.I(colVersionNo).Desc()).
		Limit(uint(filter.EffectiveLimit()))

	return l.queryRecords(ctx, selectStmt)
}

func (l Ledger) filterExpressions(entityID string, filter ledger.HistoryFilter) goqu.Expression {
	expressions := []goqu.Expression{goqu.Ex{colEntityID: entityID}}

	if filter.ActorID != "" {
		expressions = append(expressions, goqu.Ex{colActorID: filter.ActorID})
	}

	if filter.EventType != "" {
		expressions = append(expressions, goqu.Ex{colEventType: filter.EventType.String()})
	}

	if !filter.OccurredFrom.IsZero() {
		expressions = append(expressions, goqu.C(colRecordedAt).Gte(filter.OccurredFrom))
	}

	if !filter.OccurredUntil.IsZero() {
		expressions = append(expressions, goqu.C(colRecordedAt).Lte(filter.OccurredUntil))
	}

	return goqu.And(expressions...)
}

func (l Ledger) selectRecords() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(l.tableName).
		Select(colEntityID, colVersionNo, colEventType, colActorID, colActorName, colReason, colSnapshot, colMetadata, colRecordedAt)
}

func (l Ledger) queryRecords(ctx context.Context, selectStmt *goqu.SelectDataset) ([]ledger.VersionRecord, error) {
	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		l.logError(logMsgBuildQueryFailed, toSQLErr)
		return nil, errors.Join(ledger.ErrStorage, toSQLErr)
	}

	start := time.Now()
	rows, queryErr := l.executeQuery(ctx, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer l.closeRows(rows)

	records, processErr := l.processQueryResults(rows)
	if processErr != nil {
		return nil, processErr
	}

	l.logOperation(
		logMsgQueryCompleted,
		logAttrRecordCount, len(records),
		logAttrDurationMS, l.toMilliseconds(time.Since(start)),
	)
	l.recordDuration(metricQueryDuration, time.Since(start), map[string]string{labelOutcome: outcomeSuccess})

	return records, nil
}

func (l Ledger) executeQuery(ctx context.Context, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := l.db.Query(ctx, sqlQuery)
	l.logQueryWithDuration(sqlQuery, logActionQuery, time.Since(start))

	if queryErr != nil {
		l.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(ledger.ErrStorage, queryErr)
	}

	return rows, nil
}

func (l Ledger) processQueryResults(rows adapters.DBRows) ([]ledger.VersionRecord, error) {
	records := make([]ledger.VersionRecord, 0)

	for rows.Next() {
		var (
			entityID     string
			versionNo    int
			eventType    string
			actorID      string
			actorName    string
			reason       sql.NullString
			snapshotJSON []byte
			metadataJSON []byte
			recordedAt   time.Time
		)

		scanErr := rows.Scan(&entityID, &versionNo, &eventType, &actorID, &actorName, &reason, &snapshotJSON, &metadataJSON, &recordedAt)
		if scanErr != nil {
			l.logError(logMsgScanRowFailed, scanErr)
			return nil, errors.Join(ledger.ErrStorage, scanErr)
		}

		record, buildErr := buildRecord(entityID, versionNo, eventType, actorID, actorName, reason, snapshotJSON, metadataJSON, recordedAt)
		if buildErr != nil {
			l.logError(logMsgBuildRecordFailed, buildErr, logAttrEntityID, entityID, logAttrVersionNo, versionNo)
			return nil, errors.Join(ledger.ErrStorage, buildErr)
		}

		records = append(records, record)
	}

	return records, nil
}

func buildRecord(
	entityID string,
	versionNo int,
	eventType string,
	actorID string,
	actorName string,
	reason sql.NullString,
	snapshotJSON []byte,
	metadataJSON []byte,
	recordedAt time.Time,
) (ledger.VersionRecord, error) {

	snapshot, snapshotErr := ledger.SnapshotFromJSON(snapshotJSON)
	if snapshotErr != nil {
		return ledger.VersionRecord{}, snapshotErr
	}

	var metadata ledger.Metadata
	if len(metadataJSON) > 0 {
		decoded, metadataErr := ledger.SnapshotFromJSON(metadataJSON)
		if metadataErr != nil {
			return ledger.VersionRecord{}, metadataErr
		}
		metadata = ledger.Metadata(decoded)
	}

	return ledger.VersionRecord{
		EntityID:   entityID,
		VersionNo:  versionNo,
		EventType:  ledger.EventType(eventType),
		ActorID:    actorID,
		ActorName:  actorName,
		Reason:     reason.String,
		Snapshot:   snapshot,
		Metadata:   metadata,
		RecordedAt: recordedAt,
	}, nil
}

func (l Ledger) validateEvent(event ledger.Event) error {
	violations := event.Violations()

	if l.validator != nil && len(event.Snapshot) > 0 {
		violations = append(violations, l.validator.Validate(event.Snapshot)...)
	}

	if len(violations) > 0 {
		return ledger.NewValidationError(violations...)
	}

	return nil
}

func (l Ledger) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		l.logWarn(logMsgCloseRowsFailed, closeErr)
	}
}
