package postgresengine

import (
	"math"
	"time"
)

const (
	metricAppendDuration  = "ledger_append_duration"
	metricQueryDuration   = "ledger_query_duration"
	metricAppendConflicts = "ledger_append_conflicts"
	labelOutcome          = "outcome"
	outcomeSuccess        = "success"
	outcomeRetried        = "retried"
	outcomeExhausted      = "exhausted"
)

// logQueryWithDuration logs SQL queries with execution time at debug level if the logger is configured.
func (l Ledger) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if l.logger != nil {
		l.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, l.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (l Ledger) logOperation(action string, args ...any) {
	if l.logger != nil {
		l.logger.Info(logMsgOperation+action, args...)
	}
}

// logWarn logs non-critical issues at warn level if the logger is configured.
func (l Ledger) logWarn(message string, err error) {
	if l.logger != nil {
		l.logger.Warn(message, logAttrError, err.Error())
	}
}

// logError logs error information at the error level if the logger is configured.
func (l Ledger) logError(message string, err error, args ...any) {
	if l.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		l.logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (l Ledger) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func (l Ledger) recordDuration(metric string, duration time.Duration, labels map[string]string) {
	if l.metricsCollector != nil {
		l.metricsCollector.RecordDuration(metric, duration, labels)
	}
}

func (l Ledger) incrementCounter(metric string, labels map[string]string) {
	if l.metricsCollector != nil {
		l.metricsCollector.IncrementCounter(metric, labels)
	}
}
