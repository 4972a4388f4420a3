package postgresengine

import (
	"time"

	"github.com/freightdesk/shipledger/ledger"
)

// Logger interface for SQL query logging, operational metrics, warnings,
// and error reporting. *slog.Logger satisfies it directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsCollector interface for collecting ledger performance and
// operational metrics. Implementations are free to back it with any
// metrics system; the ledger itself stays dependency-free.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
}

// Option defines a functional option for configuring the Ledger.
type Option func(*Ledger) error

// WithTableName sets the history table name for the Ledger.
func WithTableName(tableName string) Option {
	return func(l *Ledger) error {
		if tableName == "" {
			return ledger.ErrEmptyTableName
		}

		l.tableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the Ledger.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Record counts, durations, version conflicts (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(l *Ledger) error {
		l.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Ledger. It will receive
// append/query durations and version-conflict counters.
func WithMetrics(collector MetricsCollector) Option {
	return func(l *Ledger) error {
		l.metricsCollector = collector
		return nil
	}
}

// WithSnapshotValidator sets the business-rule validator consulted in
// collect-all mode on every Append.
func WithSnapshotValidator(validator ledger.SnapshotValidator) Option {
	return func(l *Ledger) error {
		l.validator = validator
		return nil
	}
}

// WithMaxAppendAttempts bounds the internal retries of an append that
// keeps losing the version-number race.
func WithMaxAppendAttempts(attempts int) Option {
	return func(l *Ledger) error {
		if attempts <= 0 {
			return ledger.ErrInvalidMaxAttempts
		}

		l.maxAppendAttempts = attempts

		return nil
	}
}

// WithRetryBaseDelay sets the base delay of the append retry backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(l *Ledger) error {
		if delay < 0 {
			return ledger.ErrNegativeBaseDelay
		}

		l.retryBaseDelay = delay

		return nil
	}
}
