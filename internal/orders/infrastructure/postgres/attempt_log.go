package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
)

const defaultAttemptsTable = "status_events"

// AttemptLog archives status events append-only. It exists for diagnostics
// and is never read back for control decisions.
type AttemptLog struct {
	db    *sql.DB
	table string
}

// NewAttemptLog constructs an attempt log.
func NewAttemptLog(db *sql.DB, opts ...AttemptOption) *AttemptLog {
	log := &AttemptLog{db: db, table: defaultAttemptsTable}
	for _, opt := range opts {
		opt(log)
	}
	return log
}

// AttemptOption configures the attempt log.
type AttemptOption func(*AttemptLog)

// WithAttemptsTable overrides the table name.
func WithAttemptsTable(table string) AttemptOption {
	return func(log *AttemptLog) {
		if table != "" {
			log.table = table
		}
	}
}

// Append records one status observation and whether it was applied.
func (l *AttemptLog) Append(ctx context.Context, ev orders.StatusEvent, applied bool, from, to orders.Status) error {
	if l == nil || l.db == nil {
		return errors.New("attempt log: nil db")
	}
	observedAt := ev.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	external_order_id, source, raw_status, observed_at,
	transaction_hash, provider_id, settlement_amount,
	applied, status_before, status_after
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)`, l.table)
	_, err := l.db.ExecContext(ctx, query,
		ev.ExternalOrderID,
		string(ev.Source),
		ev.RawStatus,
		observedAt.UTC(),
		ev.TransactionHash,
		ev.ProviderID,
		ev.SettlementAmount,
		applied,
		string(from),
		string(to),
	)
	return err
}
