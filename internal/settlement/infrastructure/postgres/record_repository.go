package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	settlement "github.com/Thedongraphix/Minisend-sub001/internal/settlement/domain"
)

const defaultRecordsTable = "settlement_records"

// RecordRepository is a Postgres implementation for settlement records.
type RecordRepository struct {
	db    *sql.DB
	table string
}

// NewRecordRepository constructs a repository with defaults.
func NewRecordRepository(db *sql.DB, opts ...RepositoryOption) *RecordRepository {
	repo := &RecordRepository{db: db, table: defaultRecordsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*RecordRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *RecordRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Insert writes a settlement record exactly once per order id. The unique
// constraint on order_id decides the race; created=false means a record
// already existed.
func (r *RecordRepository) Insert(ctx context.Context, record *settlement.Record) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("settlement repo: nil db")
	}
	if record == nil {
		return false, settlement.ErrNilRecord
	}
	if err := record.Validate(); err != nil {
		return false, err
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	order_id,
	external_order_id,
	local_currency,
	settlement_amount,
	transaction_hash,
	provider_id,
	settled_at,
	created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
ON CONFLICT (order_id)
DO NOTHING`, r.table)

	result, err := r.db.ExecContext(ctx, query,
		record.OrderID,
		record.ExternalOrderID,
		record.LocalCurrency,
		record.SettlementAmount,
		record.TransactionHash,
		record.ProviderID,
		record.SettledAt.UTC(),
		createdAt,
	)
	if err != nil {
		return false, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByOrderID loads the settlement record for an order.
func (r *RecordRepository) GetByOrderID(ctx context.Context, orderID string) (*settlement.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	if orderID == "" {
		return nil, settlement.ErrEmptyOrderID
	}
	query := fmt.Sprintf(`
SELECT order_id, external_order_id, local_currency, settlement_amount,
	transaction_hash, provider_id, settled_at, created_at
FROM %s
WHERE order_id = $1
LIMIT 1`, r.table)

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, settlement.ErrRecordNotFound
		}
		return nil, err
	}
	return record, nil
}

// FillSettlementAmount sets the settlement amount when the record was
// created from a delivery signal that carried none. A non-null amount is
// never overwritten.
func (r *RecordRepository) FillSettlementAmount(ctx context.Context, orderID string, amount decimal.Decimal) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	if orderID == "" {
		return settlement.ErrEmptyOrderID
	}
	if amount.IsNegative() {
		return settlement.ErrNegativeAmount
	}
	query := fmt.Sprintf(`
UPDATE %s
SET settlement_amount = $1
WHERE order_id = $2 AND settlement_amount = 0`, r.table)
	_, err := r.db.ExecContext(ctx, query, amount, orderID)
	return err
}

// ListSettledBetween lists settlement records in a time range.
func (r *RecordRepository) ListSettledBetween(ctx context.Context, from, to time.Time) ([]settlement.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT order_id, external_order_id, local_currency, settlement_amount,
	transaction_hash, provider_id, settled_at, created_at
FROM %s
WHERE settled_at >= $1 AND settled_at < $2
ORDER BY settled_at ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*settlement.Record, error) {
	var record settlement.Record
	var txHash sql.NullString
	var providerID sql.NullString
	if err := row.Scan(
		&record.OrderID,
		&record.ExternalOrderID,
		&record.LocalCurrency,
		&record.SettlementAmount,
		&txHash,
		&providerID,
		&record.SettledAt,
		&record.CreatedAt,
	); err != nil {
		return nil, err
	}
	record.TransactionHash = txHash.String
	record.ProviderID = providerID.String
	return &record, nil
}
