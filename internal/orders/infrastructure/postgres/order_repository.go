package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
)

const defaultOrdersTable = "payout_orders"

// OrderRepository is a Postgres implementation for payout orders.
type OrderRepository struct {
	db    *sql.DB
	table string
}

// NewOrderRepository constructs a repository.
func NewOrderRepository(db *sql.DB, opts ...OrderOption) *OrderRepository {
	repo := &OrderRepository{db: db, table: defaultOrdersTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// OrderOption configures the repository.
type OrderOption func(*OrderRepository)

// WithOrdersTable overrides the default table.
func WithOrdersTable(table string) OrderOption {
	return func(repo *OrderRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Create inserts an order.
func (r *OrderRepository) Create(ctx context.Context, order *orders.Order) error {
	if r == nil || r.db == nil {
		return errors.New("order repo: nil db")
	}
	if err := order.Validate(); err != nil {
		return err
	}
	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, external_order_id, wallet_address, return_address,
	recipient_institution, recipient_account_number, recipient_account_name, recipient_memo,
	amount_requested, local_currency, amount_local, rate, sender_fee, transaction_fee,
	status, provider_status, payable, deposit_address, valid_until, transaction_hash,
	created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
)`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.ExternalOrderID,
		order.WalletAddress,
		order.ReturnAddress,
		order.Recipient.Institution,
		order.Recipient.AccountNumber,
		order.Recipient.AccountName,
		order.Recipient.Memo,
		order.AmountRequested,
		order.LocalCurrency,
		order.AmountLocal,
		order.Rate,
		order.SenderFee,
		order.TransactionFee,
		string(order.Status),
		order.ProviderStatus,
		order.Payable,
		order.DepositAddress,
		nullTime(order.ValidUntil),
		order.TransactionHash,
		createdAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return orders.ErrDuplicateExternalID
	}
	return err
}

// GetByExternalID loads an order by the provider-assigned id.
func (r *OrderRepository) GetByExternalID(ctx context.Context, externalID string) (*orders.Order, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("order repo: nil db")
	}
	if externalID == "" {
		return nil, orders.ErrEmptyExternalID
	}
	query := fmt.Sprintf(`
SELECT id, external_order_id, wallet_address, return_address,
	recipient_institution, recipient_account_number, recipient_account_name, recipient_memo,
	amount_requested, local_currency, amount_local, rate, sender_fee, transaction_fee,
	status, provider_status, payable, deposit_address, valid_until, transaction_hash,
	created_at, completed_at
FROM %s
WHERE external_order_id = $1
LIMIT 1`, r.table)

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orders.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// UpdateStatusIfAdvanced commits an accepted transition with a compare-and-set
// on the expected current status. It returns false when another channel won
// the race and the stored status is no longer `from`.
//
// completed_at is set exactly once, on the first transition into delivered.
// transaction_hash is set once and never overwritten.
func (r *OrderRepository) UpdateStatusIfAdvanced(ctx context.Context, externalID string, from, to orders.Status, update orders.StatusUpdate) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("order repo: nil db")
	}
	if externalID == "" {
		return false, orders.ErrEmptyExternalID
	}
	if !from.IsValid() || !to.IsValid() {
		return false, orders.ErrInvalidStatus
	}

	query := fmt.Sprintf(`
UPDATE %s
SET status = $1,
	provider_status = $2,
	transaction_hash = CASE WHEN transaction_hash = '' THEN $3 ELSE transaction_hash END,
	completed_at = CASE WHEN $1 = '%s' AND completed_at IS NULL THEN $4 ELSE completed_at END,
	updated_at = NOW()
WHERE external_order_id = $5 AND status = $6`, r.table, orders.StatusDelivered)

	observedAt := update.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, query,
		string(to),
		update.ProviderStatus,
		update.TransactionHash,
		observedAt.UTC(),
		externalID,
		string(from),
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

// SetAmounts applies the one-time fee correction from the provider's
// authoritative creation response.
func (r *OrderRepository) SetAmounts(ctx context.Context, externalID string, amountLocal, senderFee, transactionFee decimal.Decimal) error {
	if r == nil || r.db == nil {
		return errors.New("order repo: nil db")
	}
	if externalID == "" {
		return orders.ErrEmptyExternalID
	}
	query := fmt.Sprintf(`
UPDATE %s
SET amount_local = $1, sender_fee = $2, transaction_fee = $3, updated_at = NOW()
WHERE external_order_id = $4`, r.table)
	_, err := r.db.ExecContext(ctx, query, amountLocal, senderFee, transactionFee, externalID)
	return err
}

// SetPayable marks whether the order may be presented to the user as payable.
func (r *OrderRepository) SetPayable(ctx context.Context, externalID string, payable bool) error {
	if r == nil || r.db == nil {
		return errors.New("order repo: nil db")
	}
	if externalID == "" {
		return orders.ErrEmptyExternalID
	}
	query := fmt.Sprintf(`
UPDATE %s
SET payable = $1, updated_at = NOW()
WHERE external_order_id = $2`, r.table)
	_, err := r.db.ExecContext(ctx, query, payable, externalID)
	return err
}

// SetTransactionHash records the on-chain payment confirmation, once.
func (r *OrderRepository) SetTransactionHash(ctx context.Context, externalID, txHash string) error {
	if r == nil || r.db == nil {
		return errors.New("order repo: nil db")
	}
	if externalID == "" {
		return orders.ErrEmptyExternalID
	}
	if txHash == "" {
		return errors.New("order repo: empty transaction hash")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET transaction_hash = $1, updated_at = NOW()
WHERE external_order_id = $2 AND transaction_hash = ''`, r.table)
	_, err := r.db.ExecContext(ctx, query, txHash, externalID)
	return err
}

// ListNonTerminal lists orders still awaiting an authoritative outcome.
func (r *OrderRepository) ListNonTerminal(ctx context.Context, olderThan time.Time, limit int) ([]orders.Order, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("order repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
SELECT id, external_order_id, wallet_address, return_address,
	recipient_institution, recipient_account_number, recipient_account_name, recipient_memo,
	amount_requested, local_currency, amount_local, rate, sender_fee, transaction_fee,
	status, provider_status, payable, deposit_address, valid_until, transaction_hash,
	created_at, completed_at
FROM %s
WHERE status IN ('%s', '%s') AND created_at < $1
ORDER BY created_at ASC
LIMIT $2`, r.table, orders.StatusPending, orders.StatusProcessing)

	rows, err := r.db.QueryContext(ctx, query, olderThan.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []orders.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*orders.Order, error) {
	var order orders.Order
	var status string
	var validUntil sql.NullTime
	var completedAt sql.NullTime
	if err := row.Scan(
		&order.ID,
		&order.ExternalOrderID,
		&order.WalletAddress,
		&order.ReturnAddress,
		&order.Recipient.Institution,
		&order.Recipient.AccountNumber,
		&order.Recipient.AccountName,
		&order.Recipient.Memo,
		&order.AmountRequested,
		&order.LocalCurrency,
		&order.AmountLocal,
		&order.Rate,
		&order.SenderFee,
		&order.TransactionFee,
		&status,
		&order.ProviderStatus,
		&order.Payable,
		&order.DepositAddress,
		&validUntil,
		&order.TransactionHash,
		&order.CreatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	order.Status = orders.Status(status)
	order.ValidUntil = validUntil.Time
	order.CompletedAt = completedAt.Time
	return &order, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
