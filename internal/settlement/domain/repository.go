package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository persists settlement records.
//
// Insert must be idempotent per order id: a second insert for the same order
// reports created=false and leaves the existing record untouched. The
// uniqueness constraint on order_id is the atomic boundary, not an
// application-level check-then-insert.
type Repository interface {
	Insert(ctx context.Context, record *Record) (created bool, err error)
	GetByOrderID(ctx context.Context, orderID string) (*Record, error)
	FillSettlementAmount(ctx context.Context, orderID string, amount decimal.Decimal) error
	ListSettledBetween(ctx context.Context, from, to time.Time) ([]Record, error)
}
