package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StatusUpdate carries the fields written alongside an accepted transition.
type StatusUpdate struct {
	ProviderStatus   string
	TransactionHash  string
	SettlementAmount decimal.Decimal
	ObservedAt       time.Time
}

// Repository persists payout orders.
//
// UpdateStatusIfAdvanced is the single atomic boundary for transitions: it
// must compare-and-set against the expected current status so that two
// racing terminal events cannot both win.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	UpdateStatusIfAdvanced(ctx context.Context, externalID string, from, to Status, update StatusUpdate) (bool, error)
	SetAmounts(ctx context.Context, externalID string, amountLocal, senderFee, transactionFee decimal.Decimal) error
	SetPayable(ctx context.Context, externalID string, payable bool) error
	SetTransactionHash(ctx context.Context, externalID, txHash string) error
	ListNonTerminal(ctx context.Context, olderThan time.Time, limit int) ([]Order, error)
}

// AttemptLogger archives status events append-only for diagnostics.
type AttemptLogger interface {
	Append(ctx context.Context, ev StatusEvent, applied bool, from, to Status) error
}
