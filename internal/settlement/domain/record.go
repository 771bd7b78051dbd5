package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the durable proof that funds were confirmed delivered for an
// order. At most one record exists per order id.
type Record struct {
	OrderID          string
	ExternalOrderID  string
	LocalCurrency    string
	SettlementAmount decimal.Decimal
	TransactionHash  string
	ProviderID       string
	SettledAt        time.Time
	CreatedAt        time.Time
}

// Validate checks identity fields before insert.
func (r *Record) Validate() error {
	if r == nil {
		return ErrNilRecord
	}
	if r.OrderID == "" {
		return ErrEmptyOrderID
	}
	if r.ExternalOrderID == "" {
		return ErrEmptyExternalID
	}
	if r.SettlementAmount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}
