package notify

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Message is a user-facing order outcome notification.
type Message struct {
	ExternalOrderID  string          `json:"external_order_id"`
	Status           string          `json:"status"`
	Provisional      bool            `json:"provisional,omitempty"`
	LocalCurrency    string          `json:"local_currency,omitempty"`
	AmountLocal      decimal.Decimal `json:"amount_local,omitempty"`
	SettlementAmount decimal.Decimal `json:"settlement_amount,omitempty"`
	TransactionHash  string          `json:"transaction_hash,omitempty"`
	ProviderStatus   string          `json:"provider_status,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi fans one message out to several notifiers. Every notifier is
// attempted; failures are joined.
type Multi []Notifier

// Notify sends msg to all notifiers.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
