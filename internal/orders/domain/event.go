package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventSource identifies which channel observed a status.
type EventSource string

const (
	SourceWebhook  EventSource = "webhook"
	SourcePoll     EventSource = "poll"
	SourceFallback EventSource = "fallback-timer"
)

// StatusEvent is a single status observation from one channel. It is
// consumed once by Reduce and archived to the attempt log for diagnostics;
// it is never read back for control decisions.
type StatusEvent struct {
	Source           EventSource
	ExternalOrderID  string
	RawStatus        string
	ObservedAt       time.Time
	TransactionHash  string
	ProviderID       string
	SettlementAmount decimal.Decimal
}

// providerStatusTable maps the provider's event vocabulary onto the internal
// enumeration. "validated" and "settled" are equivalent delivery signals:
// providers may emit either, both, or out of order.
var providerStatusTable = map[string]Status{
	"initiated":               StatusPending,
	"payment_order.initiated": StatusPending,
	"pending":                 StatusProcessing,
	"payment_order.pending":   StatusProcessing,
	"processing":              StatusProcessing,
	"validated":               StatusDelivered,
	"payment_order.validated": StatusDelivered,
	"settled":                 StatusDelivered,
	"payment_order.settled":   StatusDelivered,
	"fulfilled":               StatusDelivered,
	"refunded":                StatusRefunded,
	"payment_order.refunded":  StatusRefunded,
	"expired":                 StatusExpired,
	"payment_order.expired":   StatusExpired,
}

// MapProviderStatus resolves a raw provider status name. Unknown names
// return ok=false and must be ignored, not treated as errors.
func MapProviderStatus(raw string) (Status, bool) {
	status, ok := providerStatusTable[raw]
	return status, ok
}
