package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderDelivered is emitted on the first accepted transition into delivered.
type OrderDelivered struct {
	OrderID          string
	ExternalOrderID  string
	LocalCurrency    string
	AmountLocal      decimal.Decimal
	SettlementAmount decimal.Decimal
	TransactionHash  string
	ProviderID       string
	OccurredAt       time.Time
}

// OrderFailed is emitted on an accepted transition into refunded or expired.
type OrderFailed struct {
	OrderID         string
	ExternalOrderID string
	FinalStatus     string
	ProviderStatus  string
	OccurredAt      time.Time
}
