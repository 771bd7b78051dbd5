package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the authoritative lifecycle state of a payout order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDelivered  Status = "delivered"
	StatusRefunded   Status = "refunded"
	StatusExpired    Status = "expired"
)

// Rank orders statuses for transition decisions. Terminal states share the
// top rank: the first terminal event wins and later ones never replace it.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusDelivered, StatusRefunded, StatusExpired:
		return 2
	}
	return -1
}

// IsTerminal reports whether no further transitions are accepted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusRefunded, StatusExpired:
		return true
	}
	return false
}

// IsValid reports whether the status belongs to the enumeration.
func (s Status) IsValid() bool {
	return s.Rank() >= 0
}

// Order is a single request to convert a stablecoin amount into
// local-currency funds for a recipient.
type Order struct {
	ID              string
	ExternalOrderID string
	WalletAddress   string
	ReturnAddress   string
	Recipient       Recipient

	AmountRequested decimal.Decimal
	LocalCurrency   string
	AmountLocal     decimal.Decimal
	Rate            decimal.Decimal
	SenderFee       decimal.Decimal
	TransactionFee  decimal.Decimal

	Status          Status
	ProviderStatus  string
	Payable         bool
	DepositAddress  string
	ValidUntil      time.Time
	TransactionHash string

	CreatedAt   time.Time
	CompletedAt time.Time
}

// Recipient describes the mobile-money or bank destination.
type Recipient struct {
	Institution   string
	AccountNumber string
	AccountName   string
	Memo          string
}

// TotalRequired is the amount the wallet must hold to fund the order.
func (o *Order) TotalRequired() decimal.Decimal {
	return o.AmountRequested.Add(o.SenderFee).Add(o.TransactionFee)
}

// Validate checks the fields set at creation time.
func (o *Order) Validate() error {
	if o == nil {
		return ErrNilOrder
	}
	if o.ExternalOrderID == "" {
		return ErrEmptyExternalID
	}
	if o.WalletAddress == "" {
		return ErrEmptyWallet
	}
	if o.AmountRequested.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if o.LocalCurrency == "" {
		return ErrEmptyCurrency
	}
	if o.Recipient.Institution == "" || o.Recipient.AccountNumber == "" {
		return ErrInvalidRecipient
	}
	if !o.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}
