package orders

import "errors"

var (
	// ErrNilOrder is returned when an order is nil.
	ErrNilOrder = errors.New("orders: nil order")
	// ErrEmptyExternalID is returned when the provider order id is missing.
	ErrEmptyExternalID = errors.New("orders: empty external order id")
	// ErrEmptyWallet is returned when the wallet address is missing.
	ErrEmptyWallet = errors.New("orders: empty wallet address")
	// ErrInvalidAmount is returned when the requested amount is not positive.
	ErrInvalidAmount = errors.New("orders: invalid amount")
	// ErrEmptyCurrency is returned when the local currency code is missing.
	ErrEmptyCurrency = errors.New("orders: empty local currency")
	// ErrInvalidRecipient is returned when recipient fields are incomplete.
	ErrInvalidRecipient = errors.New("orders: invalid recipient")
	// ErrInvalidStatus is returned when a status is outside the enumeration.
	ErrInvalidStatus = errors.New("orders: invalid status")
	// ErrOrderNotFound is returned when no order matches the external id.
	ErrOrderNotFound = errors.New("orders: not found")
	// ErrDuplicateExternalID is returned when the external id already exists.
	ErrDuplicateExternalID = errors.New("orders: duplicate external order id")
)
