package settlement

import "errors"

var (
	// ErrNilRecord is returned when saving a nil record.
	ErrNilRecord = errors.New("settlement: nil record")
	// ErrEmptyOrderID is returned when the order id is empty.
	ErrEmptyOrderID = errors.New("settlement: empty order id")
	// ErrEmptyExternalID is returned when the external order id is empty.
	ErrEmptyExternalID = errors.New("settlement: empty external order id")
	// ErrNegativeAmount is returned when the settlement amount is negative.
	ErrNegativeAmount = errors.New("settlement: negative amount")
	// ErrRecordNotFound is returned when no record exists for an order.
	ErrRecordNotFound = errors.New("settlement: not found")
)
