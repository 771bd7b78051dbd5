package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	settlement "github.com/Thedongraphix/Minisend-sub001/internal/settlement/domain"
)

// RecordRepository is an in-memory settlement repository for tests.
type RecordRepository struct {
	mu      sync.Mutex
	records map[string]settlement.Record
}

// NewRecordRepository constructs an empty repository.
func NewRecordRepository() *RecordRepository {
	return &RecordRepository{records: make(map[string]settlement.Record)}
}

// Insert stores a record once per order id.
func (r *RecordRepository) Insert(_ context.Context, record *settlement.Record) (bool, error) {
	if record == nil {
		return false, settlement.ErrNilRecord
	}
	if err := record.Validate(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.OrderID]; exists {
		return false, nil
	}
	stored := *record
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.records[record.OrderID] = stored
	return true, nil
}

// GetByOrderID loads a record.
func (r *RecordRepository) GetByOrderID(_ context.Context, orderID string) (*settlement.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[orderID]
	if !ok {
		return nil, settlement.ErrRecordNotFound
	}
	copy := record
	return &copy, nil
}

// FillSettlementAmount sets a missing amount.
func (r *RecordRepository) FillSettlementAmount(_ context.Context, orderID string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[orderID]
	if !ok {
		return settlement.ErrRecordNotFound
	}
	if record.SettlementAmount.IsZero() {
		record.SettlementAmount = amount
		r.records[orderID] = record
	}
	return nil
}

// ListSettledBetween lists records in a time range.
func (r *RecordRepository) ListSettledBetween(_ context.Context, from, to time.Time) ([]settlement.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []settlement.Record
	for _, record := range r.records {
		if !record.SettledAt.Before(from) && record.SettledAt.Before(to) {
			result = append(result, record)
		}
	}
	return result, nil
}

// Count reports the number of stored records.
func (r *RecordRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
