package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
)

// OrderRepository is an in-memory order store for tests. Its CAS update
// mirrors the Postgres compare-and-set semantics.
type OrderRepository struct {
	mu     sync.Mutex
	byExt  map[string]orders.Order
	events []loggedEvent
}

type loggedEvent struct {
	Event   orders.StatusEvent
	Applied bool
	From    orders.Status
	To      orders.Status
}

// NewOrderRepository constructs an empty repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{byExt: make(map[string]orders.Order)}
}

// Create inserts an order.
func (r *OrderRepository) Create(_ context.Context, order *orders.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byExt[order.ExternalOrderID]; exists {
		return orders.ErrDuplicateExternalID
	}
	stored := *order
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.byExt[order.ExternalOrderID] = stored
	return nil
}

// GetByExternalID loads an order.
func (r *OrderRepository) GetByExternalID(_ context.Context, externalID string) (*orders.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byExt[externalID]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	copy := order
	return &copy, nil
}

// UpdateStatusIfAdvanced applies a compare-and-set transition.
func (r *OrderRepository) UpdateStatusIfAdvanced(_ context.Context, externalID string, from, to orders.Status, update orders.StatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byExt[externalID]
	if !ok {
		return false, orders.ErrOrderNotFound
	}
	if order.Status != from {
		return false, nil
	}
	order.Status = to
	order.ProviderStatus = update.ProviderStatus
	if order.TransactionHash == "" {
		order.TransactionHash = update.TransactionHash
	}
	if to == orders.StatusDelivered && order.CompletedAt.IsZero() {
		observedAt := update.ObservedAt
		if observedAt.IsZero() {
			observedAt = time.Now().UTC()
		}
		order.CompletedAt = observedAt
	}
	r.byExt[externalID] = order
	return true, nil
}

// SetAmounts applies the one-time fee correction.
func (r *OrderRepository) SetAmounts(_ context.Context, externalID string, amountLocal, senderFee, transactionFee decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byExt[externalID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	order.AmountLocal = amountLocal
	order.SenderFee = senderFee
	order.TransactionFee = transactionFee
	r.byExt[externalID] = order
	return nil
}

// SetPayable marks the order payable or not.
func (r *OrderRepository) SetPayable(_ context.Context, externalID string, payable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byExt[externalID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	order.Payable = payable
	r.byExt[externalID] = order
	return nil
}

// SetTransactionHash records the payment confirmation once.
func (r *OrderRepository) SetTransactionHash(_ context.Context, externalID, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byExt[externalID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	if order.TransactionHash == "" {
		order.TransactionHash = txHash
		r.byExt[externalID] = order
	}
	return nil
}

// ListNonTerminal lists orders still in flight.
func (r *OrderRepository) ListNonTerminal(_ context.Context, olderThan time.Time, limit int) ([]orders.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []orders.Order
	for _, order := range r.byExt {
		if order.Status.IsTerminal() {
			continue
		}
		if !order.CreatedAt.Before(olderThan) {
			continue
		}
		result = append(result, order)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Append implements the attempt log for tests.
func (r *OrderRepository) Append(_ context.Context, ev orders.StatusEvent, applied bool, from, to orders.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, loggedEvent{Event: ev, Applied: applied, From: from, To: to})
	return nil
}

// LoggedAttempts reports how many status events were archived.
func (r *OrderRepository) LoggedAttempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
