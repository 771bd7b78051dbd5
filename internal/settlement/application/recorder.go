package application

import (
	"context"
	"errors"
	"log"

	"github.com/Thedongraphix/Minisend-sub001/internal/observability/metrics"
	"github.com/Thedongraphix/Minisend-sub001/internal/orders/application"
	settlement "github.com/Thedongraphix/Minisend-sub001/internal/settlement/domain"
)

// Recorder writes one settlement record for each delivered order. Replays
// and cross-channel duplicates collapse on the store's order uniqueness
// rule, so consuming the same delivery twice is harmless.
type Recorder struct {
	repo   settlement.Repository
	logger *log.Logger
}

// NewRecorder constructs the settlement recorder.
func NewRecorder(repo settlement.Repository, logger *log.Logger) (*Recorder, error) {
	if repo == nil {
		return nil, errors.New("settlement recorder: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{repo: repo, logger: logger}, nil
}

// HandleDelivered records the settlement for a delivered order.
func (r *Recorder) HandleDelivered(ctx context.Context, ev application.OrderDelivered) error {
	record := &settlement.Record{
		OrderID:          ev.OrderID,
		ExternalOrderID:  ev.ExternalOrderID,
		LocalCurrency:    ev.LocalCurrency,
		SettlementAmount: ev.SettlementAmount,
		TransactionHash:  ev.TransactionHash,
		ProviderID:       ev.ProviderID,
		SettledAt:        ev.OccurredAt,
	}
	if err := record.Validate(); err != nil {
		return err
	}

	created, err := r.repo.Insert(ctx, record)
	if err != nil {
		metrics.IncSettlementRecord("error")
		return err
	}
	if !created {
		metrics.IncSettlementRecord("duplicate")
		r.logger.Printf("settlement recorder: order %s already recorded", ev.ExternalOrderID)
		// A duplicate may still complete a record written without an
		// amount, when an earlier channel reported no settlement figure.
		if ev.SettlementAmount.IsPositive() {
			if err := r.repo.FillSettlementAmount(ctx, ev.OrderID, ev.SettlementAmount); err != nil {
				return err
			}
		}
		return nil
	}
	metrics.IncSettlementRecord("created")
	return nil
}
