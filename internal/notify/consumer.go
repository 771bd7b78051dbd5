package notify

import (
	"context"
	"errors"
	"log"

	"github.com/Thedongraphix/Minisend-sub001/internal/observability/metrics"
	"github.com/Thedongraphix/Minisend-sub001/internal/orders/application"
)

// Consumer turns terminal order events into user notifications. It also
// serves the fallback timer's provisional notice, which carries no
// settlement data because nothing authoritative has confirmed yet.
type Consumer struct {
	notifier Notifier
	logger   *log.Logger
}

// NewConsumer constructs the notification consumer.
func NewConsumer(notifier Notifier, logger *log.Logger) (*Consumer, error) {
	if notifier == nil {
		return nil, errors.New("notify: nil notifier")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Consumer{notifier: notifier, logger: logger}, nil
}

// HandleDelivered notifies a successful settlement.
func (c *Consumer) HandleDelivered(ctx context.Context, ev application.OrderDelivered) error {
	err := c.notifier.Notify(ctx, Message{
		ExternalOrderID:  ev.ExternalOrderID,
		Status:           "delivered",
		LocalCurrency:    ev.LocalCurrency,
		AmountLocal:      ev.AmountLocal,
		SettlementAmount: ev.SettlementAmount,
		TransactionHash:  ev.TransactionHash,
		OccurredAt:       ev.OccurredAt,
	})
	c.count("delivered", err)
	return err
}

// HandleFailed notifies a refund or expiry.
func (c *Consumer) HandleFailed(ctx context.Context, ev application.OrderFailed) error {
	err := c.notifier.Notify(ctx, Message{
		ExternalOrderID: ev.ExternalOrderID,
		Status:          ev.FinalStatus,
		ProviderStatus:  ev.ProviderStatus,
		OccurredAt:      ev.OccurredAt,
	})
	c.count(ev.FinalStatus, err)
	return err
}

// NotifyProvisional sends the fallback window notice.
func (c *Consumer) NotifyProvisional(ctx context.Context, externalID string) error {
	err := c.notifier.Notify(ctx, Message{
		ExternalOrderID: externalID,
		Status:          "delivered",
		Provisional:     true,
	})
	c.count("provisional", err)
	return err
}

func (c *Consumer) count(kind string, err error) {
	if err != nil {
		c.logger.Printf("notify: %s notification failed: %v", kind, err)
		metrics.IncNotification(kind, metrics.ResultError)
		return
	}
	metrics.IncNotification(kind, metrics.ResultSuccess)
}
