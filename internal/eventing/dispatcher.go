package eventing

import (
	"context"
)

// Dispatcher drains the outbox onto the in-process bus. Terminal order
// events (delivered, failed) flow through here on their way to the
// settlement recorder and the notifier.
type Dispatcher struct {
	bus      EventBus
	outbox   OutboxStore
	registry *Registry
	dlq      DLQStore
}

// EventBus is the minimal publish interface.
type EventBus interface {
	Publish(ctx context.Context, event any) error
}

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore keeps events whose decode or delivery failed, so a stuck
// settlement or notification can be replayed by hand.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord is one undelivered outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore) *Dispatcher {
	return &Dispatcher{bus: bus, outbox: outbox, registry: registry, dlq: dlq}
}

// Dispatch delivers up to limit pending outbox events. Called inline after
// each publish and again from the redelivery ticker, so an event that failed
// at publish time is retried until it lands in the DLQ.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) error {
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		return err
	}

	for _, record := range records {
		env := record.Envelope
		payload, err := d.registry.DecodePayload(env)
		if err != nil {
			d.fail(ctx, record.ID, env, err)
			continue
		}

		if err := d.bus.Publish(WithEnvelope(ctx, env), payload); err != nil {
			d.fail(ctx, record.ID, env, err)
			continue
		}

		_ = d.outbox.MarkSent(ctx, record.ID)
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, id string, env Envelope, err error) {
	_ = d.outbox.MarkFailed(ctx, id)
	if d.dlq != nil {
		_ = d.dlq.RecordFailure(ctx, env, err)
	}
}
