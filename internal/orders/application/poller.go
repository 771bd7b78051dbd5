package application

import (
	"context"
	"errors"
	"log"

	"github.com/Thedongraphix/Minisend-sub001/internal/observability/metrics"
	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
)

// EventApplier reconciles one status observation and reports the status the
// order holds afterwards.
type EventApplier interface {
	ApplyEvent(ctx context.Context, ev orders.StatusEvent) (orders.Status, error)
}

// Poller drives the active reconciliation channel: it queries the provider
// on a two-phase schedule until the order is terminal or the attempt
// ceiling is reached.
type Poller struct {
	provider ProviderAPI
	applier  EventApplier
	guard    PollGuard
	cfg      PollConfig
	clock    Clock
	logger   *log.Logger
}

// NewPoller constructs a poller. A nil guard falls back to an in-process
// one, which is only safe for single-instance deployments.
func NewPoller(providerAPI ProviderAPI, applier EventApplier, guard PollGuard, cfg PollConfig, clock Clock, logger *log.Logger) (*Poller, error) {
	if providerAPI == nil {
		return nil, errors.New("poller: nil provider client")
	}
	if applier == nil {
		return nil, errors.New("poller: nil event applier")
	}
	if guard == nil {
		guard = NewMemoryGuard()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		provider: providerAPI,
		applier:  applier,
		guard:    guard,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Run polls the provider for one order until a terminal status is observed,
// the attempt ceiling is hit, or ctx is canceled. Reaching the ceiling is a
// silent stop: passive channels keep the order reconcilable. Run returns
// immediately when another poller already holds the order.
func (p *Poller) Run(ctx context.Context, externalID string) error {
	if p == nil {
		return errors.New("poller: nil receiver")
	}
	if externalID == "" {
		return orders.ErrEmptyExternalID
	}

	release, acquired, err := p.guard.Acquire(ctx, externalID)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer release()
	metrics.AddActivePollers(1)
	defer metrics.AddActivePollers(-1)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(p.cfg.InitialDelay):
	}

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		terminal, err := p.pollOnce(ctx, externalID)
		if err != nil {
			// Transient provider or store failure: the next tick retries.
			p.logger.Printf("poller: %s attempt %d: %v", externalID, attempt, err)
			metrics.IncPollAttempts("error")
		} else {
			metrics.IncPollAttempts("ok")
		}
		if terminal {
			return nil
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		interval := p.cfg.ShortInterval
		if attempt >= p.cfg.ShortAttempts {
			interval = p.cfg.LongInterval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(interval):
		}
	}

	p.logger.Printf("poller: %s reached attempt ceiling, stopping", externalID)
	metrics.IncPollCeilings()
	return nil
}

func (p *Poller) pollOnce(ctx context.Context, externalID string) (terminal bool, err error) {
	status, err := p.provider.GetOrder(ctx, externalID)
	if err != nil {
		return false, err
	}

	ev := orders.StatusEvent{
		ExternalOrderID:  externalID,
		RawStatus:        status.Status,
		Source:           orders.SourcePoll,
		TransactionHash:  status.TxHash,
		ProviderID:       status.ProviderID,
		SettlementAmount: status.SettlementAmount,
		ObservedAt:       status.UpdatedAt,
	}
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = p.clock.Now().UTC()
	}

	stored, err := p.applier.ApplyEvent(ctx, ev)
	if err != nil {
		return false, err
	}
	return stored.IsTerminal(), nil
}
