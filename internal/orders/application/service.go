package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Thedongraphix/Minisend-sub001/internal/eventing"
	"github.com/Thedongraphix/Minisend-sub001/internal/observability/metrics"
	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
	"github.com/Thedongraphix/Minisend-sub001/internal/provider"
)

// ErrOrderNotPayable is returned when the exact-fee check after creation
// failed: the order exists for audit but must not be presented as payable.
var ErrOrderNotPayable = errors.New("orders: not payable")

// InsufficientBalanceError reports how much the wallet is short.
type InsufficientBalanceError struct {
	Shortfall decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("orders: insufficient balance, short %s", e.Shortfall.String())
}

// ProviderAPI is the outbound surface of the settlement provider.
type ProviderAPI interface {
	CreateOrder(ctx context.Context, req provider.CreateOrderRequest) (*provider.CreatedOrder, error)
	GetOrder(ctx context.Context, externalID string) (*provider.OrderStatus, error)
}

// EventPublisher emits terminal-state events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// CreateOrderInput carries the admission request.
type CreateOrderInput struct {
	WalletAddress string
	ReturnAddress string
	Amount        decimal.Decimal
	Token         string
	Network       string
	Rate          decimal.Decimal
	LocalCurrency string
	Recipient     orders.Recipient
}

// Service owns the order lifecycle: admission, reconciliation of status
// events from all channels, and terminal-effect fan-out.
type Service struct {
	repo      orders.Repository
	attempts  orders.AttemptLogger
	gate      *BalanceGate
	provider  ProviderAPI
	publisher EventPublisher
	cfg       Config
	clock     Clock
	logger    *log.Logger

	poller   *Poller
	fallback *FallbackTimer
}

// NewService constructs the reconciliation service.
func NewService(
	repo orders.Repository,
	attempts orders.AttemptLogger,
	gate *BalanceGate,
	providerAPI ProviderAPI,
	publisher EventPublisher,
	cfg Config,
	clock Clock,
	logger *log.Logger,
) (*Service, error) {
	if repo == nil {
		return nil, errors.New("order service: nil repository")
	}
	if gate == nil {
		return nil, errors.New("order service: nil balance gate")
	}
	if providerAPI == nil {
		return nil, errors.New("order service: nil provider client")
	}
	if publisher == nil {
		return nil, errors.New("order service: nil publisher")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:      repo,
		attempts:  attempts,
		gate:      gate,
		provider:  providerAPI,
		publisher: publisher,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Attach wires the poller and fallback timer after construction; both feed
// events back into this service.
func (s *Service) Attach(poller *Poller, fallback *FallbackTimer) {
	if s == nil {
		return
	}
	s.poller = poller
	s.fallback = fallback
}

// EstimateFees applies the conservative fee model used before the provider
// has quoted exact fees.
func (s *Service) EstimateFees(amount decimal.Decimal) (senderFee, transactionFee decimal.Decimal) {
	senderFee = amount.Mul(s.cfg.Fees.SenderFeePercent).Div(decimal.NewFromInt(100))
	transactionFee = s.cfg.Fees.TransactionFeeFlat
	return senderFee, transactionFee
}

// CreateOrder admits and registers a payout order.
//
// The balance gate runs twice: estimate-based before the provider call
// (fail fast, no side effects) and exact-based right after (the provider
// quotes fees only at creation). A post-creation failure keeps the order
// for audit but marks it not payable and starts no reconciliation.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*orders.Order, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, orders.ErrInvalidAmount
	}
	if input.WalletAddress == "" {
		return nil, orders.ErrEmptyWallet
	}
	if input.Recipient.Institution == "" || input.Recipient.AccountNumber == "" {
		return nil, orders.ErrInvalidRecipient
	}
	if input.LocalCurrency == "" {
		return nil, orders.ErrEmptyCurrency
	}

	estSenderFee, estTransactionFee := s.EstimateFees(input.Amount)
	estimate := input.Amount.Add(estSenderFee).Add(estTransactionFee)
	result, err := s.gate.Validate(ctx, input.WalletAddress, estimate)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		metrics.IncGateCheck("insufficient")
		return nil, &InsufficientBalanceError{Shortfall: result.Shortfall}
	}
	metrics.IncGateCheck("ok")

	reference := uuid.NewString()
	created, err := s.provider.CreateOrder(ctx, provider.CreateOrderRequest{
		Amount:  input.Amount,
		Token:   input.Token,
		Network: input.Network,
		Rate:    input.Rate,
		Recipient: provider.Recipient{
			Institution:       input.Recipient.Institution,
			AccountIdentifier: input.Recipient.AccountNumber,
			AccountName:       input.Recipient.AccountName,
			Memo:              input.Recipient.Memo,
		},
		Reference:     reference,
		ReturnAddress: input.ReturnAddress,
	})
	if err != nil {
		metrics.IncOrdersCreated("provider_error")
		return nil, fmt.Errorf("order service: provider create: %w", err)
	}

	order := &orders.Order{
		ID:              uuid.NewString(),
		ExternalOrderID: created.ID,
		WalletAddress:   input.WalletAddress,
		ReturnAddress:   input.ReturnAddress,
		Recipient:       input.Recipient,
		AmountRequested: input.Amount,
		LocalCurrency:   input.LocalCurrency,
		AmountLocal:     created.AmountLocal,
		Rate:            input.Rate,
		SenderFee:       created.SenderFee,
		TransactionFee:  created.TransactionFee,
		Status:          orders.StatusPending,
		Payable:         true,
		DepositAddress:  created.ReceiveAddress,
		ValidUntil:      created.ValidUntil,
		CreatedAt:       s.clock.Now().UTC(),
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("order service: persist: %w", err)
	}

	// Second, stricter check against the provider's exact fees.
	exact := order.TotalRequired()
	result, err = s.gate.Validate(ctx, input.WalletAddress, exact)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		metrics.IncGateCheck("insufficient_exact")
		if err := s.repo.SetPayable(ctx, order.ExternalOrderID, false); err != nil {
			s.logger.Printf("order service: mark not payable %s: %v", order.ExternalOrderID, err)
		}
		order.Payable = false
		metrics.IncOrdersCreated("not_payable")
		return order, ErrOrderNotPayable
	}

	metrics.IncOrdersCreated("ok")
	return order, nil
}

// ConfirmPayment records the externally confirmed on-chain payment and
// starts the poller and fallback timer for the order.
func (s *Service) ConfirmPayment(ctx context.Context, externalID, txHash string) error {
	order, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if !order.Payable {
		return ErrOrderNotPayable
	}
	if txHash == "" {
		return errors.New("order service: empty transaction hash")
	}
	if err := s.repo.SetTransactionHash(ctx, externalID, txHash); err != nil {
		return err
	}

	s.StartReconciliation(externalID)
	return nil
}

// StartReconciliation launches the polling loop and fallback timer. Both
// are detached from the caller's request context; the poll guard prevents a
// second concurrent loop when this is triggered redundantly.
func (s *Service) StartReconciliation(externalID string) {
	if s.poller != nil {
		go func() {
			if err := s.poller.Run(context.Background(), externalID); err != nil {
				s.logger.Printf("order service: poller %s: %v", externalID, err)
			}
		}()
	}
	if s.fallback != nil {
		s.fallback.Start(externalID)
	}
}

// GetOrder loads an order by external id.
func (s *Service) GetOrder(ctx context.Context, externalID string) (*orders.Order, error) {
	return s.repo.GetByExternalID(ctx, externalID)
}

// ApplyEvent feeds one status observation through the reducer and commits
// the accepted transition with a compare-and-set. An event for an unknown
// order is logged and dropped, never an error: it likely belongs to another
// system instance or a stale test hook.
func (s *Service) ApplyEvent(ctx context.Context, ev orders.StatusEvent) (orders.Status, error) {
	if ev.ExternalOrderID == "" {
		return "", orders.ErrEmptyExternalID
	}

	for {
		order, err := s.repo.GetByExternalID(ctx, ev.ExternalOrderID)
		if err != nil {
			if errors.Is(err, orders.ErrOrderNotFound) {
				s.logger.Printf("reconcile: dropping %s event for unknown order %s", ev.Source, ev.ExternalOrderID)
				metrics.IncEventsDropped("unknown_order")
				return "", nil
			}
			return "", err
		}

		red := orders.Reduce(order.Status, ev)
		s.logAttempt(ctx, ev, red.Transitioned, order.Status, red.Next)

		if !red.Transitioned {
			if order.Status.IsTerminal() {
				// Informational only: a late event for a settled order.
				s.logger.Printf("reconcile: %s event %q for terminal order %s ignored", ev.Source, ev.RawStatus, ev.ExternalOrderID)
			}
			return order.Status, nil
		}

		won, err := s.repo.UpdateStatusIfAdvanced(ctx, ev.ExternalOrderID, order.Status, red.Next, orders.StatusUpdate{
			ProviderStatus:   ev.RawStatus,
			TransactionHash:  ev.TransactionHash,
			SettlementAmount: ev.SettlementAmount,
			ObservedAt:       ev.ObservedAt,
		})
		if err != nil {
			return "", err
		}
		if !won {
			// Another channel advanced the order first; re-read and re-reduce.
			continue
		}

		metrics.IncTransitions(string(order.Status), string(red.Next))
		if red.Next.IsTerminal() && s.fallback != nil {
			s.fallback.Cancel(ev.ExternalOrderID)
		}
		if err := s.publishEffects(ctx, order, ev, red); err != nil {
			// The transition is committed; effect delivery retries via outbox.
			s.logger.Printf("reconcile: publish effects for %s: %v", ev.ExternalOrderID, err)
		}
		return red.Next, nil
	}
}

func (s *Service) logAttempt(ctx context.Context, ev orders.StatusEvent, applied bool, from, to orders.Status) {
	if s.attempts == nil {
		return
	}
	if err := s.attempts.Append(ctx, ev, applied, from, to); err != nil {
		s.logger.Printf("reconcile: attempt log: %v", err)
	}
}

func (s *Service) publishEffects(ctx context.Context, order *orders.Order, ev orders.StatusEvent, red orders.Reduction) error {
	if !red.Notify && !red.CreateSettlement {
		return nil
	}
	ctx = eventing.WithExternalOrderID(ctx, order.ExternalOrderID)
	occurredAt := ev.ObservedAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now().UTC()
	}

	if red.Next == orders.StatusDelivered {
		settlementAmount := ev.SettlementAmount
		if settlementAmount.LessThanOrEqual(decimal.Zero) {
			settlementAmount = order.AmountLocal
		}
		txHash := ev.TransactionHash
		if txHash == "" {
			txHash = order.TransactionHash
		}
		return s.publisher.Publish(ctx, OrderDelivered{
			OrderID:          order.ID,
			ExternalOrderID:  order.ExternalOrderID,
			LocalCurrency:    order.LocalCurrency,
			AmountLocal:      order.AmountLocal,
			SettlementAmount: settlementAmount,
			TransactionHash:  txHash,
			ProviderID:       ev.ProviderID,
			OccurredAt:       occurredAt,
		})
	}

	return s.publisher.Publish(ctx, OrderFailed{
		OrderID:         order.ID,
		ExternalOrderID: order.ExternalOrderID,
		FinalStatus:     string(red.Next),
		ProviderStatus:  ev.RawStatus,
		OccurredAt:      occurredAt,
	})
}

// PresentedStatus maps the stored status to what the user may see: only
// terminal states are final, everything else is still in progress.
func PresentedStatus(order *orders.Order) string {
	if order == nil {
		return "processing"
	}
	if order.Status.IsTerminal() {
		return string(order.Status)
	}
	return "processing"
}

// ResumePending restarts reconciliation for non-terminal orders after a
// process restart.
func (s *Service) ResumePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	pending, err := s.repo.ListNonTerminal(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}
	for _, order := range pending {
		if order.TransactionHash == "" {
			continue
		}
		s.StartReconciliation(order.ExternalOrderID)
	}
	return len(pending), nil
}
