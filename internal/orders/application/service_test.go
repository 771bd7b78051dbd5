package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
	"github.com/Thedongraphix/Minisend-sub001/internal/orders/infrastructure/memory"
	"github.com/Thedongraphix/Minisend-sub001/internal/provider"
)

type stubProvider struct {
	mu          sync.Mutex
	created     []provider.CreateOrderRequest
	createErr   error
	orderStatus *provider.OrderStatus
}

func (p *stubProvider) CreateOrder(_ context.Context, req provider.CreateOrderRequest) (*provider.CreatedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, req)
	return &provider.CreatedOrder{
		ID:             "po-123",
		ReceiveAddress: "0xdeposit",
		ValidUntil:     time.Unix(1700000600, 0).UTC(),
		AmountLocal:    dec("1450"),
		SenderFee:      dec("0.1"),
		TransactionFee: dec("0.05"),
	}, nil
}

func (p *stubProvider) GetOrder(_ context.Context, externalID string) (*provider.OrderStatus, error) {
	if p.orderStatus == nil {
		return &provider.OrderStatus{ID: externalID, Status: "processing"}, nil
	}
	return p.orderStatus, nil
}

func (p *stubProvider) createCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.created)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *capturePublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) all() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]any, len(p.events))
	copy(out, p.events)
	return out
}

func testConfig() Config {
	return Config{
		Poll:           testPollConfig(),
		FallbackWindow: 90 * time.Second,
		Fees: FeeEstimate{
			SenderFeePercent:   dec("0.5"),
			TransactionFeeFlat: dec("0.05"),
		},
		BalanceFailOpen: true,
	}
}

func newTestService(t *testing.T, reader *stubReader, providerAPI *stubProvider) (*Service, *memory.OrderRepository, *capturePublisher) {
	t.Helper()
	repo := memory.NewOrderRepository()
	gate, err := NewBalanceGate(reader, true, testLogger())
	if err != nil {
		t.Fatalf("NewBalanceGate: %v", err)
	}
	publisher := &capturePublisher{}
	svc, err := NewService(repo, repo, gate, providerAPI, publisher, testConfig(), instantClock{}, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo, publisher
}

func validInput() CreateOrderInput {
	return CreateOrderInput{
		WalletAddress: "0xwallet",
		ReturnAddress: "0xreturn",
		Amount:        dec("10"),
		Token:         "USDC",
		Network:       "base",
		Rate:          dec("145"),
		LocalCurrency: "KES",
		Recipient: orders.Recipient{
			Institution:   "SAFAKEPC",
			AccountNumber: "254700000000",
			AccountName:   "Jane Doe",
		},
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	providerAPI := &stubProvider{}
	svc, _, _ := newTestService(t, &stubReader{balance: dec("10.15")}, providerAPI)

	order, err := svc.CreateOrder(context.Background(), validInput())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ExternalOrderID != "po-123" {
		t.Fatalf("external id = %s", order.ExternalOrderID)
	}
	if !order.Payable {
		t.Fatal("order must be payable")
	}
	if got, want := order.TotalRequired().String(), "10.15"; got != want {
		t.Fatalf("total required = %s, want %s", got, want)
	}
	if order.Status != orders.StatusPending {
		t.Fatalf("status = %s, want pending", order.Status)
	}
	if order.DepositAddress != "0xdeposit" {
		t.Fatalf("deposit address = %s", order.DepositAddress)
	}
	if providerAPI.createCalls() != 1 {
		t.Fatalf("provider create calls = %d, want 1", providerAPI.createCalls())
	}
}

func TestCreateOrderBlockedBeforeProviderCall(t *testing.T) {
	providerAPI := &stubProvider{}
	svc, _, _ := newTestService(t, &stubReader{balance: dec("5")}, providerAPI)

	_, err := svc.CreateOrder(context.Background(), validInput())
	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientBalanceError", err)
	}
	if providerAPI.createCalls() != 0 {
		t.Fatal("pre-check failure must not reach the provider")
	}
}

func TestCreateOrderNotPayableOnExactFeeShortfall(t *testing.T) {
	providerAPI := &stubProvider{}
	// Passes the 0.5% estimate (10.10 required) but not the provider's
	// exact fees (10.15 required).
	svc, repo, _ := newTestService(t, &stubReader{balance: dec("10.10")}, providerAPI)

	order, err := svc.CreateOrder(context.Background(), validInput())
	if !errors.Is(err, ErrOrderNotPayable) {
		t.Fatalf("err = %v, want ErrOrderNotPayable", err)
	}
	if order == nil {
		t.Fatal("order must be returned for audit even when not payable")
	}
	stored, err := repo.GetByExternalID(context.Background(), order.ExternalOrderID)
	if err != nil {
		t.Fatalf("GetByExternalID: %v", err)
	}
	if stored.Payable {
		t.Fatal("stored order must be marked not payable")
	}
}

func seedOrder(t *testing.T, repo *memory.OrderRepository) *orders.Order {
	t.Helper()
	order := &orders.Order{
		ID:              "local-1",
		ExternalOrderID: "po-123",
		WalletAddress:   "0xwallet",
		Recipient: orders.Recipient{
			Institution:   "SAFAKEPC",
			AccountNumber: "254700000000",
		},
		AmountRequested: dec("10"),
		LocalCurrency:   "KES",
		AmountLocal:     dec("1450"),
		SenderFee:       dec("0.1"),
		TransactionFee:  dec("0.05"),
		Status:          orders.StatusPending,
		Payable:         true,
		CreatedAt:       time.Unix(1700000000, 0).UTC(),
	}
	if err := repo.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func TestApplyEventDeliveredPublishesOnce(t *testing.T) {
	svc, repo, publisher := newTestService(t, &stubReader{balance: dec("100")}, &stubProvider{})
	seedOrder(t, repo)

	ev := orders.StatusEvent{
		ExternalOrderID: "po-123",
		RawStatus:       "validated",
		Source:          orders.SourceWebhook,
		TransactionHash: "0xsettletx",
		ObservedAt:      time.Unix(1700000100, 0).UTC(),
	}
	status, err := svc.ApplyEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if status != orders.StatusDelivered {
		t.Fatalf("status = %s, want delivered", status)
	}

	events := publisher.all()
	if len(events) != 1 {
		t.Fatalf("published = %d, want 1", len(events))
	}
	delivered, ok := events[0].(OrderDelivered)
	if !ok {
		t.Fatalf("event type = %T, want OrderDelivered", events[0])
	}
	if got, want := delivered.SettlementAmount.String(), "1450"; got != want {
		t.Fatalf("settlement amount = %s, want amountLocal %s", got, want)
	}

	// A later equivalent terminal report is a no-op.
	late := ev
	late.RawStatus = "settled"
	late.Source = orders.SourcePoll
	status, err = svc.ApplyEvent(context.Background(), late)
	if err != nil {
		t.Fatalf("ApplyEvent late: %v", err)
	}
	if status != orders.StatusDelivered {
		t.Fatalf("late status = %s, want delivered", status)
	}
	if got := len(publisher.all()); got != 1 {
		t.Fatalf("late event must not publish again, published = %d", got)
	}
}

func TestApplyEventFirstTerminalWins(t *testing.T) {
	svc, repo, publisher := newTestService(t, &stubReader{balance: dec("100")}, &stubProvider{})
	seedOrder(t, repo)

	refund := orders.StatusEvent{
		ExternalOrderID: "po-123",
		RawStatus:       "refunded",
		Source:          orders.SourceWebhook,
		ObservedAt:      time.Unix(1700000100, 0).UTC(),
	}
	if _, err := svc.ApplyEvent(context.Background(), refund); err != nil {
		t.Fatalf("ApplyEvent refund: %v", err)
	}

	delivered := refund
	delivered.RawStatus = "settled"
	status, err := svc.ApplyEvent(context.Background(), delivered)
	if err != nil {
		t.Fatalf("ApplyEvent delivered: %v", err)
	}
	if status != orders.StatusRefunded {
		t.Fatalf("status = %s, refund must stick", status)
	}

	events := publisher.all()
	if len(events) != 1 {
		t.Fatalf("published = %d, want 1", len(events))
	}
	if _, ok := events[0].(OrderFailed); !ok {
		t.Fatalf("event type = %T, want OrderFailed", events[0])
	}
}

func TestApplyEventExpiredLeavesCompletedAtUnset(t *testing.T) {
	svc, repo, publisher := newTestService(t, &stubReader{balance: dec("100")}, &stubProvider{})
	seedOrder(t, repo)

	ev := orders.StatusEvent{
		ExternalOrderID: "po-123",
		RawStatus:       "expired",
		Source:          orders.SourcePoll,
		ObservedAt:      time.Unix(1700000100, 0).UTC(),
	}
	if _, err := svc.ApplyEvent(context.Background(), ev); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	stored, err := repo.GetByExternalID(context.Background(), "po-123")
	if err != nil {
		t.Fatalf("GetByExternalID: %v", err)
	}
	if stored.Status != orders.StatusExpired {
		t.Fatalf("status = %s, want expired", stored.Status)
	}
	if !stored.CompletedAt.IsZero() {
		t.Fatal("expired orders must not carry a completion time")
	}

	events := publisher.all()
	if len(events) != 1 {
		t.Fatalf("published = %d, want 1", len(events))
	}
	failed, ok := events[0].(OrderFailed)
	if !ok {
		t.Fatalf("event type = %T, want OrderFailed", events[0])
	}
	if failed.FinalStatus != "expired" {
		t.Fatalf("final status = %s", failed.FinalStatus)
	}
}

func TestApplyEventUnknownOrderDropped(t *testing.T) {
	svc, _, publisher := newTestService(t, &stubReader{balance: dec("100")}, &stubProvider{})

	status, err := svc.ApplyEvent(context.Background(), orders.StatusEvent{
		ExternalOrderID: "po-missing",
		RawStatus:       "settled",
		Source:          orders.SourceWebhook,
	})
	if err != nil {
		t.Fatalf("unknown order must be dropped, got %v", err)
	}
	if status != "" {
		t.Fatalf("status = %q, want empty", status)
	}
	if got := len(publisher.all()); got != 0 {
		t.Fatalf("published = %d, want 0", got)
	}
}

func TestApplyEventUnknownStatusIgnored(t *testing.T) {
	svc, repo, publisher := newTestService(t, &stubReader{balance: dec("100")}, &stubProvider{})
	seedOrder(t, repo)

	status, err := svc.ApplyEvent(context.Background(), orders.StatusEvent{
		ExternalOrderID: "po-123",
		RawStatus:       "totally_new_state",
		Source:          orders.SourceWebhook,
	})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if status != orders.StatusPending {
		t.Fatalf("status = %s, want pending untouched", status)
	}
	if got := len(publisher.all()); got != 0 {
		t.Fatalf("published = %d, want 0", got)
	}
}

func TestApplyEventCancelsFallbackOnTerminal(t *testing.T) {
	svc, repo, _ := newTestService(t, &stubReader{balance: dec("100")}, &stubProvider{})
	seedOrder(t, repo)

	notifier := &captureProvisional{}
	fallback := NewFallbackTimer(90*time.Second, notifier, stuckClock{}, testLogger())
	svc.Attach(nil, fallback)

	fallback.Start("po-123")
	if !fallback.Pending("po-123") {
		t.Fatal("fallback window must be armed")
	}

	if _, err := svc.ApplyEvent(context.Background(), orders.StatusEvent{
		ExternalOrderID: "po-123",
		RawStatus:       "settled",
		Source:          orders.SourceWebhook,
	}); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if fallback.Pending("po-123") {
		t.Fatal("terminal transition must disarm the fallback window")
	}
}

func TestApplyEventLogsEveryAttempt(t *testing.T) {
	svc, repo, _ := newTestService(t, &stubReader{balance: dec("100")}, &stubProvider{})
	seedOrder(t, repo)

	apply := func(raw string) {
		t.Helper()
		if _, err := svc.ApplyEvent(context.Background(), orders.StatusEvent{
			ExternalOrderID: "po-123",
			RawStatus:       raw,
			Source:          orders.SourcePoll,
		}); err != nil {
			t.Fatalf("ApplyEvent %s: %v", raw, err)
		}
	}
	apply("pending")
	apply("processing")
	apply("settled")
	apply("settled")

	if got := repo.LoggedAttempts(); got != 4 {
		t.Fatalf("logged attempts = %d, want 4", got)
	}
}

func TestConfirmPaymentRequiresPayableOrder(t *testing.T) {
	svc, repo, _ := newTestService(t, &stubReader{balance: dec("100")}, &stubProvider{})
	order := seedOrder(t, repo)

	if err := repo.SetPayable(context.Background(), order.ExternalOrderID, false); err != nil {
		t.Fatalf("SetPayable: %v", err)
	}
	if err := svc.ConfirmPayment(context.Background(), order.ExternalOrderID, "0xtx"); !errors.Is(err, ErrOrderNotPayable) {
		t.Fatalf("err = %v, want ErrOrderNotPayable", err)
	}
}

func TestPresentedStatusHidesIntermediateStates(t *testing.T) {
	order := &orders.Order{Status: orders.StatusProcessing}
	if got := PresentedStatus(order); got != "processing" {
		t.Fatalf("presented = %s", got)
	}
	order.Status = orders.StatusPending
	if got := PresentedStatus(order); got != "processing" {
		t.Fatalf("pending must present as processing, got %s", got)
	}
	order.Status = orders.StatusDelivered
	if got := PresentedStatus(order); got != "delivered" {
		t.Fatalf("presented = %s", got)
	}
}

type captureProvisional struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureProvisional) NotifyProvisional(_ context.Context, externalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, externalID)
	return nil
}

func (c *captureProvisional) notified() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}
