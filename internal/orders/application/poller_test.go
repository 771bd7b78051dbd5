package application

import (
	"context"
	"sync"
	"testing"
	"time"

	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
	"github.com/Thedongraphix/Minisend-sub001/internal/provider"
)

// instantClock makes every wait elapse immediately so polling loops run to
// completion inside the test.
type instantClock struct{}

func (instantClock) Now() time.Time { return time.Unix(1700000000, 0).UTC() }

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Unix(1700000000, 0).UTC()
	return ch
}

// stuckClock never fires, keeping a loop parked on its first wait.
type stuckClock struct{}

func (stuckClock) Now() time.Time { return time.Unix(1700000000, 0).UTC() }

func (stuckClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

type scriptedProvider struct {
	mu       sync.Mutex
	statuses []string
	calls    int
}

func (p *scriptedProvider) CreateOrder(context.Context, provider.CreateOrderRequest) (*provider.CreatedOrder, error) {
	return nil, nil
}

func (p *scriptedProvider) GetOrder(_ context.Context, externalID string) (*provider.OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := p.statuses[len(p.statuses)-1]
	if p.calls < len(p.statuses) {
		status = p.statuses[p.calls]
	}
	p.calls++
	return &provider.OrderStatus{ID: externalID, Status: status}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingApplier struct {
	mu     sync.Mutex
	events []orders.StatusEvent
}

func (a *recordingApplier) ApplyEvent(_ context.Context, ev orders.StatusEvent) (orders.Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	status, known := orders.MapProviderStatus(ev.RawStatus)
	if !known {
		return orders.StatusProcessing, nil
	}
	return status, nil
}

func (a *recordingApplier) applied() []orders.StatusEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]orders.StatusEvent, len(a.events))
	copy(out, a.events)
	return out
}

func testPollConfig() PollConfig {
	return PollConfig{
		InitialDelay:  10 * time.Second,
		ShortInterval: 5 * time.Second,
		ShortAttempts: 3,
		LongInterval:  30 * time.Second,
		MaxAttempts:   5,
	}
}

func TestPollerStopsOnTerminalStatus(t *testing.T) {
	providerAPI := &scriptedProvider{statuses: []string{"pending", "processing", "settled"}}
	applier := &recordingApplier{}

	poller, err := NewPoller(providerAPI, applier, NewMemoryGuard(), testPollConfig(), instantClock{}, testLogger())
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	if err := poller.Run(context.Background(), "order-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := providerAPI.callCount(); got != 3 {
		t.Fatalf("provider calls = %d, want 3", got)
	}
	events := applier.applied()
	if len(events) != 3 {
		t.Fatalf("applied events = %d, want 3", len(events))
	}
	last := events[len(events)-1]
	if last.RawStatus != "settled" || last.Source != orders.SourcePoll {
		t.Fatalf("last event = %q via %s, want settled via poll", last.RawStatus, last.Source)
	}
}

func TestPollerStopsSilentlyAtCeiling(t *testing.T) {
	providerAPI := &scriptedProvider{statuses: []string{"processing"}}
	applier := &recordingApplier{}

	cfg := testPollConfig()
	poller, err := NewPoller(providerAPI, applier, NewMemoryGuard(), cfg, instantClock{}, testLogger())
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	if err := poller.Run(context.Background(), "order-1"); err != nil {
		t.Fatalf("ceiling stop must not error, got %v", err)
	}

	if got := providerAPI.callCount(); got != cfg.MaxAttempts {
		t.Fatalf("provider calls = %d, want %d", got, cfg.MaxAttempts)
	}
}

func TestPollerSingleFlightPerOrder(t *testing.T) {
	providerAPI := &scriptedProvider{statuses: []string{"processing"}}
	applier := &recordingApplier{}
	guard := NewMemoryGuard()

	blocked, err := NewPoller(providerAPI, applier, guard, testPollConfig(), stuckClock{}, testLogger())
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- blocked.Run(ctx, "order-1") }()

	// Wait until the first loop holds the guard.
	waitForHold := time.After(2 * time.Second)
	for {
		if release, acquired, _ := guard.Acquire(context.Background(), "order-1"); acquired {
			release()
		} else {
			break
		}
		select {
		case <-waitForHold:
			t.Fatal("first poller never acquired the guard")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	second, err := NewPoller(providerAPI, applier, guard, testPollConfig(), instantClock{}, testLogger())
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	if err := second.Run(context.Background(), "order-1"); err != nil {
		t.Fatalf("second Run must return nil when guarded, got %v", err)
	}
	if got := providerAPI.callCount(); got != 0 {
		t.Fatalf("second poller must not poll, provider calls = %d", got)
	}

	cancel()
	if err := <-done; err == nil {
		t.Fatal("canceled run must report context error")
	}
}

func TestPollerTwoPhaseIntervals(t *testing.T) {
	providerAPI := &scriptedProvider{statuses: []string{"processing"}}
	applier := &recordingApplier{}

	clock := &recordingClock{fire: time.Unix(1700000000, 0).UTC()}
	cfg := testPollConfig()
	poller, err := NewPoller(providerAPI, applier, NewMemoryGuard(), cfg, clock, testLogger())
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	if err := poller.Run(context.Background(), "order-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	waits := clock.waits()
	// Initial delay plus one wait between each pair of attempts.
	if len(waits) != cfg.MaxAttempts {
		t.Fatalf("waits = %d, want %d", len(waits), cfg.MaxAttempts)
	}
	if waits[0] != cfg.InitialDelay {
		t.Fatalf("first wait = %s, want initial delay %s", waits[0], cfg.InitialDelay)
	}
	for i := 1; i < cfg.ShortAttempts; i++ {
		if waits[i] != cfg.ShortInterval {
			t.Fatalf("wait %d = %s, want short interval %s", i, waits[i], cfg.ShortInterval)
		}
	}
	for i := cfg.ShortAttempts; i < len(waits); i++ {
		if waits[i] != cfg.LongInterval {
			t.Fatalf("wait %d = %s, want long interval %s", i, waits[i], cfg.LongInterval)
		}
	}
}

type recordingClock struct {
	mu   sync.Mutex
	durs []time.Duration
	fire time.Time
}

func (c *recordingClock) Now() time.Time { return c.fire }

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.durs = append(c.durs, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- c.fire
	return ch
}

func (c *recordingClock) waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.durs))
	copy(out, c.durs)
	return out
}
