package application

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Thedongraphix/Minisend-sub001/internal/observability/metrics"
)

// ProvisionalNotifier receives the fallback window signal. It informs the
// user interface only; the authoritative order state is untouched.
type ProvisionalNotifier interface {
	NotifyProvisional(ctx context.Context, externalID string) error
}

// FallbackTimer shows a provisional success to the user when no channel has
// confirmed the order within the window. It never records a settlement and
// never transitions the order: a later authoritative event, including a
// refund, overrides it.
type FallbackTimer struct {
	window   time.Duration
	notifier ProvisionalNotifier
	clock    Clock
	logger   *log.Logger

	mu     sync.Mutex
	timers map[string]chan struct{}
}

// NewFallbackTimer constructs the timer. A nil notifier disables it.
func NewFallbackTimer(window time.Duration, notifier ProvisionalNotifier, clock Clock, logger *log.Logger) *FallbackTimer {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FallbackTimer{
		window:   window,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		timers:   make(map[string]chan struct{}),
	}
}

// Start arms the window for one order. A second Start for the same order is
// a no-op while the first window is pending.
func (t *FallbackTimer) Start(externalID string) {
	if t == nil || t.notifier == nil || externalID == "" {
		return
	}

	t.mu.Lock()
	if _, pending := t.timers[externalID]; pending {
		t.mu.Unlock()
		return
	}
	cancel := make(chan struct{})
	t.timers[externalID] = cancel
	t.mu.Unlock()

	go func() {
		select {
		case <-cancel:
			return
		case <-t.clock.After(t.window):
		}

		// Both channels can be ready at once when the window elapses
		// while Cancel runs. The map entry decides who won: only the
		// goroutine that still owns it may notify.
		t.mu.Lock()
		if t.timers[externalID] != cancel {
			t.mu.Unlock()
			return
		}
		delete(t.timers, externalID)
		t.mu.Unlock()

		metrics.IncFallbackFired()
		if err := t.notifier.NotifyProvisional(context.Background(), externalID); err != nil {
			t.logger.Printf("fallback: provisional notify %s: %v", externalID, err)
		}
	}()
}

// Cancel disarms a pending window; called when any authoritative terminal
// event arrives first.
func (t *FallbackTimer) Cancel(externalID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	cancel, pending := t.timers[externalID]
	if pending {
		delete(t.timers, externalID)
	}
	t.mu.Unlock()
	if pending {
		close(cancel)
	}
}

// Pending reports whether a window is armed for the order.
func (t *FallbackTimer) Pending(externalID string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, pending := t.timers[externalID]
	return pending
}
