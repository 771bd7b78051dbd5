package orders

import (
	"testing"
	"time"
)

func event(raw string) StatusEvent {
	return StatusEvent{
		Source:          SourceWebhook,
		ExternalOrderID: "ord-1",
		RawStatus:       raw,
		ObservedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestReduceForwardPath(t *testing.T) {
	red := Reduce(StatusPending, event("pending"))
	if !red.Transitioned || red.Next != StatusProcessing {
		t.Fatalf("expected pending->processing, got %+v", red)
	}
	if red.Notify || red.CreateSettlement {
		t.Fatalf("pending->processing must not fire effects, got %+v", red)
	}

	red = Reduce(StatusProcessing, event("validated"))
	if !red.Transitioned || red.Next != StatusDelivered {
		t.Fatalf("expected processing->delivered, got %+v", red)
	}
	if !red.Notify || !red.CreateSettlement {
		t.Fatalf("first delivery must notify and create settlement, got %+v", red)
	}
}

func TestReduceTerminalIdempotent(t *testing.T) {
	// A second delivery-equivalent signal must produce no effects.
	red := Reduce(StatusDelivered, event("settled"))
	if red.Transitioned {
		t.Fatalf("terminal status must not transition again: %+v", red)
	}
	if red.Next != StatusDelivered {
		t.Fatalf("terminal status must be preserved, got %s", red.Next)
	}
	if red.Notify || red.CreateSettlement {
		t.Fatalf("duplicate terminal event must not fire effects: %+v", red)
	}
}

func TestReduceFirstTerminalWins(t *testing.T) {
	red := Reduce(StatusRefunded, event("settled"))
	if red.Transitioned || red.Next != StatusRefunded {
		t.Fatalf("refunded must not be replaced by settled: %+v", red)
	}
	red = Reduce(StatusExpired, event("refunded"))
	if red.Transitioned || red.Next != StatusExpired {
		t.Fatalf("expired must not be replaced by refunded: %+v", red)
	}
}

func TestReduceNoBackwardTransition(t *testing.T) {
	for _, raw := range []string{"initiated", "pending"} {
		red := Reduce(StatusDelivered, event(raw))
		if red.Transitioned || red.Next != StatusDelivered {
			t.Fatalf("%s after delivered must be a no-op: %+v", raw, red)
		}
		if red.Notify || red.CreateSettlement {
			t.Fatalf("%s after delivered must not fire effects: %+v", raw, red)
		}
	}
	red := Reduce(StatusProcessing, event("initiated"))
	if red.Transitioned || red.Next != StatusProcessing {
		t.Fatalf("initiated after processing must be a no-op: %+v", red)
	}
}

func TestReduceCommutativeUnderReordering(t *testing.T) {
	orderings := [][]string{
		{"initiated", "pending", "validated"},
		{"pending", "initiated", "validated"},
		{"validated", "pending", "initiated"},
		{"validated", "settled", "pending"},
	}
	for _, seq := range orderings {
		current := StatusPending
		settlements := 0
		for _, raw := range seq {
			red := Reduce(current, event(raw))
			current = red.Next
			if red.CreateSettlement {
				settlements++
			}
		}
		if current != StatusDelivered {
			t.Fatalf("sequence %v ended in %s, want delivered", seq, current)
		}
		if settlements != 1 {
			t.Fatalf("sequence %v fired %d settlements, want 1", seq, settlements)
		}
	}
}

func TestReduceUnknownStatusIgnored(t *testing.T) {
	red := Reduce(StatusProcessing, event("payment_order.mystery"))
	if red.Transitioned || red.Next != StatusProcessing {
		t.Fatalf("unknown provider status must be ignored: %+v", red)
	}
}

func TestReduceFailureTerminals(t *testing.T) {
	red := Reduce(StatusProcessing, event("expired"))
	if !red.Transitioned || red.Next != StatusExpired {
		t.Fatalf("expected processing->expired, got %+v", red)
	}
	if !red.Notify {
		t.Fatalf("terminal failure must notify: %+v", red)
	}
	if red.CreateSettlement {
		t.Fatalf("terminal failure must not create a settlement: %+v", red)
	}
}

func TestStatusRanking(t *testing.T) {
	if !StatusDelivered.IsTerminal() || !StatusRefunded.IsTerminal() || !StatusExpired.IsTerminal() {
		t.Fatal("terminal statuses misclassified")
	}
	if StatusPending.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Fatal("non-terminal statuses misclassified")
	}
	if Status("bogus").IsValid() {
		t.Fatal("bogus status must be invalid")
	}
}
