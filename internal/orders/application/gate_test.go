package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Thedongraphix/Minisend-sub001/internal/balance"
)

type stubReader struct {
	balance decimal.Decimal
	err     error
}

func (s *stubReader) Balance(context.Context, string) (decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.balance, nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "test ", log.LstdFlags)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGateSufficientAtExactTotal(t *testing.T) {
	gate, err := NewBalanceGate(&stubReader{balance: dec("10.15")}, false, testLogger())
	if err != nil {
		t.Fatalf("NewBalanceGate: %v", err)
	}

	result, err := gate.Validate(context.Background(), "0xabc", dec("10.15"))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.OK {
		t.Fatalf("balance equal to total required must pass, shortfall %s", result.Shortfall)
	}
	if result.Unverified {
		t.Fatal("successful read must not be marked unverified")
	}
}

func TestGateInsufficientJustBelowTotal(t *testing.T) {
	gate, err := NewBalanceGate(&stubReader{balance: dec("10.14")}, false, testLogger())
	if err != nil {
		t.Fatalf("NewBalanceGate: %v", err)
	}

	result, err := gate.Validate(context.Background(), "0xabc", dec("10.15"))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.OK {
		t.Fatal("balance below total required must fail")
	}
	if got, want := result.Shortfall.String(), "0.01"; got != want {
		t.Fatalf("shortfall = %s, want %s", got, want)
	}
}

func TestGateFailOpenOnReadError(t *testing.T) {
	readErr := fmt.Errorf("%w: connection refused", balance.ErrUnavailable)
	gate, err := NewBalanceGate(&stubReader{err: readErr}, true, testLogger())
	if err != nil {
		t.Fatalf("NewBalanceGate: %v", err)
	}

	result, err := gate.Validate(context.Background(), "0xabc", dec("10.15"))
	if err != nil {
		t.Fatalf("fail-open gate must not return the read error, got %v", err)
	}
	if !result.OK {
		t.Fatal("fail-open gate must admit when the balance is unreadable")
	}
	if !result.Unverified {
		t.Fatal("fail-open admission must be flagged unverified")
	}
}

func TestGateFailClosedOnReadError(t *testing.T) {
	readErr := fmt.Errorf("%w: connection refused", balance.ErrUnavailable)
	gate, err := NewBalanceGate(&stubReader{err: readErr}, false, testLogger())
	if err != nil {
		t.Fatalf("NewBalanceGate: %v", err)
	}

	result, err := gate.Validate(context.Background(), "0xabc", dec("10.15"))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.OK {
		t.Fatal("fail-closed gate must reject when the balance is unreadable")
	}
	if !result.Unverified {
		t.Fatal("fail-closed rejection must still be flagged unverified")
	}
}

func TestGatePropagatesNonAvailabilityErrors(t *testing.T) {
	gate, err := NewBalanceGate(&stubReader{err: errors.New("boom")}, true, testLogger())
	if err != nil {
		t.Fatalf("NewBalanceGate: %v", err)
	}

	if _, err := gate.Validate(context.Background(), "0xabc", dec("1")); err == nil {
		t.Fatal("unexpected errors must surface, not fail open")
	}
}
