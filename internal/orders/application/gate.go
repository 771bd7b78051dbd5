package application

import (
	"context"
	"errors"
	"log"

	"github.com/shopspring/decimal"

	"github.com/Thedongraphix/Minisend-sub001/internal/balance"
)

// GateResult is the outcome of a balance check.
type GateResult struct {
	OK         bool
	Unverified bool
	Balance    decimal.Decimal
	Shortfall  decimal.Decimal
}

// BalanceGate blocks order admission when the wallet cannot cover the order
// amount plus provider fees.
type BalanceGate struct {
	reader   balance.Reader
	failOpen bool
	logger   *log.Logger
}

// NewBalanceGate constructs a gate. failOpen decides what happens when the
// balance cannot be read at all: true permits the order (availability over
// strictness), false blocks it.
func NewBalanceGate(reader balance.Reader, failOpen bool, logger *log.Logger) (*BalanceGate, error) {
	if reader == nil {
		return nil, errors.New("balance gate: nil reader")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BalanceGate{reader: reader, failOpen: failOpen, logger: logger}, nil
}

// Validate checks that the wallet holds at least totalRequired. A read
// failure never masquerades as "insufficient": it either passes unverified
// (fail-open) or blocks with Unverified set (fail-closed).
func (g *BalanceGate) Validate(ctx context.Context, walletAddress string, totalRequired decimal.Decimal) (GateResult, error) {
	if g == nil || g.reader == nil {
		return GateResult{}, errors.New("balance gate: nil reader")
	}
	if walletAddress == "" {
		return GateResult{}, errors.New("balance gate: empty wallet address")
	}
	if totalRequired.LessThanOrEqual(decimal.Zero) {
		return GateResult{}, errors.New("balance gate: non-positive amount")
	}

	observed, err := g.reader.Balance(ctx, walletAddress)
	if err != nil {
		if errors.Is(err, balance.ErrUnavailable) {
			g.logger.Printf("balance gate: read unavailable for %s (fail-open=%t): %v", walletAddress, g.failOpen, err)
			return GateResult{OK: g.failOpen, Unverified: true}, nil
		}
		return GateResult{}, err
	}

	if observed.GreaterThanOrEqual(totalRequired) {
		return GateResult{OK: true, Balance: observed}, nil
	}
	return GateResult{
		OK:        false,
		Balance:   observed,
		Shortfall: totalRequired.Sub(observed),
	}, nil
}
