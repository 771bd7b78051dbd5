package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable signals that the balance could not be read at all. It is
// distinct from "insufficient": callers decide whether to fail open.
var ErrUnavailable = errors.New("balance: unavailable")

// Reader reports the spendable stablecoin balance of a wallet.
type Reader interface {
	Balance(ctx context.Context, walletAddress string) (decimal.Decimal, error)
}

// HTTPReader reads balances from a wallet-service endpoint.
type HTTPReader struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPReader constructs a balance reader.
func NewHTTPReader(baseURL, token string, opts ...ReaderOption) (*HTTPReader, error) {
	if baseURL == "" {
		return nil, errors.New("balance: empty base url")
	}
	r := &HTTPReader{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ReaderOption configures the reader.
type ReaderOption func(*HTTPReader)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) ReaderOption {
	return func(r *HTTPReader) {
		if client != nil {
			r.client = client
		}
	}
}

type balanceResponse struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

// Balance fetches the current on-chain balance. Any transport or decode
// failure is reported as ErrUnavailable so the gate can apply its fail-open
// policy explicitly.
func (r *HTTPReader) Balance(ctx context.Context, walletAddress string) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, ErrUnavailable
	}
	if walletAddress == "" {
		return decimal.Zero, errors.New("balance: empty wallet address")
	}

	endpoint := r.baseURL + "/v1/balances/" + url.PathEscape(walletAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return body.Balance, nil
}
