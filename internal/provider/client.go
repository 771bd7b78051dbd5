package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a minimal REST client for the settlement provider's sender API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient constructs a provider client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("provider: empty base url")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// Recipient describes the payout destination.
type Recipient struct {
	Institution       string `json:"institution"`
	AccountIdentifier string `json:"accountIdentifier"`
	AccountName       string `json:"accountName"`
	Memo              string `json:"memo,omitempty"`
}

// CreateOrderRequest is the outbound order-creation call.
type CreateOrderRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Token         string          `json:"token"`
	Network       string          `json:"network"`
	Rate          decimal.Decimal `json:"rate"`
	Recipient     Recipient       `json:"recipient"`
	Reference     string          `json:"reference"`
	ReturnAddress string          `json:"returnAddress"`
}

// CreatedOrder is the provider's authoritative creation response.
type CreatedOrder struct {
	ID             string          `json:"id"`
	ReceiveAddress string          `json:"receiveAddress"`
	ValidUntil     time.Time       `json:"validUntil"`
	AmountLocal    decimal.Decimal `json:"amountInLocalCurrency"`
	SenderFee      decimal.Decimal `json:"senderFee"`
	TransactionFee decimal.Decimal `json:"transactionFee"`
}

// OrderStatus is the status-poll response.
type OrderStatus struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	TxHash           string          `json:"txHash"`
	ProviderID       string          `json:"providerId"`
	SettlementAmount decimal.Decimal `json:"settlementAmount"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateOrder registers a payout order with the provider. The reference is
// a caller-chosen idempotency key.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error) {
	if c == nil {
		return nil, errors.New("provider: nil client")
	}
	if req.Reference == "" {
		return nil, errors.New("provider: empty reference")
	}
	var created CreatedOrder
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sender/orders", req, &created); err != nil {
		return nil, fmt.Errorf("provider create order: %w", err)
	}
	if created.ID == "" {
		return nil, errors.New("provider: creation response missing order id")
	}
	return &created, nil
}

// GetOrder fetches the provider's current view of an order.
func (c *Client) GetOrder(ctx context.Context, externalID string) (*OrderStatus, error) {
	if c == nil {
		return nil, errors.New("provider: nil client")
	}
	if externalID == "" {
		return nil, errors.New("provider: empty order id")
	}
	var status OrderStatus
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sender/orders/"+externalID, nil, &status); err != nil {
		return nil, fmt.Errorf("provider get order: %w", err)
	}
	return &status, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider: %s %s returned %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return errors.New("provider: empty response data")
}
