package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier delivers order outcomes to a webhook endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
	Order   Message     `json:"order"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookOption customizes the notifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify posts the message to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatMessage(msg)},
		Order:   msg,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: status %d", resp.StatusCode)
	}
	return nil
}

func formatMessage(msg Message) string {
	var b strings.Builder
	if msg.Provisional {
		b.WriteString("[Order Update (provisional)]\n")
	} else {
		b.WriteString("[Order Update]\n")
	}
	fmt.Fprintf(&b, "Order: %s\n", msg.ExternalOrderID)
	fmt.Fprintf(&b, "Status: %s\n", msg.Status)
	if !msg.AmountLocal.IsZero() {
		fmt.Fprintf(&b, "Amount: %s %s\n", msg.AmountLocal.String(), msg.LocalCurrency)
	}
	if !msg.SettlementAmount.IsZero() {
		fmt.Fprintf(&b, "Settled: %s %s\n", msg.SettlementAmount.String(), msg.LocalCurrency)
	}
	if msg.TransactionHash != "" {
		fmt.Fprintf(&b, "Tx: %s\n", msg.TransactionHash)
	}
	if msg.ProviderStatus != "" {
		fmt.Fprintf(&b, "Provider status: %s\n", msg.ProviderStatus)
	}
	return strings.TrimSpace(b.String())
}
