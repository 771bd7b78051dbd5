package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Thedongraphix/Minisend-sub001/internal/orders/application"
)

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WithHTTPClient(srv.Client()))
	msg := Message{
		ExternalOrderID:  "po-123",
		Status:           "delivered",
		LocalCurrency:    "KES",
		AmountLocal:      decimal.RequireFromString("1450"),
		SettlementAmount: decimal.RequireFromString("1450"),
		TransactionHash:  "0xabc",
		OccurredAt:       time.Unix(1700000100, 0).UTC(),
	}
	if err := n.Notify(context.Background(), msg); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if got.Order.ExternalOrderID != "po-123" {
		t.Fatalf("order id = %s", got.Order.ExternalOrderID)
	}
	if !strings.Contains(got.Text.Content, "Status: delivered") {
		t.Fatalf("content missing status: %q", got.Text.Content)
	}
	if !strings.Contains(got.Text.Content, "1450 KES") {
		t.Fatalf("content missing amount: %q", got.Text.Content)
	}
}

func TestWebhookNotifierRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WithHTTPClient(srv.Client()))
	if err := n.Notify(context.Background(), Message{ExternalOrderID: "po-1", Status: "expired"}); err == nil {
		t.Fatal("non-2xx must fail")
	}
}

type recordNotifier struct {
	msgs []Message
	err  error
}

func (r *recordNotifier) Notify(_ context.Context, msg Message) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestMultiAttemptsAllNotifiers(t *testing.T) {
	ok := &recordNotifier{}
	failing := &recordNotifier{err: errors.New("down")}
	second := &recordNotifier{}

	err := Multi{ok, failing, second}.Notify(context.Background(), Message{ExternalOrderID: "po-1"})
	if err == nil {
		t.Fatal("failing notifier must surface its error")
	}
	if len(ok.msgs) != 1 || len(second.msgs) != 1 {
		t.Fatal("all notifiers must be attempted despite a failure")
	}
}

func TestConsumerProvisionalCarriesNoSettlementData(t *testing.T) {
	rec := &recordNotifier{}
	consumer, err := NewConsumer(rec, log.New(os.Stderr, "test ", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}

	if err := consumer.NotifyProvisional(context.Background(), "po-123"); err != nil {
		t.Fatalf("NotifyProvisional: %v", err)
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(rec.msgs))
	}
	msg := rec.msgs[0]
	if !msg.Provisional {
		t.Fatal("provisional flag must be set")
	}
	if !msg.SettlementAmount.IsZero() || msg.TransactionHash != "" {
		t.Fatal("provisional notice must not carry settlement data")
	}
}

func TestConsumerFailedUsesFinalStatus(t *testing.T) {
	rec := &recordNotifier{}
	consumer, err := NewConsumer(rec, log.New(os.Stderr, "test ", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}

	if err := consumer.HandleFailed(context.Background(), application.OrderFailed{
		ExternalOrderID: "po-9",
		FinalStatus:     "refunded",
		ProviderStatus:  "refunded",
		OccurredAt:      time.Unix(1700000100, 0).UTC(),
	}); err != nil {
		t.Fatalf("HandleFailed: %v", err)
	}
	if rec.msgs[0].Status != "refunded" {
		t.Fatalf("status = %s", rec.msgs[0].Status)
	}
}
