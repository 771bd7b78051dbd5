package http

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
)

type stubApplier struct {
	events []orders.StatusEvent
	status orders.Status
	err    error
}

func (a *stubApplier) ApplyEvent(_ context.Context, ev orders.StatusEvent) (orders.Status, error) {
	a.events = append(a.events, ev)
	return a.status, a.err
}

func newWebhookHandler(t *testing.T, applier *stubApplier) *WebhookHandler {
	t.Helper()
	h, err := NewWebhookHandler(applier, log.New(os.Stderr, "test ", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewWebhookHandler: %v", err)
	}
	return h
}

func TestWebhookHandlerAppliesEvent(t *testing.T) {
	applier := &stubApplier{status: orders.StatusDelivered}
	h := newWebhookHandler(t, applier)

	body := `{
		"event": "payment_order.settled",
		"orderId": "po-123",
		"status": "settled",
		"timestamp": "2024-05-01T12:00:00Z",
		"data": {"txHash": "0xsettle", "providerId": "prov-7", "settlementAmount": "1450"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(applier.events) != 1 {
		t.Fatalf("applied events = %d, want 1", len(applier.events))
	}
	ev := applier.events[0]
	if ev.ExternalOrderID != "po-123" || ev.RawStatus != "settled" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Source != orders.SourceWebhook {
		t.Fatalf("source = %s, want webhook", ev.Source)
	}
	if got := ev.SettlementAmount.String(); got != "1450" {
		t.Fatalf("settlement amount = %s", got)
	}
	if ev.ObservedAt.Year() != 2024 {
		t.Fatalf("observed at = %s, want parsed timestamp", ev.ObservedAt)
	}
}

func TestWebhookHandlerFallsBackToEventName(t *testing.T) {
	applier := &stubApplier{status: orders.StatusRefunded}
	h := newWebhookHandler(t, applier)

	body := `{"event": "payment_order.refunded", "orderId": "po-123"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if applier.events[0].RawStatus != "payment_order.refunded" {
		t.Fatalf("raw status = %s", applier.events[0].RawStatus)
	}
}

func TestWebhookHandlerUnknownOrderStays200(t *testing.T) {
	// The applier drops unknown orders without error; the provider must
	// not see that as a delivery failure.
	applier := &stubApplier{status: ""}
	h := newWebhookHandler(t, applier)

	body := `{"orderId": "po-unknown", "status": "settled"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestWebhookHandlerRejectsBadPayload(t *testing.T) {
	h := newWebhookHandler(t, &stubApplier{})

	for name, body := range map[string]string{
		"invalid json":    `{"orderId": `,
		"missing orderId": `{"status": "settled"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(body))
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.Code)
		}
	}
}

func TestWebhookHandlerMethodNotAllowed(t *testing.T) {
	h := newWebhookHandler(t, &stubApplier{})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/provider", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
