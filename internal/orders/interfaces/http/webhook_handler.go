package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Thedongraphix/Minisend-sub001/internal/observability/metrics"
	ordersapp "github.com/Thedongraphix/Minisend-sub001/internal/orders/application"
	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
)

// WebhookHandler receives provider status callbacks. Signature checking is
// the auth middleware's job; by the time a request lands here its body is
// authenticated.
type WebhookHandler struct {
	applier ordersapp.EventApplier
	logger  *log.Logger
}

// NewWebhookHandler constructs the webhook endpoint.
func NewWebhookHandler(applier ordersapp.EventApplier, logger *log.Logger) (*WebhookHandler, error) {
	if applier == nil {
		return nil, errors.New("webhook handler: nil event applier")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookHandler{applier: applier, logger: logger}, nil
}

type providerWebhook struct {
	Event     string `json:"event"`
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		TxHash           string          `json:"txHash"`
		ProviderID       string          `json:"providerId"`
		SettlementAmount decimal.Decimal `json:"settlementAmount"`
	} `json:"data"`
}

// ServeHTTP handles POST /webhooks/provider.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload providerWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.ObserveWebhook("bad_payload", time.Since(start))
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if payload.OrderID == "" {
		metrics.ObserveWebhook("bad_payload", time.Since(start))
		http.Error(w, "orderId required", http.StatusBadRequest)
		return
	}

	rawStatus := payload.Status
	if rawStatus == "" {
		rawStatus = payload.Event
	}
	observedAt := time.Now().UTC()
	if payload.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			observedAt = ts.UTC()
		}
	}

	ev := orders.StatusEvent{
		ExternalOrderID:  payload.OrderID,
		RawStatus:        rawStatus,
		Source:           orders.SourceWebhook,
		TransactionHash:  payload.Data.TxHash,
		ProviderID:       payload.Data.ProviderID,
		SettlementAmount: payload.Data.SettlementAmount,
		ObservedAt:       observedAt,
	}

	if _, err := h.applier.ApplyEvent(r.Context(), ev); err != nil {
		// Store trouble: ask the provider to redeliver.
		h.logger.Printf("webhook: apply %s: %v", payload.OrderID, err)
		metrics.ObserveWebhook("error", time.Since(start))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	metrics.ObserveWebhook("success", time.Since(start))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}
