// Command fake_provider_server simulates the settlement provider for local
// development: order creation, status polling with a scripted lifecycle,
// balance reads, and signed webhook callbacks.
package main

import (
	"bytes"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Thedongraphix/Minisend-sub001/internal/auth"
)

type fakeOrder struct {
	ID         string
	Reference  string
	Amount     decimal.Decimal
	Rate       decimal.Decimal
	CreatedAt  time.Time
	FinalState string
}

type fakeProvider struct {
	latency    time.Duration
	settleIn   time.Duration
	finalState string
	failRate   float64

	webhookURL    string
	webhookSecret []byte

	mu     sync.Mutex
	orders map[string]*fakeOrder
	calls  int64
}

func main() {
	addr := getenvDefault("FAKE_PROVIDER_ADDR", ":18080")
	latencyMs, _ := strconv.Atoi(getenvDefault("FAKE_PROVIDER_LATENCY_MS", "0"))
	settleIn, err := time.ParseDuration(getenvDefault("FAKE_PROVIDER_SETTLE_IN", "20s"))
	if err != nil {
		log.Fatalf("bad FAKE_PROVIDER_SETTLE_IN: %v", err)
	}
	failRate, _ := strconv.ParseFloat(getenvDefault("FAKE_PROVIDER_FAIL_RATE", "0"), 64)

	srv := &fakeProvider{
		latency:       time.Duration(latencyMs) * time.Millisecond,
		settleIn:      settleIn,
		finalState:    getenvDefault("FAKE_PROVIDER_FINAL_STATE", "settled"),
		failRate:      failRate,
		webhookURL:    getenvDefault("FAKE_PROVIDER_WEBHOOK_URL", ""),
		webhookSecret: []byte(getenvDefault("WEBHOOK_HMAC_SECRET", "")),
		orders:        make(map[string]*fakeOrder),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/v1/sender/orders", srv.handleCreate)
	mux.HandleFunc("/v1/sender/orders/", srv.handleGet)
	mux.HandleFunc("/v1/balances/", srv.handleBalance)

	log.Printf("fake provider listening on %s (final=%s settle_in=%s)", addr, srv.finalState, settleIn)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeProvider) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeProvider) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	s.sleep()

	var req struct {
		Amount    decimal.Decimal `json:"amount"`
		Rate      decimal.Decimal `json:"rate"`
		Reference string          `json:"reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "error", "invalid json", nil)
		return
	}

	final := s.finalState
	if s.failRate > 0 && rand.Float64() < s.failRate {
		final = "refunded"
	}
	order := &fakeOrder{
		ID:         uuid.NewString(),
		Reference:  req.Reference,
		Amount:     req.Amount,
		Rate:       req.Rate,
		CreatedAt:  time.Now().UTC(),
		FinalState: final,
	}
	s.mu.Lock()
	s.orders[order.ID] = order
	s.mu.Unlock()

	if s.webhookURL != "" {
		go s.fireWebhook(order)
	}

	writeEnvelope(w, http.StatusCreated, "success", "order created", map[string]any{
		"id":                    order.ID,
		"receiveAddress":        "0xfake" + order.ID[:8],
		"validUntil":            order.CreatedAt.Add(30 * time.Minute).Format(time.RFC3339),
		"amountInLocalCurrency": order.Amount.Mul(order.Rate).String(),
		"senderFee":             order.Amount.Mul(decimal.RequireFromString("0.01")).String(),
		"transactionFee":        "0.05",
	})
}

func (s *fakeProvider) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.sleep()

	id := strings.TrimPrefix(r.URL.Path, "/v1/sender/orders/")
	s.mu.Lock()
	order, ok := s.orders[id]
	s.calls++
	s.mu.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusNotFound, "error", "order not found", nil)
		return
	}

	writeEnvelope(w, http.StatusOK, "success", "order status", map[string]any{
		"id":               order.ID,
		"status":           s.statusAt(order, time.Now().UTC()),
		"txHash":           "0xfaketx" + order.ID[:8],
		"providerId":       "fake-provider",
		"settlementAmount": order.Amount.Mul(order.Rate).String(),
		"updatedAt":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *fakeProvider) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.sleep()
	address := strings.TrimPrefix(r.URL.Path, "/v1/balances/")
	balance := getenvDefault("FAKE_PROVIDER_BALANCE", "1000000")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"address": address,
		"balance": balance,
	})
}

// statusAt walks the lifecycle on a time schedule: a third of the settle
// window pending, a third processing, then the final state.
func (s *fakeProvider) statusAt(order *fakeOrder, now time.Time) string {
	elapsed := now.Sub(order.CreatedAt)
	third := s.settleIn / 3
	switch {
	case elapsed < third:
		return "pending"
	case elapsed < s.settleIn:
		return "processing"
	default:
		return order.FinalState
	}
}

func (s *fakeProvider) fireWebhook(order *fakeOrder) {
	time.Sleep(s.settleIn)
	payload, _ := json.Marshal(map[string]any{
		"event":     "payment_order." + order.FinalState,
		"orderId":   order.ID,
		"status":    order.FinalState,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"txHash":           "0xfaketx" + order.ID[:8],
			"providerId":       "fake-provider",
			"settlementAmount": order.Amount.Mul(order.Rate).String(),
		},
	})

	req, err := http.NewRequest(http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		log.Printf("webhook build error: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.SignatureHeader, auth.ComputeWebhookSignature(s.webhookSecret, payload))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("webhook delivery error: %v", err)
		return
	}
	defer resp.Body.Close()
	log.Printf("webhook %s delivered: %d", order.ID, resp.StatusCode)
}

func (s *fakeProvider) sleep() {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
}

func writeEnvelope(w http.ResponseWriter, code int, status, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
