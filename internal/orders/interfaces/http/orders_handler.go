package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Thedongraphix/Minisend-sub001/internal/audit"
	"github.com/Thedongraphix/Minisend-sub001/internal/auth"
	ordersapp "github.com/Thedongraphix/Minisend-sub001/internal/orders/application"
	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
)

// ReceiptRenderer serves the receipt download for a settled order.
type ReceiptRenderer interface {
	Handle(w http.ResponseWriter, r *http.Request, externalID string)
}

// OrdersHandler provides the order HTTP endpoints.
type OrdersHandler struct {
	service     *ordersapp.Service
	auditLogger audit.Logger
	receipts    ReceiptRenderer
}

// NewOrdersHandler constructs a handler. receipts may be nil, which
// disables the receipt download route.
func NewOrdersHandler(service *ordersapp.Service, auditLogger audit.Logger, receipts ReceiptRenderer) (*OrdersHandler, error) {
	if service == nil {
		return nil, errors.New("orders handler: nil service")
	}
	return &OrdersHandler{service: service, auditLogger: auditLogger, receipts: receipts}, nil
}

type createOrderRequest struct {
	WalletAddress string          `json:"walletAddress"`
	ReturnAddress string          `json:"returnAddress"`
	Amount        decimal.Decimal `json:"amount"`
	Token         string          `json:"token"`
	Network       string          `json:"network"`
	Rate          decimal.Decimal `json:"rate"`
	LocalCurrency string          `json:"localCurrency"`
	Recipient     struct {
		Institution   string `json:"institution"`
		AccountNumber string `json:"accountNumber"`
		AccountName   string `json:"accountName"`
		Memo          string `json:"memo"`
	} `json:"recipient"`
}

type confirmPaymentRequest struct {
	TxHash string `json:"txHash"`
}

type orderResponse struct {
	ID              string     `json:"id"`
	ExternalOrderID string     `json:"externalOrderId"`
	Status          string     `json:"status"`
	Amount          string     `json:"amount"`
	LocalCurrency   string     `json:"localCurrency"`
	AmountLocal     string     `json:"amountLocal"`
	SenderFee       string     `json:"senderFee"`
	TransactionFee  string     `json:"transactionFee"`
	TotalRequired   string     `json:"totalRequired"`
	Payable         bool       `json:"payable"`
	DepositAddress  string     `json:"depositAddress,omitempty"`
	ValidUntil      *time.Time `json:"validUntil,omitempty"`
	TransactionHash string     `json:"transactionHash,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

func toOrderResponse(order *orders.Order) orderResponse {
	resp := orderResponse{
		ID:              order.ID,
		ExternalOrderID: order.ExternalOrderID,
		Status:          ordersapp.PresentedStatus(order),
		Amount:          order.AmountRequested.String(),
		LocalCurrency:   order.LocalCurrency,
		AmountLocal:     order.AmountLocal.String(),
		SenderFee:       order.SenderFee.String(),
		TransactionFee:  order.TransactionFee.String(),
		TotalRequired:   order.TotalRequired().String(),
		Payable:         order.Payable,
		DepositAddress:  order.DepositAddress,
		TransactionHash: order.TransactionHash,
		CreatedAt:       order.CreatedAt,
	}
	if !order.ValidUntil.IsZero() {
		validUntil := order.ValidUntil
		resp.ValidUntil = &validUntil
	}
	if !order.CompletedAt.IsZero() {
		completedAt := order.CompletedAt
		resp.CompletedAt = &completedAt
	}
	return resp
}

// ServeHTTP routes /api/v1/orders and /api/v1/orders/{externalId}[/payment].
func (h *OrdersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/orders")
	switch {
	case path == "" || path == "/":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCreate(w, r)
	case strings.HasSuffix(path, "/receipt.pdf"):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if h.receipts == nil {
			http.Error(w, "receipts disabled", http.StatusNotFound)
			return
		}
		externalID := strings.Trim(strings.TrimSuffix(path, "/receipt.pdf"), "/")
		h.receipts.Handle(w, r, externalID)
	case strings.HasSuffix(path, "/payment"):
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		externalID := strings.Trim(strings.TrimSuffix(path, "/payment"), "/")
		h.handleConfirmPayment(w, r, externalID)
	default:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, strings.Trim(path, "/"))
	}
}

func (h *OrdersHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), ordersapp.CreateOrderInput{
		WalletAddress: req.WalletAddress,
		ReturnAddress: req.ReturnAddress,
		Amount:        req.Amount,
		Token:         req.Token,
		Network:       req.Network,
		Rate:          req.Rate,
		LocalCurrency: req.LocalCurrency,
		Recipient: orders.Recipient{
			Institution:   req.Recipient.Institution,
			AccountNumber: req.Recipient.AccountNumber,
			AccountName:   req.Recipient.AccountName,
			Memo:          req.Recipient.Memo,
		},
	})

	var insufficient *ordersapp.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{
			"error":     "insufficient balance",
			"shortfall": insufficient.Shortfall.String(),
		})
		return
	case errors.Is(err, ordersapp.ErrOrderNotPayable):
		// Order exists for audit; the client must not present a pay screen.
		writeJSON(w, http.StatusCreated, toOrderResponse(order))
		h.logAudit(r, "order.create_not_payable", order.ExternalOrderID, body)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
	h.logAudit(r, "order.create", order.ExternalOrderID, body)
}

func (h *OrdersHandler) handleGet(w http.ResponseWriter, r *http.Request, externalID string) {
	if externalID == "" {
		http.Error(w, "order id required", http.StatusBadRequest)
		return
	}
	order, err := h.service.GetOrder(r.Context(), externalID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrdersHandler) handleConfirmPayment(w http.ResponseWriter, r *http.Request, externalID string) {
	if externalID == "" {
		http.Error(w, "order id required", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req confirmPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.TxHash == "" {
		http.Error(w, "txHash required", http.StatusBadRequest)
		return
	}

	err = h.service.ConfirmPayment(r.Context(), externalID, req.TxHash)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
		return
	case errors.Is(err, ordersapp.ErrOrderNotPayable):
		http.Error(w, "order not payable", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
	h.logAudit(r, "order.payment_confirmed", externalID, body)
}

func (h *OrdersHandler) logAudit(r *http.Request, action, externalID string, payload []byte) {
	if h.auditLogger == nil {
		return
	}
	entry := audit.Entry{
		AccountID:       auth.AccountIDFromContext(r.Context()),
		Actor:           auth.SubjectFromContext(r.Context()),
		Role:            string(auth.RoleFromContext(r.Context())),
		Action:          action,
		ResourceType:    "order",
		ResourceID:      externalID,
		ExternalOrderID: externalID,
		PayloadDigest:   audit.DigestJSON(payload),
		IP:              audit.ClientIP(r),
		UserAgent:       r.UserAgent(),
	}
	_ = h.auditLogger.Log(r.Context(), entry)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
