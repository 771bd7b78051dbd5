package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Thedongraphix/Minisend-sub001/internal/observability/metrics"
	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
	settlement "github.com/Thedongraphix/Minisend-sub001/internal/settlement/domain"
)

// ExportHandler serves settlement listings and file exports.
type ExportHandler struct {
	records settlement.Repository
	orders  orders.Repository
}

// NewExportHandler constructs the handler.
func NewExportHandler(records settlement.Repository, orderRepo orders.Repository) (*ExportHandler, error) {
	if records == nil {
		return nil, errors.New("export handler: nil settlement repository")
	}
	if orderRepo == nil {
		return nil, errors.New("export handler: nil order repository")
	}
	return &ExportHandler{records: records, orders: orderRepo}, nil
}

type settlementResponse struct {
	OrderID          string    `json:"orderId"`
	ExternalOrderID  string    `json:"externalOrderId"`
	LocalCurrency    string    `json:"localCurrency"`
	SettlementAmount string    `json:"settlementAmount"`
	TransactionHash  string    `json:"transactionHash,omitempty"`
	ProviderID       string    `json:"providerId,omitempty"`
	SettledAt        time.Time `json:"settledAt"`
}

// HandleList serves GET /api/v1/settlements.
func (h *ExportHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := h.records.ListSettledBetween(r.Context(), from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]settlementResponse, 0, len(records))
	for _, record := range records {
		out = append(out, settlementResponse{
			OrderID:          record.OrderID,
			ExternalOrderID:  record.ExternalOrderID,
			LocalCurrency:    record.LocalCurrency,
			SettlementAmount: record.SettlementAmount.String(),
			TransactionHash:  record.TransactionHash,
			ProviderID:       record.ProviderID,
			SettledAt:        record.SettledAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// HandleExportXLSX serves GET /api/v1/exports/settlements.xlsx.
func (h *ExportHandler) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := h.records.ListSettledBetween(r.Context(), from, to)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	payload, err := BuildSettlementsXLSX(from, to, records)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=settlements-%s.xlsx", from.Format("2006-01-02")))
	_, _ = w.Write(payload)
}

// Handle serves GET /api/v1/orders/{externalId}/receipt.pdf.
func (h *ExportHandler) Handle(w http.ResponseWriter, r *http.Request, externalID string) {
	start := time.Now()
	order, err := h.orders.GetByExternalID(r.Context(), externalID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	record, err := h.records.GetByOrderID(r.Context(), order.ID)
	if err != nil {
		if errors.Is(err, settlement.ErrRecordNotFound) {
			// No receipt until funds are confirmed delivered.
			http.Error(w, "order not settled", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	payload, err := BuildReceiptPDF(order, record)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%s.pdf", externalID))
	_, _ = w.Write(payload)
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	fromValue := r.URL.Query().Get("from")
	toValue := r.URL.Query().Get("to")
	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now
	if fromValue != "" {
		parsed, err := time.Parse(time.RFC3339, fromValue)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = parsed
	}
	if toValue != "" {
		parsed, err := time.Parse(time.RFC3339, toValue)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = parsed
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}
