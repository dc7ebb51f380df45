package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBody = 1 << 20

func DecodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HttpError writes the error envelope {error, message, request_id, ...details}.
func HttpError(w http.ResponseWriter, r *http.Request, status int, code, msg string, details map[string]any) {
	payload := map[string]any{
		"error":   code,
		"message": msg,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		payload["request_id"] = id
	}
	for k, v := range details {
		payload[k] = v
	}
	WriteJSON(w, status, payload)
}

// WriteError maps domain errors onto HTTP statuses. Unknown errors become a 500
// without leaking their text.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stock       *domain.InsufficientStockError
		unavailable *domain.ProductUnavailableError
	)
	switch {
	case errors.As(err, &stock):
		HttpError(w, r, http.StatusConflict, "insufficient_stock", err.Error(), map[string]any{
			"details": map[string]any{
				"productId": stock.ProductID,
				"variantId": stock.VariantID,
				"name":      stock.Name,
				"requested": stock.Requested,
				"available": stock.Available,
			},
		})
	case errors.As(err, &unavailable):
		HttpError(w, r, http.StatusUnprocessableEntity, "product_unavailable", err.Error(), map[string]any{
			"details": map[string]any{
				"productId": unavailable.ProductID,
				"variantId": unavailable.VariantID,
			},
		})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrMalformedNotification):
		HttpError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.Is(err, domain.ErrOrderNotFound):
		HttpError(w, r, http.StatusNotFound, "not_found", "order not found", nil)
	case errors.Is(err, domain.ErrOrderNotPending):
		HttpError(w, r, http.StatusConflict, "order_not_pending", err.Error(), nil)
	case domain.Retryable(err):
		HttpError(w, r, http.StatusServiceUnavailable, "unavailable", "dependency unavailable, try again", nil)
	case errors.Is(err, domain.ErrGatewayRejected):
		HttpError(w, r, http.StatusBadGateway, "gateway_rejected", "payment gateway rejected the request", nil)
	default:
		HttpError(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}
