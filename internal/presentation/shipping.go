package presentation

import (
	"context"
	"net/http"

	"github.com/RaikyD/storefront-orders/internal/presentation/helpers"
	"github.com/RaikyD/storefront-orders/internal/shipping"
	"github.com/go-chi/chi/v5"
)

type ShippingQuoter interface {
	Quote(ctx context.Context, req shipping.QuoteRequest) (shipping.QuoteResult, error)
}

type ShippingHandler struct {
	quoter ShippingQuoter
}

func NewShippingHandler(q ShippingQuoter) *ShippingHandler {
	return &ShippingHandler{quoter: q}
}

func (h *ShippingHandler) Register(r chi.Router) {
	r.Post("/api/shipping/quote", h.Quote)
}

type quoteRequest struct {
	ZipCode   string               `json:"zipCode"`
	Province  string               `json:"province"`
	CartTotal int64                `json:"cartTotal"`
	Items     []shipping.QuoteItem `json:"items"`
}

func (h *ShippingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := helpers.DecodeJSON(r.Body, &req); err != nil {
		helpers.HttpError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error(), nil)
		return
	}
	res, err := h.quoter.Quote(r.Context(), shipping.QuoteRequest{
		ZipCode:   req.ZipCode,
		Province:  req.Province,
		CartTotal: req.CartTotal,
		Items:     req.Items,
	})
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}
