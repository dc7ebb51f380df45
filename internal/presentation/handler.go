package presentation

import (
	"context"
	"net/http"
	"strings"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/presentation/helpers"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrdersService interface {
	CreateOrder(ctx context.Context, in application.CreateOrderInput) (application.CreateOrderResult, error)
	RetryPreference(ctx context.Context, orderID uuid.UUID) (application.CreateOrderResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
}

type OrdersHandler struct {
	svc OrdersService
}

func NewOrdersHandler(svc OrdersService) *OrdersHandler {
	return &OrdersHandler{svc: svc}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/api/checkout", h.Checkout)
	r.Get("/api/orders/{id}", h.GetOrder)
	r.Post("/api/orders/{id}/preference", h.RetryPreference)
}

type checkoutRequest struct {
	Items           []application.CartLine `json:"items"`
	BuyerEmail      string                 `json:"buyerEmail"`
	UserID          *string                `json:"userId,omitempty"`
	CustomerData    domain.Blob            `json:"customerData"`
	ShippingAddress domain.Blob            `json:"shippingAddress,omitempty"`
	BillingAddress  domain.Blob            `json:"billingAddress,omitempty"`
	ShippingCost    int64                  `json:"shippingCost,omitempty"`
	Discount        int64                  `json:"discount,omitempty"`
}

type checkoutResponse struct {
	OrderID            uuid.UUID     `json:"orderId"`
	Status             domain.Status `json:"status"`
	TotalAmount        int64         `json:"totalAmount"`
	Currency           string        `json:"currency"`
	RedirectURL        string        `json:"redirectUrl,omitempty"`
	PaymentReferenceID string        `json:"paymentReferenceId,omitempty"`
	Retry              bool          `json:"retry,omitempty"`
	Message            string        `json:"message,omitempty"`
}

func (h *OrdersHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := helpers.DecodeJSON(r.Body, &req); err != nil {
		helpers.HttpError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error(), nil)
		return
	}

	res, err := h.svc.CreateOrder(r.Context(), application.CreateOrderInput{
		Items:           req.Items,
		BuyerEmail:      req.BuyerEmail,
		UserID:          req.UserID,
		CustomerData:    req.CustomerData,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		ShippingCost:    req.ShippingCost,
		Discount:        req.Discount,
	})
	if err != nil {
		logger.Info("checkout rejected", "err", err)
		helpers.WriteError(w, r, err)
		return
	}

	resp := toCheckoutResponse(res)
	if res.PreferenceErr != nil {
		resp.Retry = true
		resp.Message = "order created, payment could not be started; try again"
		helpers.WriteJSON(w, http.StatusAccepted, resp)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, resp)
}

func (h *OrdersHandler) RetryPreference(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RetryPreference(r.Context(), id)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, toCheckoutResponse(res))
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, o)
}

func toCheckoutResponse(res application.CreateOrderResult) checkoutResponse {
	return checkoutResponse{
		OrderID:            res.Order.ID,
		Status:             res.Order.Status,
		TotalAmount:        res.Order.TotalAmount,
		Currency:           res.Order.Currency,
		RedirectURL:        res.RedirectURL,
		PaymentReferenceID: res.Order.PaymentReferenceID,
	}
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		helpers.HttpError(w, r, http.StatusBadRequest, "invalid_request", "order id must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
