package presentation

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/presentation/helpers"
	"github.com/go-chi/chi/v5"
)

type Reconciler interface {
	Reconcile(ctx context.Context, paymentID, topic string) (application.ReconcileOutcome, error)
}

type WebhookHandler struct {
	rec Reconciler
}

func NewWebhookHandler(rec Reconciler) *WebhookHandler {
	return &WebhookHandler{rec: rec}
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhooks/payments", h.Payments)
	r.Get("/webhooks/payments", h.Payments)
}

// Payments acknowledges everything except transient failures so the gateway only
// redelivers what a retry can fix.
func (h *WebhookHandler) Payments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n := application.Notification{
		Topic:     firstParam(q.Get("topic"), q.Get("type")),
		PaymentID: firstParam(q.Get("data.id"), q.Get("id")),
	}

	var bodyErr error
	if r.Body != nil {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		if err != nil {
			bodyErr = err
		} else {
			fromBody, err := application.DecodeNotification(raw)
			bodyErr = err
			n = n.Merge(fromBody)
		}
	}
	if n.PaymentID == "" && bodyErr != nil {
		logger.Warn("webhook: unreadable notification", "err", bodyErr)
		helpers.WriteError(w, r, bodyErr)
		return
	}

	outcome, err := h.rec.Reconcile(r.Context(), n.PaymentID, n.Topic)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedNotification) {
			logger.Warn("webhook: malformed notification", "topic", n.Topic, "err", err)
		}
		helpers.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

func firstParam(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
