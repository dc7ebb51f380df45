package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RaikyD/storefront-orders/internal/cache"
	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/metrics"
	"github.com/RaikyD/storefront-orders/internal/payments"
	"github.com/RaikyD/storefront-orders/internal/repository"
	"github.com/google/uuid"
)

type ReconcileOutcome string

const (
	OutcomeProcessed        ReconcileOutcome = "processed"
	OutcomeNoChange         ReconcileOutcome = "no_change"
	OutcomeAlreadyProcessed ReconcileOutcome = "already_processed"
	OutcomeIgnored          ReconcileOutcome = "ignored"
	OutcomeOrderMissing     ReconcileOutcome = "order_missing"
	OutcomePaymentUnknown   ReconcileOutcome = "payment_unknown"
)

// IsPaymentTopic reports whether a notification topic concerns a payment.
func IsPaymentTopic(topic string) bool {
	switch strings.ToLower(strings.TrimSpace(topic)) {
	case "payment", "payment.created", "payment.updated":
		return true
	}
	return false
}

// Reconciler applies the gateway's authoritative payment state to orders. It is safe
// to call for the same payment any number of times, concurrently.
type Reconciler struct {
	gateway payments.Gateway
	store   repository.OrderStore
	locker  cache.Locker
	events  EventPublisher
	now     func() time.Time
}

func NewReconciler(gw payments.Gateway, store repository.OrderStore, locker cache.Locker, events EventPublisher) *Reconciler {
	if locker == nil {
		locker = cache.NewKeyedMutex()
	}
	if events == nil {
		events = NopPublisher
	}
	return &Reconciler{
		gateway: gw,
		store:   store,
		locker:  locker,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile returns an error only for malformed notifications and for failures the
// delivery infrastructure should retry (domain.Retryable reports true for those).
func (r *Reconciler) Reconcile(ctx context.Context, paymentID, topic string) (outcome ReconcileOutcome, err error) {
	defer func() {
		switch {
		case errors.Is(err, domain.ErrMalformedNotification):
			metrics.ObserveReconciliation("malformed")
		case err != nil:
			metrics.ObserveReconciliation("failed")
		default:
			metrics.ObserveReconciliation(string(outcome))
		}
	}()

	if !IsPaymentTopic(topic) {
		logger.Debug("reconcile: topic ignored", "topic", topic)
		return OutcomeIgnored, nil
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return "", fmt.Errorf("%w: payment id is missing", domain.ErrMalformedNotification)
	}

	payment, err := r.gateway.GetPayment(ctx, paymentID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		logger.Warn("reconcile: payment unknown to gateway", "payment_id", paymentID)
		return OutcomePaymentUnknown, nil
	}
	if err != nil {
		logger.Warn("reconcile: get payment failed", "payment_id", paymentID, "err", err)
		return "", &domain.ReconciliationFailedError{PaymentID: paymentID, Err: err}
	}

	orderID, err := uuid.Parse(strings.TrimSpace(payment.ExternalReference))
	if err != nil {
		logger.Warn("reconcile: external reference is not an order", "payment_id", paymentID, "external_reference", payment.ExternalReference)
		return OutcomeOrderMissing, nil
	}

	release, err := r.locker.Lock(ctx, orderID.String())
	if err != nil {
		return "", &domain.ReconciliationFailedError{PaymentID: paymentID, Err: fmt.Errorf("lock order %s: %w", orderID, err)}
	}
	defer release()

	target, note := domain.MapGatewayStatus(payment.Status, payment.StatusDetail)
	txID := payment.ID
	if txID == "" {
		txID = paymentID
	}
	var previous domain.Status
	res, err := r.store.Transition(ctx, orderID, func(cur *domain.Order) (domain.Transition, domain.DecideReason) {
		previous = cur.Status
		n := note
		if target == domain.StatusPaid && payment.Amount > 0 && payment.Amount != cur.TotalAmount {
			logger.Warn("reconcile: paid amount differs from order total",
				"order_id", cur.ID, "payment_id", paymentID, "paid", payment.Amount, "expected", cur.TotalAmount)
			n += fmt.Sprintf("; amount mismatch: paid %d, expected %d", payment.Amount, cur.TotalAmount)
		}
		return domain.DecideTransition(cur, target, n, txID, r.now())
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		logger.Warn("reconcile: order not found", "order_id", orderID, "payment_id", paymentID)
		return OutcomeOrderMissing, nil
	}
	if err != nil {
		logger.Error("reconcile: transition failed", "order_id", orderID, "payment_id", paymentID, "err", err)
		return "", &domain.ReconciliationFailedError{PaymentID: paymentID, Err: err}
	}

	switch res.Reason {
	case domain.ReasonAlreadyPaid, domain.ReasonTerminal:
		logger.Info("reconcile: order already settled", "order_id", orderID, "status", res.Order.Status, "gateway_status", payment.Status)
		return OutcomeAlreadyProcessed, nil
	case domain.ReasonNoChange:
		return OutcomeNoChange, nil
	}

	logger.Info("order status changed",
		"order_id", orderID, "from", previous, "to", res.Transition.To,
		"payment_id", paymentID, "stock_decremented", res.Transition.DecrementStock)
	if err := r.events.Publish(ctx, OrderEvent{
		Type:                 EventOrderStatusChanged,
		OrderID:              orderID,
		Status:               res.Transition.To,
		PreviousStatus:       previous,
		TotalAmount:          res.Order.TotalAmount,
		Currency:             res.Order.Currency,
		PaymentTransactionID: res.Transition.PaymentTransactionID,
		Note:                 res.Transition.Note,
		OccurredAt:           res.Transition.At,
	}); err != nil {
		logger.Warn("publish order event failed", "type", EventOrderStatusChanged, "order_id", orderID, "err", err)
	}
	return OutcomeProcessed, nil
}
