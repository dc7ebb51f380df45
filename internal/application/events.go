package application

import (
	"context"
	"time"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is published after an order is created or changes status.
type OrderEvent struct {
	Type                 string        `json:"type"`
	OrderID              uuid.UUID     `json:"order_id"`
	Status               domain.Status `json:"status"`
	PreviousStatus       domain.Status `json:"previous_status,omitempty"`
	TotalAmount          int64         `json:"total_amount"`
	Currency             string        `json:"currency"`
	PaymentTransactionID string        `json:"payment_transaction_id,omitempty"`
	Note                 string        `json:"note,omitempty"`
	OccurredAt           time.Time     `json:"occurred_at"`
}

// EventPublisher delivers order events. Publishing is best effort: a failure is
// logged by the caller and never undoes the committed change.
type EventPublisher interface {
	Publish(ctx context.Context, e OrderEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, OrderEvent) error { return nil }

// NopPublisher is used when no broker is configured.
var NopPublisher EventPublisher = nopPublisher{}
