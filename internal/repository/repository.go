package repository

import (
	"context"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/google/uuid"
)

// DecideFunc inspects the locked current state of an order and returns the transition
// to apply. Anything other than domain.ReasonApplied leaves the order untouched.
type DecideFunc func(current *domain.Order) (domain.Transition, domain.DecideReason)

type TransitionResult struct {
	Order      *domain.Order
	Transition domain.Transition
	Reason     domain.DecideReason
}

func (r TransitionResult) Applied() bool {
	return r.Reason == domain.ReasonApplied
}

// OrderStore persists orders, their items and their timeline.
type OrderStore interface {
	// CreateOrder stores the order with its items and timeline atomically.
	CreateOrder(ctx context.Context, o *domain.Order) error
	// GetOrder returns domain.ErrOrderNotFound when the order does not exist.
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	SetPaymentReference(ctx context.Context, id uuid.UUID, ref string) error
	// Transition runs decide under an exclusive per-order lock and, when it decides to
	// apply, writes status, transaction id, timeline entry and (for PAID) the stock
	// decrement of every item in one atomic step.
	Transition(ctx context.Context, id uuid.UUID, decide DecideFunc) (TransitionResult, error)
}

type CatalogReader interface {
	// ProductsByID returns the products found, keyed by id, with their variants.
	// Unknown ids are simply absent from the map.
	ProductsByID(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type ShippingRuleSource interface {
	ActiveRules(ctx context.Context) ([]domain.LocalShippingRule, error)
}

// StockDecrements turns the items of a paid order into catalog decrements.
func StockDecrements(items []domain.OrderItem) []domain.StockDecrement {
	out := make([]domain.StockDecrement, 0, len(items))
	for _, it := range items {
		out = append(out, domain.StockDecrement{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		})
	}
	return out
}
