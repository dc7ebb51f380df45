// Package memory is an in-process implementation of the repository contracts, used
// for local runs without Postgres and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*domain.Order
	products map[string]*domain.Product
	rules    []domain.LocalShippingRule
}

func NewStore() *Store {
	return &Store{
		orders:   make(map[uuid.UUID]*domain.Order),
		products: make(map[string]*domain.Product),
	}
}

var (
	_ repository.OrderStore         = (*Store)(nil)
	_ repository.CatalogReader      = (*Store)(nil)
	_ repository.ShippingRuleSource = (*Store)(nil)
)

func (s *Store) CreateOrder(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return domain.ErrInvalidInput
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) SetPaymentReference(_ context.Context, id uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.PaymentReferenceID = ref
	return nil
}

// Transition holds the store lock for the whole decide-and-apply step, which is the
// in-memory equivalent of the row lock taken by the Postgres store.
func (s *Store) Transition(_ context.Context, id uuid.UUID, decide repository.DecideFunc) (repository.TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return repository.TransitionResult{}, domain.ErrOrderNotFound
	}
	t, reason := decide(cloneOrder(o))
	if reason != domain.ReasonApplied {
		return repository.TransitionResult{Order: cloneOrder(o), Reason: reason}, nil
	}

	o.Status = t.To
	o.PaymentTransactionID = t.PaymentTransactionID
	o.UpdatedAt = t.At
	o.Timeline = append(o.Timeline, t.Entry())
	if t.DecrementStock {
		for _, d := range repository.StockDecrements(o.Items) {
			s.decrementLocked(d)
		}
	}
	return repository.TransitionResult{Order: cloneOrder(o), Transition: t, Reason: reason}, nil
}

func (s *Store) decrementLocked(d domain.StockDecrement) {
	p, ok := s.products[d.ProductID]
	if !ok {
		return
	}
	if d.VariantID == nil {
		p.Stock -= d.Quantity
		return
	}
	for i := range p.Variants {
		if p.Variants[i].ID == *d.VariantID {
			p.Variants[i].Stock -= d.Quantity
			return
		}
	}
}

func (s *Store) ProductsByID(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = cloneProduct(p)
		}
	}
	return out, nil
}

func (s *Store) ActiveRules(_ context.Context) ([]domain.LocalShippingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LocalShippingRule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out, nil
}

// PutProduct inserts or replaces a catalog product.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneProduct(&p)
	s.products[p.ID] = &cp
}

func (s *Store) PutRule(r domain.LocalShippingRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == r.ID {
			s.rules[i] = r
			return
		}
	}
	s.rules = append(s.rules, r)
}

// Product returns the current catalog state of a product.
func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, false
	}
	return cloneProduct(p), true
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	cp.Timeline = append([]domain.TimelineEntry(nil), o.Timeline...)
	cp.ShippingAddress = append(domain.Blob(nil), o.ShippingAddress...)
	cp.BillingAddress = append(domain.Blob(nil), o.BillingAddress...)
	cp.CustomerData = append(domain.Blob(nil), o.CustomerData...)
	return &cp
}

func cloneProduct(p *domain.Product) domain.Product {
	cp := *p
	cp.Variants = append([]domain.Variant(nil), p.Variants...)
	return cp
}
