package application

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/payments"
	"github.com/RaikyD/storefront-orders/internal/repository"
)

// countingStore counts orders that were actually persisted.
type countingStore struct {
	repository.OrderStore
	created atomic.Int32
}

func (c *countingStore) CreateOrder(ctx context.Context, o *domain.Order) error {
	if err := c.OrderStore.CreateOrder(ctx, o); err != nil {
		return err
	}
	c.created.Add(1)
	return nil
}

func ordersCreated(svc *OrdersService) int32 {
	return svc.store.(*countingStore).created.Load()
}

type fakeGateway struct {
	mu          sync.Mutex
	prefErr     error
	paymentErr  error
	payments    map[string]payments.Payment
	preferences []payments.PreferenceRequest
	lookups     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: make(map[string]payments.Payment)}
}

func (g *fakeGateway) CreatePreference(_ context.Context, req payments.PreferenceRequest) (payments.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.preferences = append(g.preferences, req)
	if g.prefErr != nil {
		return payments.Preference{}, g.prefErr
	}
	return payments.Preference{ID: "pref-" + req.OrderID, RedirectURL: "https://pay.example/checkout?pref=" + req.OrderID}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (payments.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	if g.paymentErr != nil {
		return payments.Payment{}, g.paymentErr
	}
	p, ok := g.payments[id]
	if !ok {
		return payments.Payment{}, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (g *fakeGateway) setPayment(p payments.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = p
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
