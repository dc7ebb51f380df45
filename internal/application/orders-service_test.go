package application

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func i64Ptr(v int64) *int64 { return &v }

var fixedNow = time.Date(2026, 4, 2, 15, 4, 5, 0, time.UTC)

func newCatalog() *memory.Store {
	s := memory.NewStore()
	s.PutProduct(domain.Product{ID: "P1", Name: "Mug", Price: 1500, Stock: 2, Published: true, Image: "mug.png"})
	s.PutProduct(domain.Product{ID: "P2", Name: "Shirt", Price: 5000, Stock: 10, Published: true,
		Variants: []domain.Variant{
			{ID: "S", ProductID: "P2", Name: "Small", Stock: 1},
			{ID: "XL", ProductID: "P2", Name: "XL", Stock: 5, Price: i64Ptr(5500)},
		}})
	s.PutProduct(domain.Product{ID: "P3", Name: "Draft", Price: 100, Stock: 10, Published: false})
	return s
}

func newService(store *memory.Store, gw *fakeGateway, pub *recordingPublisher) *OrdersService {
	svc := NewOrdersService(&countingStore{OrderStore: store}, store, gw, pub, ServiceConfig{
		Currency: "ARS",
		URLs: CheckoutURLs{
			Success:      "https://shop.example/checkout/success",
			Failure:      "https://shop.example/checkout/failure",
			Pending:      "https://shop.example/checkout/pending?src=mp",
			Notification: "https://api.shop.example/webhooks/payments",
		},
	})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestCreateOrder(t *testing.T) {
	store := newCatalog()
	gw := newFakeGateway()
	pub := &recordingPublisher{}
	svc := newService(store, gw, pub)

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Items: []CartLine{
			{ProductID: "P1", Quantity: 1},
			{ProductID: "P2", VariantID: strPtr("XL"), Quantity: 2},
			{ProductID: "P1", Quantity: 1},
		},
		BuyerEmail:   "Buyer@Example.com",
		CustomerData: domain.Blob(`{"name":"Ana"}`),
	})
	require.NoError(t, err)
	require.NoError(t, res.PreferenceErr)

	o := res.Order
	require.Len(t, o.Items, 2)
	assert.Equal(t, 2, o.Items[0].Quantity, "duplicate lines are merged")
	assert.Equal(t, "Shirt - XL", o.Items[1].Name)
	assert.Equal(t, int64(5500), o.Items[1].UnitPrice)
	assert.Equal(t, int64(3000+11000), o.Subtotal)
	assert.Equal(t, o.Subtotal, o.TotalAmount)
	assert.Equal(t, "buyer@example.com", o.BuyerEmail)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, []domain.TimelineEntry{{Status: domain.StatusPending, Timestamp: fixedNow, Note: "order created"}}, o.Timeline)
	assert.Equal(t, "https://pay.example/checkout?pref="+o.ID.String(), res.RedirectURL)

	stored, err := store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "pref-"+o.ID.String(), stored.PaymentReferenceID)
	assert.Len(t, stored.Items, 2)

	require.Len(t, gw.preferences, 1)
	req := gw.preferences[0]
	assert.Equal(t, o.ID.String(), req.OrderID)
	assert.Equal(t, "https://api.shop.example/webhooks/payments", req.NotificationURL)
	pending, err := url.Parse(req.BackURLs.Pending)
	require.NoError(t, err)
	assert.Equal(t, o.ID.String(), pending.Query().Get("order_id"))
	assert.Equal(t, "mp", pending.Query().Get("src"))
	assert.Len(t, req.Items, 2)

	p1, _ := store.Product("P1")
	assert.Equal(t, 2, p1.Stock, "checkout does not touch stock")
	assert.Equal(t, []string{EventOrderCreated}, pub.types())
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	store := newCatalog()
	gw := newFakeGateway()
	svc := newService(store, gw, &recordingPublisher{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:      []CartLine{{ProductID: "P1", Quantity: 3}},
		BuyerEmail: "buyer@example.com",
	})
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, "P1", stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)
	assert.Zero(t, ordersCreated(svc))
	assert.Empty(t, gw.preferences)
}

func TestCreateOrderVariantStockIsIndependent(t *testing.T) {
	store := newCatalog()
	svc := newService(store, newFakeGateway(), &recordingPublisher{})

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:      []CartLine{{ProductID: "P2", VariantID: strPtr("S"), Quantity: 2}},
		BuyerEmail: "buyer@example.com",
	})
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "S", stockErr.VariantID)
}

func TestCreateOrderProductUnavailable(t *testing.T) {
	tests := map[string]CartLine{
		"missing":         {ProductID: "nope", Quantity: 1},
		"unpublished":     {ProductID: "P3", Quantity: 1},
		"unknown variant": {ProductID: "P2", VariantID: strPtr("XXL"), Quantity: 1},
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			store := newCatalog()
			svc := newService(store, newFakeGateway(), &recordingPublisher{})
			_, err := svc.CreateOrder(context.Background(), CreateOrderInput{Items: []CartLine{line}, BuyerEmail: "buyer@example.com"})
			var unavailable *domain.ProductUnavailableError
			require.ErrorAs(t, err, &unavailable)
			assert.Equal(t, line.ProductID, unavailable.ProductID)
			assert.Zero(t, ordersCreated(svc))
		})
	}
}

func TestCreateOrderInvalidInput(t *testing.T) {
	tests := map[string]CreateOrderInput{
		"empty cart":        {BuyerEmail: "buyer@example.com"},
		"zero quantity":     {Items: []CartLine{{ProductID: "P1"}}, BuyerEmail: "buyer@example.com"},
		"bad email":         {Items: []CartLine{{ProductID: "P1", Quantity: 1}}, BuyerEmail: "not-an-email"},
		"discount too big":  {Items: []CartLine{{ProductID: "P1", Quantity: 1}}, BuyerEmail: "buyer@example.com", Discount: 2000},
		"non object blob":   {Items: []CartLine{{ProductID: "P1", Quantity: 1}}, BuyerEmail: "buyer@example.com", ShippingAddress: domain.Blob(`"street"`)},
		"negative shipping": {Items: []CartLine{{ProductID: "P1", Quantity: 1}}, BuyerEmail: "buyer@example.com", ShippingCost: -1},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			store := newCatalog()
			svc := newService(store, newFakeGateway(), &recordingPublisher{})
			_, err := svc.CreateOrder(context.Background(), in)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Zero(t, ordersCreated(svc))
		})
	}
}

func TestCreateOrderTotalsWithShippingAndDiscount(t *testing.T) {
	store := newCatalog()
	gw := newFakeGateway()
	svc := newService(store, gw, &recordingPublisher{})

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:        []CartLine{{ProductID: "P1", Quantity: 2}},
		BuyerEmail:   "buyer@example.com",
		ShippingCost: 800,
		Discount:     300,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000+800-300), res.Order.TotalAmount)

	require.Len(t, gw.preferences, 1)
	var charged int64
	for _, it := range gw.preferences[0].Items {
		charged += it.UnitPrice * int64(it.Quantity)
	}
	assert.Equal(t, res.Order.TotalAmount, charged)
}

func TestCreateOrderGatewayFailureKeepsPendingOrder(t *testing.T) {
	store := newCatalog()
	gw := newFakeGateway()
	gw.prefErr = domain.ErrGatewayUnavailable
	svc := newService(store, gw, &recordingPublisher{})

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:      []CartLine{{ProductID: "P1", Quantity: 1}},
		BuyerEmail: "buyer@example.com",
	})
	require.NoError(t, err)
	require.ErrorIs(t, res.PreferenceErr, domain.ErrGatewayUnavailable)
	assert.Empty(t, res.RedirectURL)

	stored, err := store.GetOrder(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Empty(t, stored.PaymentReferenceID)

	gw.prefErr = nil
	retried, err := svc.RetryPreference(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, retried.RedirectURL)

	stored, err = store.GetOrder(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pref-"+res.Order.ID.String(), stored.PaymentReferenceID)
}

func TestSnapshotSurvivesCatalogEdits(t *testing.T) {
	store := newCatalog()
	svc := newService(store, newFakeGateway(), &recordingPublisher{})

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:      []CartLine{{ProductID: "P1", Quantity: 1}},
		BuyerEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	p, _ := store.Product("P1")
	p.Name = "Renamed mug"
	p.Price = 9999
	store.PutProduct(p)

	got, err := svc.GetOrder(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mug", got.Items[0].Name)
	assert.Equal(t, int64(1500), got.Items[0].UnitPrice)
}

func TestRetryPreferenceRequiresPendingOrder(t *testing.T) {
	store := newCatalog()
	gw := newFakeGateway()
	svc := newService(store, gw, &recordingPublisher{})

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Items:      []CartLine{{ProductID: "P1", Quantity: 1}},
		BuyerEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	_, err = store.Transition(context.Background(), res.Order.ID, func(cur *domain.Order) (domain.Transition, domain.DecideReason) {
		return domain.DecideTransition(cur, domain.StatusCancelled, "payment cancelled", "pay-9", fixedNow)
	})
	require.NoError(t, err)

	_, err = svc.RetryPreference(context.Background(), res.Order.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotPending)
}
