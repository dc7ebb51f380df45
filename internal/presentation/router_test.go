package presentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/cache"
	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/payments"
	"github.com/RaikyD/storefront-orders/internal/repository/memory"
	"github.com/RaikyD/storefront-orders/internal/shipping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu       sync.Mutex
	prefErr  error
	payErr   error
	payments map[string]payments.Payment
}

func (g *stubGateway) CreatePreference(_ context.Context, req payments.PreferenceRequest) (payments.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.prefErr != nil {
		return payments.Preference{}, g.prefErr
	}
	return payments.Preference{ID: "pref-1", RedirectURL: "https://pay.example/" + req.OrderID}, nil
}

func (g *stubGateway) GetPayment(_ context.Context, id string) (payments.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.payErr != nil {
		return payments.Payment{}, g.payErr
	}
	p, ok := g.payments[id]
	if !ok {
		return payments.Payment{}, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (g *stubGateway) set(fn func(g *stubGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	store *memory.Store
	gw    *stubGateway
	srv   *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	store.PutProduct(domain.Product{ID: "P1", Name: "Mug", Price: 1500, Stock: 2, Published: true,
		Dimensions: domain.Dimensions{WeightGrams: 300, WidthCm: 10, HeightCm: 10, LengthCm: 10}})
	store.PutRule(domain.LocalShippingRule{ID: "pickup", Name: "Store pickup", Cost: 0, IsActive: true})

	gw := &stubGateway{payments: map[string]payments.Payment{}}
	svc := application.NewOrdersService(store, store, gw, nil, application.ServiceConfig{Currency: "ARS"})
	rec := application.NewReconciler(gw, store, cache.NewKeyedMutex(), nil)
	agg := shipping.NewAggregator(store, store, nil)

	srv := httptest.NewServer(NewRouter(RouterDeps{
		Orders:   NewOrdersHandler(svc),
		Webhooks: NewWebhookHandler(rec),
		Shipping: NewShippingHandler(agg),
		DB:       pinger{},
	}))
	t.Cleanup(srv.Close)
	return &testServer{store: store, gw: gw, srv: srv}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func (s *testServer) checkout(t *testing.T) string {
	t.Helper()
	res, body := s.do(t, http.MethodPost, "/api/checkout",
		`{"items":[{"productId":"P1","quantity":2}],"buyerEmail":"buyer@example.com","customerData":{"name":"Ana"}}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	return body["orderId"].(string)
}

func TestCheckoutEndpoint(t *testing.T) {
	s := newTestServer(t)

	res, body := s.do(t, http.MethodPost, "/api/checkout",
		`{"items":[{"productId":"P1","quantity":2}],"buyerEmail":"buyer@example.com","customerData":{"name":"Ana"}}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, float64(3000), body["totalAmount"])
	assert.Equal(t, "pref-1", body["paymentReferenceId"])
	assert.Contains(t, body["redirectUrl"], body["orderId"])

	res, body = s.do(t, http.MethodPost, "/api/checkout",
		`{"items":[{"productId":"P1","quantity":3}],"buyerEmail":"buyer@example.com","customerData":{}}`)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "insufficient_stock", body["error"])

	res, body = s.do(t, http.MethodPost, "/api/checkout",
		`{"items":[{"productId":"P404","quantity":1}],"buyerEmail":"buyer@example.com","customerData":{}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "product_unavailable", body["error"])

	res, _ = s.do(t, http.MethodPost, "/api/checkout", `{"items":[],"buyerEmail":"buyer@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = s.do(t, http.MethodPost, "/api/checkout", `{"items":`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCheckoutGatewayDownReturnsAccepted(t *testing.T) {
	s := newTestServer(t)
	s.gw.set(func(g *stubGateway) { g.prefErr = domain.ErrGatewayUnavailable })

	res, body := s.do(t, http.MethodPost, "/api/checkout",
		`{"items":[{"productId":"P1","quantity":1}],"buyerEmail":"buyer@example.com","customerData":{}}`)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, true, body["retry"])
	id := body["orderId"].(string)

	s.gw.set(func(g *stubGateway) { g.prefErr = nil })
	res, body = s.do(t, http.MethodPost, "/api/orders/"+id+"/preference", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "pref-1", body["paymentReferenceId"])
}

func TestGetOrderEndpoint(t *testing.T) {
	s := newTestServer(t)
	id := s.checkout(t)

	res, body := s.do(t, http.MethodGet, "/api/orders/"+id, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, id, body["id"])
	assert.Len(t, body["items"], 1)

	res, _ = s.do(t, http.MethodGet, "/api/orders/7d9f4a8e-1c3b-4e55-9a0e-2f6b8c1d3e4f", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = s.do(t, http.MethodGet, "/api/orders/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPaymentWebhook(t *testing.T) {
	s := newTestServer(t)
	id := s.checkout(t)
	s.gw.set(func(g *stubGateway) {
		g.payments["555"] = payments.Payment{ID: "555", Status: "approved", ExternalReference: id, Amount: 3000}
	})

	res, body := s.do(t, http.MethodPost, "/webhooks/payments", `{"type":"payment","action":"payment.updated","data":{"id":"555"}}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "processed", body["status"])

	res, body = s.do(t, http.MethodGet, "/webhooks/payments?topic=payment&id=555", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "already_processed", body["status"])

	p, _ := s.store.Product("P1")
	assert.Equal(t, 0, p.Stock)

	res, body = s.do(t, http.MethodPost, "/webhooks/payments?type=merchant_order&data.id=1", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ignored", body["status"])

	res, body = s.do(t, http.MethodPost, "/webhooks/payments?type=payment&data.id=404", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "payment_unknown", body["status"])

	res, _ = s.do(t, http.MethodPost, "/webhooks/payments", `{"type":"payment","data":{}}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = s.do(t, http.MethodPost, "/webhooks/payments", `{"type":`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	s.gw.set(func(g *stubGateway) { g.payErr = errors.Join(domain.ErrGatewayUnavailable, errors.New("timeout")) })
	res, _ = s.do(t, http.MethodPost, "/webhooks/payments?topic=payment&id=555", "")
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestShippingQuoteEndpoint(t *testing.T) {
	s := newTestServer(t)

	res, body := s.do(t, http.MethodPost, "/api/shipping/quote",
		`{"zipCode":"1000","province":"Buenos Aires","cartTotal":3000,"items":[{"productId":"P1","quantity":1}]}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	all, ok := body["all"].([]any)
	require.True(t, ok)
	require.Len(t, all, 1)
	assert.Equal(t, "local-pickup", all[0].(map[string]any)["id"])

	res, _ = s.do(t, http.MethodPost, "/api/shipping/quote", `{"zipCode":"","cartTotal":1}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	res, body := s.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", body["status"])

	down := httptest.NewServer(NewRouter(RouterDeps{DB: pinger{err: errors.New("refused")}}))
	defer down.Close()
	r, err := down.Client().Get(down.URL + "/healthz")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, r.StatusCode)

	r, err = down.Client().Get(down.URL + "/metrics")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}
