package application

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/payments"
	"github.com/RaikyD/storefront-orders/internal/repository"
	"github.com/google/uuid"
)

// CheckoutURLs are the gateway return and notification endpoints. Return URLs get
// the order id appended as the order_id query parameter.
type CheckoutURLs struct {
	Success      string
	Failure      string
	Pending      string
	Notification string
}

type ServiceConfig struct {
	Currency string
	URLs     CheckoutURLs
}

type CartLine struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	Quantity  int     `json:"quantity"`
}

type CreateOrderInput struct {
	Items           []CartLine
	BuyerEmail      string
	UserID          *string
	CustomerData    domain.Blob
	ShippingAddress domain.Blob
	BillingAddress  domain.Blob
	ShippingCost    int64
	Discount        int64
}

// CreateOrderResult carries the persisted order. PreferenceErr is set when the order
// exists but the payment preference could not be created; the caller may retry it.
type CreateOrderResult struct {
	Order         *domain.Order
	RedirectURL   string
	PreferenceErr error
}

type OrdersService struct {
	store   repository.OrderStore
	catalog repository.CatalogReader
	gateway payments.Gateway
	events  EventPublisher
	cfg     ServiceConfig
	now     func() time.Time
}

func NewOrdersService(store repository.OrderStore, catalog repository.CatalogReader, gw payments.Gateway, events EventPublisher, cfg ServiceConfig) *OrdersService {
	if events == nil {
		events = NopPublisher
	}
	if cfg.Currency == "" {
		cfg.Currency = "ARS"
	}
	return &OrdersService{
		store:   store,
		catalog: catalog,
		gateway: gw,
		events:  events,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrdersService) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	email, err := normaliseEmail(in.BuyerEmail)
	if err != nil {
		return CreateOrderResult{}, err
	}
	lines, err := mergeLines(in.Items)
	if err != nil {
		return CreateOrderResult{}, err
	}
	for _, b := range []domain.Blob{in.CustomerData, in.ShippingAddress, in.BillingAddress} {
		if !b.Valid() {
			return CreateOrderResult{}, fmt.Errorf("%w: customer and address data must be JSON objects", domain.ErrInvalidInput)
		}
	}

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.catalog.ProductsByID(ctx, ids)
	if err != nil {
		return CreateOrderResult{}, fmt.Errorf("load products: %w", err)
	}

	now := s.now()
	orderID := uuid.New()
	items := make([]domain.OrderItem, 0, len(lines))
	var subtotal int64
	for _, l := range lines {
		it, err := snapshotItem(products, l)
		if err != nil {
			return CreateOrderResult{}, err
		}
		it.ID = uuid.New()
		it.OrderID = orderID
		subtotal += it.LineTotal()
		items = append(items, it)
	}

	totals, err := domain.ComputeTotals(subtotal, in.ShippingCost, in.Discount)
	if err != nil {
		return CreateOrderResult{}, err
	}

	order := &domain.Order{
		ID:              orderID,
		Status:          domain.StatusPending,
		Currency:        s.cfg.Currency,
		Subtotal:        totals.Subtotal,
		ShippingCost:    totals.ShippingCost,
		Discount:        totals.Discount,
		TotalAmount:     totals.TotalAmount,
		BuyerEmail:      email,
		UserID:          in.UserID,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		CustomerData:    in.CustomerData,
		Items:           items,
		Timeline: []domain.TimelineEntry{
			{Status: domain.StatusPending, Timestamp: now, Note: "order created"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := order.Validate(); err != nil {
		return CreateOrderResult{}, err
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		logger.Warn("create order: persist failed", "order_id", orderID, "err", err)
		return CreateOrderResult{}, fmt.Errorf("persist order: %w", err)
	}
	logger.Info("order created", "order_id", orderID, "total", order.TotalAmount, "items", len(items))
	s.publish(ctx, OrderEvent{
		Type:        EventOrderCreated,
		OrderID:     orderID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		OccurredAt:  now,
	})

	res := CreateOrderResult{Order: order}
	pref, err := s.requestPreference(ctx, order)
	if err != nil {
		logger.Warn("create order: payment preference failed", "order_id", orderID, "err", err)
		res.PreferenceErr = err
		return res, nil
	}
	res.RedirectURL = pref.RedirectURL
	return res, nil
}

// RetryPreference requests a new payment preference for an order still waiting for
// payment.
func (s *OrdersService) RetryPreference(ctx context.Context, orderID uuid.UUID) (CreateOrderResult, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if order.Status != domain.StatusPending {
		return CreateOrderResult{}, fmt.Errorf("%w: order %s is %s", domain.ErrOrderNotPending, orderID, order.Status)
	}
	pref, err := s.requestPreference(ctx, order)
	if err != nil {
		return CreateOrderResult{}, err
	}
	return CreateOrderResult{Order: order, RedirectURL: pref.RedirectURL}, nil
}

func (s *OrdersService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *OrdersService) requestPreference(ctx context.Context, order *domain.Order) (payments.Preference, error) {
	lines := make([]payments.LineItem, 0, len(order.Items)+1)
	for _, it := range order.Items {
		lines = append(lines, payments.LineItem{Title: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	// Discounts are not itemised; the gateway charges the sum of the lines.
	if order.ShippingCost > 0 && order.Discount == 0 {
		lines = append(lines, payments.LineItem{Title: "Shipping", Quantity: 1, UnitPrice: order.ShippingCost})
	} else if order.ShippingCost > 0 || order.Discount > 0 {
		lines = []payments.LineItem{{Title: "Order " + order.ID.String(), Quantity: 1, UnitPrice: order.TotalAmount}}
	}

	id := order.ID.String()
	pref, err := s.gateway.CreatePreference(ctx, payments.PreferenceRequest{
		OrderID:    id,
		Items:      lines,
		Currency:   order.Currency,
		PayerEmail: order.BuyerEmail,
		BackURLs: payments.BackURLs{
			Success: withOrderID(s.cfg.URLs.Success, id),
			Failure: withOrderID(s.cfg.URLs.Failure, id),
			Pending: withOrderID(s.cfg.URLs.Pending, id),
		},
		NotificationURL: s.cfg.URLs.Notification,
	})
	if err != nil {
		return payments.Preference{}, err
	}
	order.PaymentReferenceID = pref.ID
	if err := s.store.SetPaymentReference(ctx, order.ID, pref.ID); err != nil {
		// the buyer can still pay; reconciliation goes by external reference
		logger.Warn("store payment reference failed", "order_id", order.ID, "preference_id", pref.ID, "err", err)
	}
	return pref, nil
}

func (s *OrdersService) publish(ctx context.Context, e OrderEvent) {
	if err := s.events.Publish(ctx, e); err != nil {
		logger.Warn("publish order event failed", "type", e.Type, "order_id", e.OrderID, "err", err)
	}
}

func snapshotItem(products map[string]domain.Product, l CartLine) (domain.OrderItem, error) {
	variantID := ""
	if l.VariantID != nil {
		variantID = *l.VariantID
	}
	p, ok := products[l.ProductID]
	if !ok {
		return domain.OrderItem{}, &domain.ProductUnavailableError{ProductID: l.ProductID, VariantID: variantID, Reason: "not found"}
	}
	if !p.Published {
		return domain.OrderItem{}, &domain.ProductUnavailableError{ProductID: l.ProductID, VariantID: variantID, Reason: "not published"}
	}

	it := domain.OrderItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  l.Quantity,
		Image:     p.Image,
	}
	available := p.Stock
	if l.VariantID != nil {
		v, ok := p.Variant(variantID)
		if !ok {
			return domain.OrderItem{}, &domain.ProductUnavailableError{ProductID: l.ProductID, VariantID: variantID, Reason: "unknown variant"}
		}
		vid := v.ID
		it.VariantID = &vid
		it.Name = p.Name + " - " + v.Name
		if v.Price != nil {
			it.UnitPrice = *v.Price
		}
		available = v.Stock
	}
	if l.Quantity > available {
		return domain.OrderItem{}, &domain.InsufficientStockError{
			ProductID: l.ProductID,
			VariantID: variantID,
			Name:      it.Name,
			Requested: l.Quantity,
			Available: available,
		}
	}
	return it, nil
}

// mergeLines validates the cart and folds repeated product/variant pairs together,
// keeping first-seen order.
func mergeLines(in []CartLine) ([]CartLine, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", domain.ErrInvalidInput)
	}
	out := make([]CartLine, 0, len(in))
	index := make(map[string]int, len(in))
	for _, l := range in {
		l.ProductID = strings.TrimSpace(l.ProductID)
		if l.ProductID == "" {
			return nil, fmt.Errorf("%w: product id is required", domain.ErrInvalidInput)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", domain.ErrInvalidInput, l.ProductID)
		}
		key := l.ProductID
		if l.VariantID != nil {
			v := strings.TrimSpace(*l.VariantID)
			if v == "" {
				l.VariantID = nil
			} else {
				l.VariantID = &v
				key += "\x00" + v
			}
		}
		if i, ok := index[key]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func normaliseEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("%w: buyer email %q is malformed", domain.ErrInvalidInput, raw)
	}
	return strings.ToLower(addr.Address), nil
}

func withOrderID(base, orderID string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("order_id", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}
