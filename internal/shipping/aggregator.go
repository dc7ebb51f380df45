package shipping

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/metrics"
	"github.com/RaikyD/storefront-orders/internal/repository"
	"golang.org/x/sync/errgroup"
)

const DefaultCarrierTimeout = 4 * time.Second

type Aggregator struct {
	catalog   repository.CatalogReader
	rules     repository.ShippingRuleSource
	adapters  []CarrierAdapter
	originZip string
	timeout   time.Duration
}

type Option func(*Aggregator)

func WithCarrierTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithOriginZip(zip string) Option {
	return func(a *Aggregator) { a.originZip = strings.TrimSpace(zip) }
}

func NewAggregator(catalog repository.CatalogReader, rules repository.ShippingRuleSource, adapters []CarrierAdapter, opts ...Option) *Aggregator {
	a := &Aggregator{
		catalog:  catalog,
		rules:    rules,
		adapters: adapters,
		timeout:  DefaultCarrierTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Quote never touches order or stock state; it is safe to call repeatedly and
// concurrently. Carrier failures only shrink the result.
func (a *Aggregator) Quote(ctx context.Context, req QuoteRequest) (QuoteResult, error) {
	req.ZipCode = strings.TrimSpace(req.ZipCode)
	if req.ZipCode == "" {
		return QuoteResult{}, fmt.Errorf("%w: zip code is required", domain.ErrInvalidInput)
	}
	if req.CartTotal < 0 {
		return QuoteResult{}, fmt.Errorf("%w: cart total must be non-negative", domain.ErrInvalidInput)
	}

	result := QuoteResult{
		Local:      a.localOptions(ctx, req),
		PerCarrier: make(map[domain.ProviderType][]domain.ShippingOption, len(a.adapters)),
	}

	params := CarrierQuoteParams{
		OriginZip: a.originZip,
		ZipCode:   req.ZipCode,
		Province:  strings.TrimSpace(req.Province),
		CartTotal: req.CartTotal,
		Parcels:   a.parcels(ctx, req.Items),
	}

	carrierOpts := make([][]domain.ShippingOption, len(a.adapters))
	if len(params.Parcels) > 0 {
		var g errgroup.Group
		for i, adapter := range a.adapters {
			g.Go(func() error {
				carrierOpts[i] = a.quoteCarrier(ctx, adapter, params)
				return nil
			})
		}
		_ = g.Wait()
	}

	result.All = append(result.All, result.Local...)
	for i, adapter := range a.adapters {
		opts := carrierOpts[i]
		if opts == nil {
			opts = []domain.ShippingOption{}
		}
		if existing, ok := result.PerCarrier[adapter.Provider()]; ok {
			opts = append(existing, opts...)
		}
		result.PerCarrier[adapter.Provider()] = opts
		result.All = append(result.All, carrierOpts[i]...)
	}
	if result.All == nil {
		result.All = []domain.ShippingOption{}
	}
	return result, nil
}

func (a *Aggregator) localOptions(ctx context.Context, req QuoteRequest) []domain.ShippingOption {
	out := []domain.ShippingOption{}
	if a.rules == nil {
		return out
	}
	rules, err := a.rules.ActiveRules(ctx)
	if err != nil {
		logger.Warn("shipping: load local rules failed", "err", err)
		return out
	}
	for _, r := range rules {
		if r.Eligible(req.CartTotal, req.Province) {
			out = append(out, r.Option())
		}
	}
	sortByCost(out)
	return out
}

// parcels resolves dimensions for the requested items. Items with unknown products or
// incomplete dimensions are left out of the carrier input.
func (a *Aggregator) parcels(ctx context.Context, items []QuoteItem) []Parcel {
	if len(items) == 0 || a.catalog == nil {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := a.catalog.ProductsByID(ctx, ids)
	if err != nil {
		logger.Warn("shipping: resolve dimensions failed", "err", err)
		return nil
	}

	var parcels []Parcel
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		p, ok := products[it.ProductID]
		if !ok || !p.Dimensions.Complete() {
			logger.Debug("shipping: item excluded from carrier quote", "product_id", it.ProductID)
			continue
		}
		parcels = append(parcels, Parcel{Dimensions: p.Dimensions, Quantity: it.Quantity})
	}
	return parcels
}

func (a *Aggregator) quoteCarrier(ctx context.Context, adapter CarrierAdapter, params CarrierQuoteParams) (opts []domain.ShippingOption) {
	provider := adapter.Provider()
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			opts = nil
		}
		metrics.ObserveCarrierQuote(string(provider), time.Since(start), err)
		if err != nil {
			failure := &domain.CarrierAdapterFailedError{Provider: provider, Err: err}
			logger.Warn("shipping: carrier quote failed", "provider", provider, "err", failure)
		}
	}()

	raw, err := adapter.Quote(ctx, params)
	if err != nil {
		return nil
	}
	opts = make([]domain.ShippingOption, 0, len(raw))
	for _, o := range raw {
		if o.Cost < 0 {
			continue
		}
		o.ProviderType = provider
		opts = append(opts, o)
	}
	sortByCost(opts)
	return opts
}

func sortByCost(opts []domain.ShippingOption) {
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Cost < opts[j].Cost })
}
