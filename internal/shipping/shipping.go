// Package shipping aggregates shipping options from configured local rules and from
// every external carrier adapter into one normalised list.
package shipping

import (
	"context"

	"github.com/RaikyD/storefront-orders/internal/domain"
)

// Parcel is one distinct product line with its per-unit dimensions.
type Parcel struct {
	Dimensions domain.Dimensions
	Quantity   int
}

type CarrierQuoteParams struct {
	OriginZip string
	ZipCode   string
	Province  string
	CartTotal int64
	Parcels   []Parcel
}

func (p CarrierQuoteParams) TotalWeightGrams() int {
	var total int
	for _, pc := range p.Parcels {
		total += pc.Dimensions.WeightGrams * pc.Quantity
	}
	return total
}

func (p CarrierQuoteParams) TotalVolumeCm3() int {
	var total int
	for _, pc := range p.Parcels {
		total += pc.Dimensions.VolumeCm3() * pc.Quantity
	}
	return total
}

func (p CarrierQuoteParams) PackageCount() int {
	var total int
	for _, pc := range p.Parcels {
		total += pc.Quantity
	}
	return total
}

// CarrierAdapter normalises one provider's quoting protocol.
type CarrierAdapter interface {
	Provider() domain.ProviderType
	Quote(ctx context.Context, params CarrierQuoteParams) ([]domain.ShippingOption, error)
}

type QuoteItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type QuoteRequest struct {
	ZipCode   string
	Province  string
	CartTotal int64
	Items     []QuoteItem
}

type QuoteResult struct {
	Local      []domain.ShippingOption                         `json:"local"`
	PerCarrier map[domain.ProviderType][]domain.ShippingOption `json:"perCarrier"`
	All        []domain.ShippingOption                         `json:"all"`
}
