package domain

import "strings"

type ProviderType string

const (
	ProviderLocal    ProviderType = "LOCAL"
	ProviderCarrierA ProviderType = "CARRIER_A"
	ProviderCarrierB ProviderType = "CARRIER_B"
	ProviderCarrierC ProviderType = "CARRIER_C"
)

type ShippingOption struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderType      ProviderType `json:"provider_type"`
	Cost              int64        `json:"cost"`
	EstimatedDelivery string       `json:"estimated_delivery,omitempty"`
}

type LocalShippingRule struct {
	ID                string
	Name              string
	Cost              int64
	MinAmount         *int64
	MaxAmount         *int64
	Provinces         []string
	IsActive          bool
	EstimatedDelivery string
}

// Eligible applies the cart-total bounds, the province allow-list and the active flag.
func (r LocalShippingRule) Eligible(cartTotal int64, province string) bool {
	if !r.IsActive {
		return false
	}
	if r.MinAmount != nil && cartTotal < *r.MinAmount {
		return false
	}
	if r.MaxAmount != nil && cartTotal > *r.MaxAmount {
		return false
	}
	if len(r.Provinces) == 0 {
		return true
	}
	province = strings.TrimSpace(province)
	for _, p := range r.Provinces {
		if strings.EqualFold(strings.TrimSpace(p), province) {
			return true
		}
	}
	return false
}

func (r LocalShippingRule) Option() ShippingOption {
	return ShippingOption{
		ID:                "local-" + r.ID,
		Name:              r.Name,
		ProviderType:      ProviderLocal,
		Cost:              r.Cost,
		EstimatedDelivery: r.EstimatedDelivery,
	}
}
