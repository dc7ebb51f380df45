package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/money"
	"github.com/RaikyD/storefront-orders/internal/shipping"
)

// JSONCarrier quotes against a plain REST/JSON rates endpoint.
type JSONCarrier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewJSONCarrier(baseURL, apiKey string, client *http.Client) *JSONCarrier {
	return &JSONCarrier{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  defaultClient(client),
	}
}

var _ shipping.CarrierAdapter = (*JSONCarrier)(nil)

func (c *JSONCarrier) Provider() domain.ProviderType { return domain.ProviderCarrierA }

type jsonRatesRequest struct {
	Origin        jsonLocation `json:"origin"`
	Destination   jsonLocation `json:"destination"`
	WeightKg      json.Number  `json:"weight_kg"`
	VolumeCm3     int          `json:"volume_cm3"`
	Packages      int          `json:"packages"`
	DeclaredValue json.Number  `json:"declared_value"`
}

type jsonLocation struct {
	PostalCode string `json:"postal_code"`
	Province   string `json:"province,omitempty"`
}

type jsonRatesResponse struct {
	Rates []struct {
		ServiceCode  string    `json:"service_code"`
		ServiceName  string    `json:"service_name"`
		Price        ratePrice `json:"price"`
		DeliveryDays int       `json:"delivery_days"`
	} `json:"rates"`
}

func (c *JSONCarrier) Quote(ctx context.Context, p shipping.CarrierQuoteParams) ([]domain.ShippingOption, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, domain.ErrCarrierNotConfigured
	}
	body, err := json.Marshal(jsonRatesRequest{
		Origin:        jsonLocation{PostalCode: p.OriginZip},
		Destination:   jsonLocation{PostalCode: p.ZipCode, Province: p.Province},
		WeightKg:      json.Number(kilograms(p.TotalWeightGrams()).StringFixed(3)),
		VolumeCm3:     p.TotalVolumeCm3(),
		Packages:      p.PackageCount(),
		DeclaredValue: money.JSONNumber(p.CartTotal),
	})
	if err != nil {
		return nil, fmt.Errorf("encode rates request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rates", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates request: %w", err)
	}
	defer res.Body.Close()
	raw, err := readBody(res)
	if err != nil {
		return nil, err
	}

	var parsed jsonRatesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}

	opts := make([]domain.ShippingOption, 0, len(parsed.Rates))
	var errs []error
	for _, r := range parsed.Rates {
		cost, err := money.FromMajor(string(r.Price))
		if err != nil {
			errs = append(errs, fmt.Errorf("rate %s: %w", r.ServiceCode, err))
			continue
		}
		name := r.ServiceName
		if name == "" {
			name = r.ServiceCode
		}
		opts = append(opts, domain.ShippingOption{
			ID:                "carrier-a-" + r.ServiceCode,
			Name:              name,
			ProviderType:      domain.ProviderCarrierA,
			Cost:              cost,
			EstimatedDelivery: days(r.DeliveryDays),
		})
	}
	if len(opts) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return opts, nil
}
