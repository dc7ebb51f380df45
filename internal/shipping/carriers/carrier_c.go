package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/money"
	"github.com/RaikyD/storefront-orders/internal/shipping"
)

const tokenExpirySkew = 30 * time.Second

var errUnauthorized = errors.New("unauthorized")

// TokenCarrier authenticates with basic credentials for a bearer token, caches it
// until shortly before expiry and quotes with it.
type TokenCarrier struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenCarrier(baseURL, username, password string, client *http.Client) *TokenCarrier {
	return &TokenCarrier{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		username: username,
		password: password,
		client:   defaultClient(client),
		now:      time.Now,
	}
}

var _ shipping.CarrierAdapter = (*TokenCarrier)(nil)

func (c *TokenCarrier) Provider() domain.ProviderType { return domain.ProviderCarrierC }

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
	Expires   string `json:"expires"`
}

type tokenRatesRequest struct {
	OriginPostalCode      string      `json:"originPostalCode"`
	DestinationPostalCode string      `json:"destinationPostalCode"`
	DeliveredType         string      `json:"deliveredType,omitempty"`
	Dimensions            tokenDims   `json:"dimensions"`
	DeclaredValue         json.Number `json:"declaredValue"`
}

type tokenDims struct {
	WeightGrams int `json:"weight"`
	Height      int `json:"height"`
	Width       int `json:"width"`
	Length      int `json:"length"`
}

type tokenRatesResponse struct {
	Rates []struct {
		ProductType   string    `json:"productType"`
		ProductName   string    `json:"productName"`
		DeliveredType string    `json:"deliveredType"`
		Price         ratePrice `json:"price"`
		DeliveryMin   string    `json:"deliveryTimeMin"`
		DeliveryMax   string    `json:"deliveryTimeMax"`
	} `json:"rates"`
}

func (c *TokenCarrier) Quote(ctx context.Context, p shipping.CarrierQuoteParams) ([]domain.ShippingOption, error) {
	if c.baseURL == "" || c.username == "" || c.password == "" {
		return nil, domain.ErrCarrierNotConfigured
	}
	opts, err := c.quoteOnce(ctx, p)
	if errors.Is(err, errUnauthorized) {
		c.invalidate()
		opts, err = c.quoteOnce(ctx, p)
	}
	return opts, err
}

func (c *TokenCarrier) quoteOnce(ctx context.Context, p shipping.CarrierQuoteParams) ([]domain.ShippingOption, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(tokenRatesRequest{
		OriginPostalCode:      p.OriginZip,
		DestinationPostalCode: p.ZipCode,
		Dimensions:            packageBox(p),
		DeclaredValue:         money.JSONNumber(p.CartTotal),
	})
	if err != nil {
		return nil, fmt.Errorf("encode rates request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rates", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusUnauthorized {
		return nil, errUnauthorized
	}
	raw, err := readBody(res)
	if err != nil {
		return nil, err
	}

	var parsed tokenRatesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	opts := make([]domain.ShippingOption, 0, len(parsed.Rates))
	for _, r := range parsed.Rates {
		cost, err := money.FromMajor(string(r.Price))
		if err != nil {
			continue
		}
		id := strings.ToLower(strings.Trim(r.ProductType+"-"+r.DeliveredType, "-"))
		opts = append(opts, domain.ShippingOption{
			ID:                "carrier-c-" + id,
			Name:              strings.TrimSpace(r.ProductName + " " + deliveredLabel(r.DeliveredType)),
			ProviderType:      domain.ProviderCarrierC,
			Cost:              cost,
			EstimatedDelivery: deliveryRange(r.DeliveryMin, r.DeliveryMax),
		})
	}
	if len(opts) == 0 && len(parsed.Rates) > 0 {
		return nil, errors.New("no rate with a parsable price")
	}
	return opts, nil
}

func (c *TokenCarrier) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer res.Body.Close()
	raw, err := readBody(res)
	if err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tr.Token == "" {
		return "", errors.New("token response without token")
	}

	expires := c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if tr.ExpiresIn == 0 && tr.Expires != "" {
		if t, err := time.Parse(time.RFC3339, tr.Expires); err == nil {
			expires = t
		}
	}
	c.token = tr.Token
	c.expiresAt = expires.Add(-tokenExpirySkew)
	return c.token, nil
}

func (c *TokenCarrier) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// packageBox folds all parcels into one box: summed weight, stacked height, largest
// footprint.
func packageBox(p shipping.CarrierQuoteParams) tokenDims {
	var d tokenDims
	for _, pc := range p.Parcels {
		d.WeightGrams += pc.Dimensions.WeightGrams * pc.Quantity
		d.Height += pc.Dimensions.HeightCm * pc.Quantity
		d.Width = max(d.Width, pc.Dimensions.WidthCm)
		d.Length = max(d.Length, pc.Dimensions.LengthCm)
	}
	return d
}

func deliveredLabel(t string) string {
	switch strings.ToUpper(t) {
	case "D":
		return "(home delivery)"
	case "S":
		return "(branch pickup)"
	}
	return ""
}

func deliveryRange(minDays, maxDays string) string {
	minDays, maxDays = strings.TrimSpace(minDays), strings.TrimSpace(maxDays)
	switch {
	case minDays == "" && maxDays == "":
		return ""
	case minDays == "" || minDays == maxDays:
		return maxDays + " days"
	case maxDays == "":
		return minDays + " days"
	}
	return minDays + "-" + maxDays + " days"
}
