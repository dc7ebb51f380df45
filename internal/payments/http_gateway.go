package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/money"
)

const (
	defaultTimeout  = 5 * time.Second
	maxResponseBody = 1 << 20
)

type HTTPGatewayConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// HTTPGateway implements Gateway over the provider's REST API.
type HTTPGateway struct {
	base    *url.URL
	token   string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPGateway(cfg HTTPGatewayConfig) (*HTTPGateway, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("payments: invalid base url %q", cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("payments: access token is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPGateway{base: base, token: cfg.AccessToken, timeout: timeout, client: client}, nil
}

var _ Gateway = (*HTTPGateway)(nil)

type preferenceItemBody struct {
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unit_price"`
	CurrencyID string      `json:"currency_id,omitempty"`
}

type preferenceBody struct {
	Items             []preferenceItemBody `json:"items"`
	Payer             *payerBody           `json:"payer,omitempty"`
	ExternalReference string               `json:"external_reference"`
	BackURLs          *backURLsBody        `json:"back_urls,omitempty"`
	AutoReturn        string               `json:"auto_return,omitempty"`
	NotificationURL   string               `json:"notification_url,omitempty"`
}

type payerBody struct {
	Email string `json:"email"`
}

type backURLsBody struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type preferenceResponse struct {
	ID               flexID `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type paymentResponse struct {
	ID                flexID      `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
	TransactionAmount json.Number `json:"transaction_amount"`
	CurrencyID        string      `json:"currency_id"`
}

func (g *HTTPGateway) CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error) {
	if len(req.Items) == 0 {
		return Preference{}, fmt.Errorf("%w: preference without items", domain.ErrInvalidInput)
	}
	body := preferenceBody{
		ExternalReference: req.OrderID,
		NotificationURL:   req.NotificationURL,
	}
	for _, it := range req.Items {
		body.Items = append(body.Items, preferenceItemBody{
			Title:      it.Title,
			Quantity:   it.Quantity,
			UnitPrice:  money.JSONNumber(it.UnitPrice),
			CurrencyID: req.Currency,
		})
	}
	if req.PayerEmail != "" {
		body.Payer = &payerBody{Email: req.PayerEmail}
	}
	if req.BackURLs != (BackURLs{}) {
		body.BackURLs = &backURLsBody{Success: req.BackURLs.Success, Failure: req.BackURLs.Failure, Pending: req.BackURLs.Pending}
		if req.BackURLs.Success != "" {
			body.AutoReturn = "approved"
		}
	}

	var resp preferenceResponse
	headers := map[string]string{"X-Idempotency-Key": "preference-" + req.OrderID}
	if err := g.do(ctx, http.MethodPost, "/checkout/preferences", body, headers, &resp); err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return Preference{}, fmt.Errorf("%w: preferences endpoint not found", domain.ErrGatewayRejected)
		}
		return Preference{}, err
	}
	if resp.ID == "" {
		return Preference{}, fmt.Errorf("%w: preference response without id", domain.ErrGatewayUnavailable)
	}
	redirect := resp.InitPoint
	if redirect == "" {
		redirect = resp.SandboxInitPoint
	}
	return Preference{ID: string(resp.ID), RedirectURL: redirect}, nil
}

func (g *HTTPGateway) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("%w: empty payment id", domain.ErrPaymentNotFound)
	}
	var resp paymentResponse
	if err := g.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, nil, &resp); err != nil {
		return Payment{}, err
	}

	p := Payment{
		ID:                string(resp.ID),
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		ExternalReference: resp.ExternalReference,
		Currency:          resp.CurrencyID,
	}
	if p.ID == "" {
		p.ID = paymentID
	}
	if resp.TransactionAmount != "" {
		amount, err := money.FromMajor(resp.TransactionAmount.String())
		if err != nil {
			logger.Warn("gateway payment amount unparsable", "payment_id", paymentID, "amount", resp.TransactionAmount, "err", err)
		} else {
			p.Amount = amount
		}
	}
	return p, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("payments: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("payments: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrGatewayUnavailable, method, path, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, path)
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s returned %d", domain.ErrGatewayUnavailable, method, path, res.StatusCode)
	case res.StatusCode >= 400:
		return fmt.Errorf("%w: %s %s returned %d: %s", domain.ErrGatewayRejected, method, path, res.StatusCode, snippet(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domain.ErrGatewayUnavailable, path, err)
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
