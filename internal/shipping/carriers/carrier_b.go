package carriers

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/money"
	"github.com/RaikyD/storefront-orders/internal/shipping"
	"github.com/shopspring/decimal"
)

// XMLCarrier quotes against a legacy web service answering GET requests with a
// .NET DataSet serialised as XML.
type XMLCarrier struct {
	baseURL   string
	taxID     string
	operation string
	client    *http.Client
}

func NewXMLCarrier(baseURL, taxID, operation string, client *http.Client) *XMLCarrier {
	return &XMLCarrier{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		taxID:     strings.TrimSpace(taxID),
		operation: strings.TrimSpace(operation),
		client:    defaultClient(client),
	}
}

var _ shipping.CarrierAdapter = (*XMLCarrier)(nil)

func (c *XMLCarrier) Provider() domain.ProviderType { return domain.ProviderCarrierB }

func (c *XMLCarrier) Quote(ctx context.Context, p shipping.CarrierQuoteParams) ([]domain.ShippingOption, error) {
	if c.baseURL == "" || c.taxID == "" || c.operation == "" {
		return nil, domain.ErrCarrierNotConfigured
	}

	q := url.Values{}
	q.Set("PesoTotal", kilograms(p.TotalWeightGrams()).StringFixed(3))
	q.Set("VolumenTotal", decimal.New(int64(p.TotalVolumeCm3()), -6).StringFixed(6))
	q.Set("CodigoPostalOrigen", p.OriginZip)
	q.Set("CodigoPostalDestino", p.ZipCode)
	q.Set("CantidadPaquetes", strconv.Itoa(p.PackageCount()))
	q.Set("ValorDeclarado", money.ToMajor(p.CartTotal).StringFixed(money.Exponent))
	q.Set("Cuit", c.taxID)
	q.Set("Operativa", c.operation)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/Tarifar_Envio_Corporativo?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/xml, application/xml")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tariff request: %w", err)
	}
	defer res.Body.Close()
	raw, err := readBody(res)
	if err != nil {
		return nil, err
	}

	rows, err := parseTariffRows(raw)
	if err != nil {
		return nil, err
	}

	var (
		opts []domain.ShippingOption
		errs []error
	)
	for i, row := range rows {
		opt, err := row.option(c.operation)
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		opts = append(opts, opt)
	}
	if len(opts) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, errors.New("tariff response has no rows")
	}
	return opts, nil
}

// tariffRow holds the child elements of one <Table> element keyed by lower-cased
// local name.
type tariffRow map[string]string

func (r tariffRow) option(operation string) (domain.ShippingOption, error) {
	priceText := r["total"]
	if priceText == "" {
		priceText = r["precio"]
	}
	if priceText == "" {
		return domain.ShippingOption{}, errors.New("missing price")
	}
	cost, err := money.FromMajor(priceText)
	if err != nil {
		return domain.ShippingOption{}, err
	}

	id := r["tarifador"]
	if id == "" {
		id = operation
	}
	name := "Carrier B"
	if scope := r["ambito"]; scope != "" {
		name += " " + scope
	}
	estimate := r["plazoentrega"]
	if n, err := strconv.Atoi(estimate); err == nil {
		estimate = days(n)
	}
	return domain.ShippingOption{
		ID:                "carrier-b-" + id,
		Name:              name,
		ProviderType:      domain.ProviderCarrierB,
		Cost:              cost,
		EstimatedDelivery: estimate,
	}, nil
}

// parseTariffRows walks the document token by token so namespaces, the inline
// schema and diffgram wrappers do not matter; only <Table> rows are read.
func parseTariffRows(raw []byte) ([]tariffRow, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false

	var (
		rows    []tariffRow
		current tariffRow
		field   string
		text    strings.Builder
		depth   int
		sawRoot bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode tariff xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			name := strings.ToLower(t.Name.Local)
			switch {
			case current == nil && name == "table":
				current = tariffRow{}
				depth = 0
			case current != nil:
				depth++
				if depth == 1 {
					field = name
					text.Reset()
				}
			}
		case xml.CharData:
			if current != nil && depth == 1 {
				text.Write(t)
			}
		case xml.EndElement:
			if current == nil {
				continue
			}
			if depth == 0 {
				rows = append(rows, current)
				current = nil
				continue
			}
			if depth == 1 {
				current[field] = strings.TrimSpace(text.String())
			}
			depth--
		}
	}
	if !sawRoot {
		return nil, errors.New("empty tariff response")
	}
	return rows, nil
}
