// Package payments talks to the external payment gateway: it creates checkout
// preferences and reads back the authoritative state of a payment.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// LineItem is one payable line of a preference. UnitPrice is in minor units.
type LineItem struct {
	Title     string
	Quantity  int
	UnitPrice int64
}

type BackURLs struct {
	Success string
	Failure string
	Pending string
}

type PreferenceRequest struct {
	OrderID         string
	Items           []LineItem
	Currency        string
	PayerEmail      string
	BackURLs        BackURLs
	NotificationURL string
}

type Preference struct {
	ID          string
	RedirectURL string
}

// Payment is the gateway's view of a payment. Amount is in minor units.
type Payment struct {
	ID                string
	Status            string
	StatusDetail      string
	ExternalReference string
	Amount            int64
	Currency          string
}

// Gateway is the contract the order service and the reconciler depend on.
//
// GetPayment is the only trusted source of payment state: callers never act on a
// status embedded in a notification payload.
type Gateway interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (Preference, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
}

// flexID accepts identifiers the gateway sends either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = flexID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("payments: id %s: %w", s, err)
	}
	*f = flexID(n.String())
	return nil
}
