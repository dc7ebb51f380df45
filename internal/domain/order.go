package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Blob is a loosely structured JSON value (addresses, customer data) owned by the
// checkout layer. Reconciliation and shipping code only carry it around.
type Blob json.RawMessage

func (b Blob) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	return b, nil
}

func (b *Blob) UnmarshalJSON(data []byte) error {
	if b == nil {
		return fmt.Errorf("domain: Blob: UnmarshalJSON on nil pointer")
	}
	*b = append((*b)[0:0], data...)
	return nil
}

// Valid reports whether the blob is empty, null or a JSON object.
func (b Blob) Valid() bool {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	if trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

type TimelineEntry struct {
	Status               Status    `json:"status"`
	Timestamp            time.Time `json:"timestamp"`
	Note                 string    `json:"note"`
	PaymentTransactionID string    `json:"payment_transaction_id,omitempty"`
}

type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	ProductID string    `json:"product_id"`
	VariantID *string   `json:"variant_id,omitempty"`
	Name      string    `json:"name"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	Image     string    `json:"image,omitempty"`
}

func (it OrderItem) LineTotal() int64 {
	return it.UnitPrice * int64(it.Quantity)
}

type Order struct {
	ID                   uuid.UUID       `json:"id"`
	Status               Status          `json:"status"`
	Currency             string          `json:"currency"`
	Subtotal             int64           `json:"subtotal"`
	ShippingCost         int64           `json:"shipping_cost"`
	Discount             int64           `json:"discount"`
	TotalAmount          int64           `json:"total_amount"`
	BuyerEmail           string          `json:"buyer_email"`
	UserID               *string         `json:"user_id,omitempty"`
	ShippingAddress      Blob            `json:"shipping_address,omitempty"`
	BillingAddress       Blob            `json:"billing_address,omitempty"`
	CustomerData         Blob            `json:"customer_data,omitempty"`
	PaymentReferenceID   string          `json:"payment_reference_id,omitempty"`
	PaymentTransactionID string          `json:"payment_transaction_id,omitempty"`
	Items                []OrderItem     `json:"items"`
	Timeline             []TimelineEntry `json:"timeline"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Totals holds the monetary breakdown of an order in minor currency units.
type Totals struct {
	Subtotal     int64
	ShippingCost int64
	Discount     int64
	TotalAmount  int64
}

// ComputeTotals derives the total from its components and rejects negative values or
// a discount exceeding the subtotal.
func ComputeTotals(subtotal, shippingCost, discount int64) (Totals, error) {
	if subtotal < 0 || shippingCost < 0 || discount < 0 {
		return Totals{}, fmt.Errorf("%w: amounts must be non-negative", ErrInvalidInput)
	}
	if discount > subtotal {
		return Totals{}, fmt.Errorf("%w: discount %d exceeds subtotal %d", ErrInvalidInput, discount, subtotal)
	}
	return Totals{
		Subtotal:     subtotal,
		ShippingCost: shippingCost,
		Discount:     discount,
		TotalAmount:  subtotal + shippingCost - discount,
	}, nil
}

// Validate checks the persisted-shape invariants of a freshly built order.
func (o *Order) Validate() error {
	if o.ID == uuid.Nil {
		return fmt.Errorf("%w: order id is empty", ErrInvalidInput)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, o.Status)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrInvalidInput)
	}
	var subtotal int64
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %s has quantity %d", ErrInvalidInput, it.ProductID, it.Quantity)
		}
		if it.UnitPrice < 0 {
			return fmt.Errorf("%w: item %s has negative price", ErrInvalidInput, it.ProductID)
		}
		subtotal += it.LineTotal()
	}
	if subtotal != o.Subtotal {
		return fmt.Errorf("%w: subtotal %d does not match items %d", ErrInvalidInput, o.Subtotal, subtotal)
	}
	t, err := ComputeTotals(o.Subtotal, o.ShippingCost, o.Discount)
	if err != nil {
		return err
	}
	if t.TotalAmount != o.TotalAmount {
		return fmt.Errorf("%w: total %d, expected %d", ErrInvalidInput, o.TotalAmount, t.TotalAmount)
	}
	return nil
}

func (o *Order) LastTimelineEntry() (TimelineEntry, bool) {
	if len(o.Timeline) == 0 {
		return TimelineEntry{}, false
	}
	return o.Timeline[len(o.Timeline)-1], true
}
