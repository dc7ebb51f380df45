package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTotals(t *testing.T) {
	got, err := ComputeTotals(10000, 1500, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(11000), got.TotalAmount)

	_, err = ComputeTotals(1000, 0, 1001)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ComputeTotals(1000, -1, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func validOrder() *Order {
	return &Order{
		ID:           uuid.New(),
		Status:       StatusPending,
		Subtotal:     2500,
		ShippingCost: 300,
		Discount:     100,
		TotalAmount:  2700,
		Items: []OrderItem{
			{ProductID: "P1", UnitPrice: 1000, Quantity: 2},
			{ProductID: "P2", UnitPrice: 500, Quantity: 1},
		},
	}
}

func TestOrderValidate(t *testing.T) {
	require.NoError(t, validOrder().Validate())

	tests := map[string]func(o *Order){
		"no items":          func(o *Order) { o.Items = nil },
		"zero quantity":     func(o *Order) { o.Items[0].Quantity = 0 },
		"subtotal mismatch": func(o *Order) { o.Subtotal = 2600 },
		"total mismatch":    func(o *Order) { o.TotalAmount = 2800 },
		"bad status":        func(o *Order) { o.Status = "SHIPPED" },
		"nil id":            func(o *Order) { o.ID = uuid.Nil },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			o := validOrder()
			mutate(o)
			assert.ErrorIs(t, o.Validate(), ErrInvalidInput)
		})
	}
}

func TestBlobValid(t *testing.T) {
	assert.True(t, Blob(nil).Valid())
	assert.True(t, Blob("null").Valid())
	assert.True(t, Blob(`{"street":"Main 1"}`).Valid())
	assert.False(t, Blob(`["a"]`).Valid())
	assert.False(t, Blob(`{"broken"`).Valid())
}

func TestMapGatewayStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"approved", StatusPaid},
		{" APPROVED ", StatusPaid},
		{"rejected", StatusFailed},
		{"cancelled", StatusCancelled},
		{"refunded", StatusRefunded},
		{"in_process", StatusPending},
		{"pending", StatusPending},
		{"charged_back", StatusPending},
	}
	for _, tt := range tests {
		got, _ := MapGatewayStatus(tt.in, "")
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, note := MapGatewayStatus("rejected", "cc_rejected_insufficient_amount")
	assert.Equal(t, "payment rejected (cc_rejected_insufficient_amount)", note)
	_, note = MapGatewayStatus("charged_back", "")
	assert.Contains(t, note, "unrecognised")
}

func TestDecideTransition(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		current   Status
		currentID string
		target    Status
		paymentID string
		reason    DecideReason
		decrement bool
	}{
		{"pending to paid", StatusPending, "", StatusPaid, "p1", ReasonApplied, true},
		{"pending to failed", StatusPending, "", StatusFailed, "p1", ReasonApplied, false},
		{"pending stays pending", StatusPending, "", StatusPending, "p1", ReasonNoChange, false},
		{"paid again", StatusPaid, "p1", StatusPaid, "p1", ReasonAlreadyPaid, false},
		{"paid then rejected", StatusPaid, "p1", StatusFailed, "p2", ReasonAlreadyPaid, false},
		{"paid to refunded", StatusPaid, "p1", StatusRefunded, "p1", ReasonApplied, false},
		{"refunded is terminal", StatusRefunded, "p1", StatusPaid, "p1", ReasonTerminal, false},
		{"failed to paid with retry", StatusFailed, "p1", StatusPaid, "p2", ReasonApplied, true},
		{"failed repeated", StatusFailed, "p1", StatusFailed, "p1", ReasonNoChange, false},
		{"failed by another payment", StatusFailed, "p1", StatusFailed, "p2", ReasonApplied, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Status: tt.current, PaymentTransactionID: tt.currentID}
			tr, reason := DecideTransition(o, tt.target, "note", tt.paymentID, now)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.decrement, tr.DecrementStock)
			if reason == ReasonApplied {
				assert.Equal(t, tt.target, tr.To)
				assert.Equal(t, TimelineEntry{Status: tt.target, Timestamp: now, Note: "note", PaymentTransactionID: tt.paymentID}, tr.Entry())
			}
		})
	}
}
