package domain

import (
	"fmt"
	"strings"
	"time"
)

// Gateway payment statuses as reported by the payment provider.
const (
	GatewayApproved  = "approved"
	GatewayRejected  = "rejected"
	GatewayCancelled = "cancelled"
	GatewayRefunded  = "refunded"
	GatewayInProcess = "in_process"
	GatewayPending   = "pending"
)

// MapGatewayStatus translates a gateway payment status into an order status plus the
// note recorded in the timeline.
func MapGatewayStatus(gatewayStatus, detail string) (Status, string) {
	s := strings.ToLower(strings.TrimSpace(gatewayStatus))
	note := "payment " + s
	if d := strings.TrimSpace(detail); d != "" {
		note += " (" + d + ")"
	}
	switch s {
	case GatewayApproved:
		return StatusPaid, note
	case GatewayRejected:
		return StatusFailed, note
	case GatewayCancelled:
		return StatusCancelled, note
	case GatewayRefunded:
		return StatusRefunded, note
	case GatewayInProcess, GatewayPending:
		return StatusPending, note
	default:
		return StatusPending, fmt.Sprintf("unrecognised gateway status %q", gatewayStatus)
	}
}

// Transition is a decided status change for one order.
type Transition struct {
	To                   Status
	Note                 string
	PaymentTransactionID string
	At                   time.Time
	// DecrementStock is set only when the order enters PAID.
	DecrementStock bool
}

func (t Transition) Entry() TimelineEntry {
	return TimelineEntry{
		Status:               t.To,
		Timestamp:            t.At,
		Note:                 t.Note,
		PaymentTransactionID: t.PaymentTransactionID,
	}
}

// DecideReason is the outcome of DecideTransition.
type DecideReason string

const (
	ReasonApplied     DecideReason = "applied"
	ReasonAlreadyPaid DecideReason = "already_paid"
	ReasonTerminal    DecideReason = "terminal"
	ReasonNoChange    DecideReason = "no_change"
)

// DecideTransition evaluates a fresh gateway status against the persisted order.
// PAID orders ignore everything except a refund; REFUNDED orders ignore everything.
// It must be called with the order row locked so the stock side effect of entering
// PAID happens at most once.
func DecideTransition(current *Order, target Status, note, paymentID string, now time.Time) (Transition, DecideReason) {
	switch current.Status {
	case StatusPaid:
		if target != StatusRefunded {
			return Transition{}, ReasonAlreadyPaid
		}
	case StatusRefunded:
		return Transition{}, ReasonTerminal
	}
	if target == current.Status && (target == StatusPending || paymentID == current.PaymentTransactionID) {
		return Transition{}, ReasonNoChange
	}
	return Transition{
		To:                   target,
		Note:                 note,
		PaymentTransactionID: paymentID,
		At:                   now,
		DecrementStock:       target == StatusPaid,
	}, ReasonApplied
}
