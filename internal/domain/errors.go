package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrProductUnavailable    = errors.New("product unavailable")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
	ErrGatewayRejected       = errors.New("payment gateway rejected request")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrMalformedNotification = errors.New("malformed notification")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderNotPending       = errors.New("order is not pending")
	ErrReconciliationFailed  = errors.New("reconciliation failed")
	ErrCarrierAdapterFailed  = errors.New("carrier adapter failed")
	ErrCarrierNotConfigured  = errors.New("carrier not configured")
)

type ProductUnavailableError struct {
	ProductID string
	VariantID string
	Reason    string
}

func (e *ProductUnavailableError) Error() string {
	if e.VariantID != "" {
		return fmt.Sprintf("product %s variant %s unavailable: %s", e.ProductID, e.VariantID, e.Reason)
	}
	return fmt.Sprintf("product %s unavailable: %s", e.ProductID, e.Reason)
}

func (e *ProductUnavailableError) Unwrap() error { return ErrProductUnavailable }

type InsufficientStockError struct {
	ProductID string
	VariantID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	target := e.ProductID
	if e.VariantID != "" {
		target += "/" + e.VariantID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", target, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ReconciliationFailedError marks a notification that should be redelivered.
type ReconciliationFailedError struct {
	PaymentID string
	Err       error
}

func (e *ReconciliationFailedError) Error() string {
	return fmt.Sprintf("reconcile payment %s: %v", e.PaymentID, e.Err)
}

func (e *ReconciliationFailedError) Unwrap() []error {
	return []error{ErrReconciliationFailed, e.Err}
}

type CarrierAdapterFailedError struct {
	Provider ProviderType
	Err      error
}

func (e *CarrierAdapterFailedError) Error() string {
	return fmt.Sprintf("carrier %s: %v", e.Provider, e.Err)
}

func (e *CarrierAdapterFailedError) Unwrap() []error {
	return []error{ErrCarrierAdapterFailed, e.Err}
}

// Retryable reports whether the failure is transient and the caller should retry
// (or let the delivery infrastructure redeliver).
func Retryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrReconciliationFailed)
}
