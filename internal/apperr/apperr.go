// Package apperr holds the typed errors surfaced by the sales core. Every
// error carries a Kind tag that the HTTP layer reports as the response type.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindTicketUnavailable   Kind = "TICKET_UNAVAILABLE"
	KindMixedPayment        Kind = "MIXED_PAYMENT_ERROR"
	KindPaymentMismatch     Kind = "PAYMENT_MISMATCH"
	KindInsufficientCredit  Kind = "INSUFFICIENT_CREDIT"
	KindAmbiguousCreditLink Kind = "AMBIGUOUS_CREDIT_LINK"
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindSale                Kind = "SALE_ERROR"
)

// Typed is implemented by every error in this package.
type Typed interface {
	error
	Kind() Kind
	Details() any
}

type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
func (e *ValidationError) Kind() Kind   { return KindValidation }
func (e *ValidationError) Details() any { return e }

// TicketUnavailableError lists tickets that are missing, already sold or
// flagged invalid.
type TicketUnavailableError struct {
	NotFound    []int64 `json:"not_found,omitempty"`
	Unavailable []int64 `json:"unavailable,omitempty"`
}

func (e *TicketUnavailableError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.NotFound) > 0 {
		parts = append(parts, fmt.Sprintf("tickets not found: %v", e.NotFound))
	}
	if len(e.Unavailable) > 0 {
		parts = append(parts, fmt.Sprintf("tickets not available: %v", e.Unavailable))
	}
	if len(parts) == 0 {
		return "tickets not available"
	}
	return strings.Join(parts, "; ")
}
func (e *TicketUnavailableError) Kind() Kind   { return KindTicketUnavailable }
func (e *TicketUnavailableError) Details() any { return e }

// Empty reports whether no offending ticket was recorded.
func (e *TicketUnavailableError) Empty() bool {
	return len(e.NotFound) == 0 && len(e.Unavailable) == 0
}

type MixedPaymentError struct {
	CreditCategories    []string `json:"credit_categories"`
	NonCreditCategories []string `json:"non_credit_categories"`
}

func (e *MixedPaymentError) Error() string {
	return fmt.Sprintf("order mixes credit categories %v with non-credit categories %v",
		e.CreditCategories, e.NonCreditCategories)
}
func (e *MixedPaymentError) Kind() Kind   { return KindMixedPayment }
func (e *MixedPaymentError) Details() any { return e }

type PaymentMismatchError struct {
	Expected float64 `json:"expected"`
	Received float64 `json:"received"`
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment total %.2f does not match order total %.2f", e.Received, e.Expected)
}
func (e *PaymentMismatchError) Kind() Kind   { return KindPaymentMismatch }
func (e *PaymentMismatchError) Details() any { return e }

type InsufficientCreditError struct {
	CreditAccountID int64   `json:"credit_account_id"`
	AccountName     string  `json:"account_name"`
	Balance         float64 `json:"balance"`
	Requested       float64 `json:"requested"`
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit on account %q: balance %.2f, requested %.2f",
		e.AccountName, e.Balance, e.Requested)
}
func (e *InsufficientCreditError) Kind() Kind   { return KindInsufficientCredit }
func (e *InsufficientCreditError) Details() any { return e }

// AmbiguousCreditLinkError is raised when one category is linked to more than
// one credit account and a sale would have to pick one.
type AmbiguousCreditLinkError struct {
	Category   string  `json:"category"`
	AccountIDs []int64 `json:"credit_account_ids"`
}

func (e *AmbiguousCreditLinkError) Error() string {
	return fmt.Sprintf("category %q is linked to several credit accounts %v", e.Category, e.AccountIDs)
}
func (e *AmbiguousCreditLinkError) Kind() Kind   { return KindAmbiguousCreditLink }
func (e *AmbiguousCreditLinkError) Details() any { return e }

type NotFoundError struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

func NotFound(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Resource, e.ID) }
func (e *NotFoundError) Kind() Kind    { return KindNotFound }
func (e *NotFoundError) Details() any  { return e }

type ConflictError struct {
	Message string `json:"message"`
}

func Conflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string { return e.Message }
func (e *ConflictError) Kind() Kind    { return KindConflict }
func (e *ConflictError) Details() any  { return e }

// SaleError wraps a failure that does not belong to any other kind.
type SaleError struct {
	Err error
}

func (e *SaleError) Error() string { return "sale failed: " + e.Err.Error() }
func (e *SaleError) Unwrap() error { return e.Err }
func (e *SaleError) Kind() Kind    { return KindSale }
func (e *SaleError) Details() any  { return nil }

// As returns the typed error in err's chain, wrapping anything else in a
// SaleError.
func As(err error) Typed {
	var typed Typed
	if errors.As(err, &typed) {
		return typed
	}
	return &SaleError{Err: err}
}

// HTTPStatus maps a kind to the status code returned to callers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindMixedPayment, KindPaymentMismatch, KindInsufficientCredit:
		return http.StatusBadRequest
	case KindTicketUnavailable, KindAmbiguousCreditLink, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
