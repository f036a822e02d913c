package billing

import (
	"context"
	"strings"
)

// Money is an amount in the currency's smallest unit as the provider
// expects it.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// PaymentInstrument is a stored card as reported by the provider. It is
// never cached locally.
type PaymentInstrument struct {
	ID          string `json:"id"`
	CustomerRef string `json:"-"`
	Brand       string `json:"brand"`
	Last4       string `json:"last4"`
	ExpMonth    int64  `json:"exp_month"`
	ExpYear     int64  `json:"exp_year"`
	IsDefault   bool   `json:"is_default"`
}

type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeFailed    ChargeStatus = "failed"
)

// ChargeAttempt is the outcome of one authorization try. Not persisted.
type ChargeAttempt struct {
	ID             string       `json:"id"`
	CustomerRef    string       `json:"customer_ref"`
	InstrumentRef  string       `json:"instrument_ref"`
	Amount         Money        `json:"amount"`
	Status         ChargeStatus `json:"status"`
	IdempotencyKey string       `json:"-"`
	FailureCode    string       `json:"failure_code,omitempty"`
	FailureMessage string       `json:"failure_message,omitempty"`
}

func (a *ChargeAttempt) Succeeded() bool {
	return a != nil && a.Status == ChargeSucceeded
}

// CustomerRequest describes the customer EnsureCustomer should resolve.
// With ExistingRef set the provider record is only verified.
type CustomerRequest struct {
	ExistingRef    string
	Email          string
	Name           string
	UserID         string
	IdempotencyKey string
}

// ChargeRequest is one off-session, immediately confirmed charge.
type ChargeRequest struct {
	CustomerRef    string
	InstrumentRef  string
	Amount         Money
	IdempotencyKey string
	Description    string
}

func (r ChargeRequest) validate() error {
	switch {
	case r.CustomerRef == "":
		return gatewayErr("charge", ErrInvalidRequest, "customer reference is required")
	case r.InstrumentRef == "":
		return gatewayErr("charge", ErrInvalidRequest, "instrument reference is required")
	case r.Amount.Amount <= 0:
		return gatewayErr("charge", ErrInvalidRequest, "amount must be positive")
	case r.Amount.Currency == "":
		return gatewayErr("charge", ErrInvalidRequest, "currency is required")
	}
	return nil
}

// Gateway is the payment provider boundary. Implementations never retry on
// their own; a failed call is reported once and the caller decides.
type Gateway interface {
	// EnsureCustomer returns ExistingRef after verifying it still exists,
	// or creates a customer when ExistingRef is empty.
	EnsureCustomer(ctx context.Context, req CustomerRequest) (string, error)
	// AttachInstrument turns a one-time token into a stored instrument of
	// the customer.
	AttachInstrument(ctx context.Context, customerRef, token string) (*PaymentInstrument, error)
	// Charge authorizes and captures immediately. A refused card yields a
	// failed attempt together with an ErrDeclined error.
	Charge(ctx context.Context, req ChargeRequest) (*ChargeAttempt, error)
	SetDefaultInstrument(ctx context.Context, customerRef, instrumentRef string) error
	// ListInstruments returns a snapshot of the customer's cards, default
	// first.
	ListInstruments(ctx context.Context, customerRef string) ([]PaymentInstrument, error)
}

// isPaymentMethodID reports whether token already names a payment method
// (as produced by Stripe Elements) rather than a legacy card token.
func isPaymentMethodID(token string) bool {
	return strings.HasPrefix(token, "pm_")
}

// DefaultInstrument picks the default card, falling back to the first one.
func DefaultInstrument(list []PaymentInstrument) (PaymentInstrument, bool) {
	for _, pi := range list {
		if pi.IsDefault {
			return pi, true
		}
	}
	if len(list) > 0 {
		return list[0], true
	}
	return PaymentInstrument{}, false
}
