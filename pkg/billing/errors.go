package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrDeclined means the provider refused the card. Recoverable by the user.
	ErrDeclined = errors.New("billing.declined")
	// ErrGateway covers transport failures, rate limiting and provider faults.
	ErrGateway = errors.New("billing.gateway_error")
	// ErrCustomerNotFound means a stored customer reference no longer exists
	// at the provider.
	ErrCustomerNotFound = errors.New("billing.customer_not_found")
	// ErrInvalidToken means the one-time card token was malformed, unknown or
	// already consumed.
	ErrInvalidToken = errors.New("billing.invalid_token")

	ErrInvalidRequest = errors.New("billing.invalid_request")
)

// GatewayError carries provider diagnostics next to the failure Kind.
type GatewayError struct {
	Kind        error
	Op          string
	Code        string
	DeclineCode string
	Message     string
	RequestID   string
	StatusCode  int
	Err         error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Code != "" {
		msg += " (" + e.Code
		if e.DeclineCode != "" {
			msg += "/" + e.DeclineCode
		}
		msg += ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Temporary reports whether retrying the same call may succeed.
func (e *GatewayError) Temporary() bool {
	if !errors.Is(e.Kind, ErrGateway) {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// IsTemporary reports whether err is a GatewayError worth one retry.
func IsTemporary(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Temporary()
}

func gatewayErr(op string, kind error, msg string) *GatewayError {
	return &GatewayError{Op: op, Kind: kind, Message: msg}
}
