package membership

import (
	"errors"

	"github.com/i-daichi/nagoyameshi/pkg/billing"
)

var (
	ErrUserNotFound        = errors.New("membership.user_not_found")
	ErrCustomerRefConflict = errors.New("membership.customer_ref_conflict")
	ErrNoCustomer          = errors.New("membership.no_customer")
	ErrNoInstrument        = errors.New("membership.no_instrument")
	ErrRoleNotEligible     = errors.New("membership.role_not_eligible")
	ErrNotAuthenticated    = errors.New("membership.not_authenticated")
	ErrTokenRequired       = errors.New("membership.token_required")
	ErrLockNotAcquired     = errors.New("membership.lock_not_acquired")
	ErrRoleUpdateFailed    = errors.New("membership.role_update_failed")
	ErrStore               = errors.New("membership.store_failed")
)

// Provider failures keep their billing identity so callers can match
// either package's sentinel.
var (
	ErrDeclined         = billing.ErrDeclined
	ErrGateway          = billing.ErrGateway
	ErrCustomerNotFound = billing.ErrCustomerNotFound
	ErrInvalidToken     = billing.ErrInvalidToken
)
