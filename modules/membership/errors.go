package membership

import (
	"errors"
	"net/http"

	"github.com/i-daichi/nagoyameshi/handler"
	"github.com/i-daichi/nagoyameshi/pkg/ratelimiter"
	"github.com/i-daichi/nagoyameshi/pkg/session"
	core "github.com/i-daichi/nagoyameshi/svc/membership"
)

// ErrSessionBind means a committed change could not be written to the
// session. GET /user repairs it.
var ErrSessionBind = errors.New("membership.session_bind_failed")

const paymentFailed = "決済に失敗しました。もう一度お試しください。"

var errorMappers = []handler.ErrorMapper{
	handler.MapError(core.ErrNotAuthenticated, handler.ErrUnauthorized),
	handler.MapError(session.ErrNotAuthenticated, handler.ErrUnauthorized),
	handler.MapError(session.ErrIdentityMismatch, handler.ErrUnauthorized),
	handler.MapError(session.ErrSessionNotFound, handler.ErrUnauthorized),
	handler.MapError(session.ErrSessionExpired, handler.ErrUnauthorized),
	handler.MapError(session.ErrForbidden, handler.ErrForbidden),
	handler.MapError(core.ErrUserNotFound, handler.NewHTTPError(http.StatusNotFound, "user_not_found")),
	handler.MapError(core.ErrDeclined, handler.NewHTTPError(http.StatusPaymentRequired, "card_declined").WithMessage(paymentFailed)),
	handler.MapError(core.ErrInvalidToken, handler.NewHTTPError(http.StatusBadRequest, "invalid_card_token").WithMessage(paymentFailed)),
	handler.MapError(core.ErrTokenRequired, handler.NewHTTPError(http.StatusBadRequest, "card_token_required")),
	handler.MapError(core.ErrCustomerNotFound, handler.NewHTTPError(http.StatusConflict, "payment_customer_missing")),
	handler.MapError(core.ErrNoCustomer, handler.NewHTTPError(http.StatusConflict, "no_payment_customer")),
	handler.MapError(core.ErrNoInstrument, handler.NewHTTPError(http.StatusConflict, "no_payment_instrument")),
	handler.MapError(core.ErrRoleNotEligible, handler.NewHTTPError(http.StatusForbidden, "role_not_eligible")),
	handler.MapError(core.ErrLockNotAcquired, handler.ErrTooManyRequests),
	handler.MapError(ratelimiter.ErrLimitExceeded, handler.NewHTTPError(http.StatusTooManyRequests, "card_attempts_exceeded").
		WithMessage("カード操作の回数が上限に達しました。しばらくしてからお試しください。")),
	handler.MapError(ratelimiter.ErrStoreUnavailable, handler.ErrServiceUnavailable),
	handler.MapError(core.ErrGateway, handler.NewHTTPError(http.StatusServiceUnavailable, "payment_gateway_unavailable").WithMessage(paymentFailed)),
}
