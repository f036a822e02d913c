package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/i-daichi/nagoyameshi/pkg/logger"
)

// maxListedInstruments bounds ListInstruments; a member has one card in
// practice.
const maxListedInstruments = 20

// StripeGateway implements Gateway with the Stripe API.
type StripeGateway struct {
	api     *client.API
	timeout time.Duration
	log     *slog.Logger
}

// StripeOption configures a StripeGateway.
type StripeOption func(*StripeGateway)

// WithBackends routes API calls through custom backends, e.g. a local
// stripe-mock.
func WithBackends(secretKey string, backends *stripe.Backends) StripeOption {
	return func(g *StripeGateway) { g.api = client.New(secretKey, backends) }
}

func WithStripeLogger(log *slog.Logger) StripeOption {
	return func(g *StripeGateway) {
		if log != nil {
			g.log = log
		}
	}
}

// NewStripeGateway creates a gateway from cfg. It panics without a secret
// key so misconfiguration stops the process at startup.
func NewStripeGateway(cfg Config, opts ...StripeOption) *StripeGateway {
	if cfg.SecretKey == "" {
		panic("billing: stripe secret key is required")
	}
	g := &StripeGateway{
		timeout: cfg.RequestTimeout,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.api == nil {
		g.api = client.New(cfg.SecretKey, nil)
	}
	if g.timeout <= 0 {
		g.timeout = 15 * time.Second
	}
	g.log = g.log.With(logger.Component("billing.stripe"))
	return g
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

func (g *StripeGateway) EnsureCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if req.ExistingRef != "" {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		cust, err := g.api.Customers.Get(req.ExistingRef, params)
		if err != nil {
			return "", g.wrap(ctx, "ensure_customer", err)
		}
		if cust.Deleted {
			return "", gatewayErr("ensure_customer", ErrCustomerNotFound, "customer "+req.ExistingRef+" was deleted")
		}
		return cust.ID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
		Name:  stripe.String(req.Name),
	}
	params.Context = ctx
	if req.UserID != "" {
		params.AddMetadata("user_id", req.UserID)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return "", g.wrap(ctx, "create_customer", err)
	}
	g.log.InfoContext(ctx, "stripe customer created", logger.CustomerRef(cust.ID))
	return cust.ID, nil
}

func (g *StripeGateway) AttachInstrument(ctx context.Context, customerRef, token string) (*PaymentInstrument, error) {
	if token == "" {
		return nil, gatewayErr("attach_instrument", ErrInvalidToken, "card token is empty")
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	pmID := token
	if !isPaymentMethodID(token) {
		params := &stripe.PaymentMethodParams{
			Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
			Card: &stripe.PaymentMethodCardParams{Token: stripe.String(token)},
		}
		params.Context = ctx
		pm, err := g.api.PaymentMethods.New(params)
		if err != nil {
			return nil, g.wrap(ctx, "create_payment_method", err)
		}
		pmID = pm.ID
	}

	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerRef)}
	params.Context = ctx
	pm, err := g.api.PaymentMethods.Attach(pmID, params)
	if err != nil {
		return nil, g.wrap(ctx, "attach_payment_method", err)
	}

	out := instrumentFromStripe(pm)
	out.CustomerRef = customerRef
	return &out, nil
}

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeAttempt, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Amount),
		Currency:           stripe.String(req.Amount.Currency),
		Customer:           stripe.String(req.CustomerRef),
		PaymentMethod:      stripe.String(req.InstrumentRef),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		OffSession:         stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	attempt := &ChargeAttempt{
		CustomerRef:    req.CustomerRef,
		InstrumentRef:  req.InstrumentRef,
		Amount:         req.Amount,
		Status:         ChargeFailed,
		IdempotencyKey: req.IdempotencyKey,
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		gerr := g.wrap(ctx, "charge", err)
		var se *stripe.Error
		if errors.As(err, &se) && se.PaymentIntent != nil {
			attempt.ID = se.PaymentIntent.ID
		}
		var ge *GatewayError
		if errors.As(gerr, &ge) {
			attempt.FailureCode = firstNonEmpty(ge.DeclineCode, ge.Code)
			attempt.FailureMessage = ge.Message
		}
		return attempt, gerr
	}

	attempt.ID = pi.ID
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		attempt.FailureCode = string(pi.Status)
		if pi.LastPaymentError != nil {
			attempt.FailureCode = firstNonEmpty(string(pi.LastPaymentError.DeclineCode), string(pi.LastPaymentError.Code), attempt.FailureCode)
			attempt.FailureMessage = pi.LastPaymentError.Msg
		}
		return attempt, &GatewayError{
			Op:          "charge",
			Kind:        ErrDeclined,
			Code:        string(pi.Status),
			DeclineCode: attempt.FailureCode,
			Message:     "payment was not completed",
		}
	}

	attempt.Status = ChargeSucceeded
	return attempt, nil
}

func (g *StripeGateway) SetDefaultInstrument(ctx context.Context, customerRef, instrumentRef string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(instrumentRef),
		},
	}
	params.Context = ctx
	if _, err := g.api.Customers.Update(customerRef, params); err != nil {
		return g.wrap(ctx, "set_default_instrument", err)
	}
	return nil
}

func (g *StripeGateway) ListInstruments(ctx context.Context, customerRef string) ([]PaymentInstrument, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	cparams := &stripe.CustomerParams{}
	cparams.Context = ctx
	cust, err := g.api.Customers.Get(customerRef, cparams)
	if err != nil {
		return nil, g.wrap(ctx, "list_instruments", err)
	}
	if cust.Deleted {
		return nil, gatewayErr("list_instruments", ErrCustomerNotFound, "customer "+customerRef+" was deleted")
	}
	var defaultID string
	if cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil {
		defaultID = cust.InvoiceSettings.DefaultPaymentMethod.ID
	}

	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerRef),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(maxListedInstruments)

	var out []PaymentInstrument
	iter := g.api.PaymentMethods.List(params)
	for iter.Next() && len(out) < maxListedInstruments {
		pi := instrumentFromStripe(iter.PaymentMethod())
		pi.CustomerRef = customerRef
		pi.IsDefault = pi.ID == defaultID
		if pi.IsDefault {
			out = append([]PaymentInstrument{pi}, out...)
			continue
		}
		out = append(out, pi)
	}
	if err := iter.Err(); err != nil {
		return nil, g.wrap(ctx, "list_instruments", err)
	}
	return out, nil
}

func instrumentFromStripe(pm *stripe.PaymentMethod) PaymentInstrument {
	out := PaymentInstrument{ID: pm.ID}
	if pm.Customer != nil {
		out.CustomerRef = pm.Customer.ID
	}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = pm.Card.ExpMonth
		out.ExpYear = pm.Card.ExpYear
	}
	return out
}

// wrap classifies a stripe-go error into the package taxonomy.
func (g *StripeGateway) wrap(ctx context.Context, op string, err error) error {
	ge := &GatewayError{Op: op, Kind: ErrGateway, Err: err}

	var se *stripe.Error
	if !errors.As(err, &se) {
		ge.Message = err.Error()
		g.log.WarnContext(ctx, "stripe call failed", slog.String("op", op), logger.Error(err))
		return ge
	}

	ge.Code = string(se.Code)
	ge.DeclineCode = string(se.DeclineCode)
	ge.Message = se.Msg
	ge.RequestID = se.RequestID
	ge.StatusCode = se.HTTPStatusCode

	switch {
	case se.Type == stripe.ErrorTypeCard:
		ge.Kind = ErrDeclined
	case se.Code == stripe.ErrorCodeResourceMissing && missingCustomer(op, se.Param):
		ge.Kind = ErrCustomerNotFound
	case se.Code == stripe.ErrorCodeResourceMissing,
		se.Code == stripe.ErrorCode("token_already_used"),
		se.Code == stripe.ErrorCode("token_in_use"):
		ge.Kind = ErrInvalidToken
	case se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError:
		ge.Kind = ErrGateway
	}

	g.log.WarnContext(ctx, "stripe call failed",
		slog.String("op", op),
		slog.String("code", ge.Code),
		slog.String("decline_code", ge.DeclineCode),
		slog.String("request_id", ge.RequestID),
		slog.Int("status", ge.StatusCode),
	)
	return ge
}

// missingCustomer reports whether a resource_missing error from op names the
// customer rather than the card. Customer updates point param at the path id
// when the customer is gone and at invoice_settings when the card is.
func missingCustomer(op, param string) bool {
	switch {
	case param == "customer":
		return true
	case op == "ensure_customer", op == "list_instruments":
		return true
	case op == "set_default_instrument":
		return !strings.HasPrefix(param, "invoice_settings")
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
