package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/i-daichi/nagoyameshi/pkg/billing"
	"github.com/i-daichi/nagoyameshi/pkg/logger"
	"github.com/i-daichi/nagoyameshi/pkg/session"
)

// keyNamespace scopes idempotency keys sent to the provider.
var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://nagoyameshi.example/membership"))

// Transition is the outcome of a lifecycle operation. Identity must be
// installed in the caller's session before the response is sent.
type Transition struct {
	User     *User
	Identity session.Identity
	From     Role
	To       Role
	Charge   *billing.ChargeAttempt
	// Changed is false when the user already was in the target state.
	Changed bool
}

// Manager runs the membership lifecycle.
type Manager struct {
	store    UserStore
	gateway  billing.Gateway
	binder   *Binder
	locker   Locker
	notifier Notifier
	cfg      Config
	log      *slog.Logger
}

// NewManager wires the lifecycle. store, gateway and binder are required.
func NewManager(store UserStore, gateway billing.Gateway, binder *Binder, opts ...Option) *Manager {
	if store == nil {
		panic("membership: user store is required")
	}
	if gateway == nil {
		panic("membership: payment gateway is required")
	}
	if binder == nil {
		panic("membership: binder is required")
	}
	m := &Manager{
		store:   store,
		gateway: gateway,
		binder:  binder,
		locker:  NewLocalLocker(),
		cfg: Config{
			Price:         billing.Money{Amount: 30000, Currency: "jpy"},
			LockTimeout:      10 * time.Second,
			OperationTimeout: 20 * time.Second,
			NotifyTimeout:    5 * time.Second,
		},
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("membership"))
	return m
}

// Price is the fixed subscription price.
func (m *Manager) Price() billing.Money { return m.cfg.Price }

// Current reloads the caller's user and rebinds the identity from it.
func (m *Manager) Current(ctx context.Context, current session.Identity) (*Transition, error) {
	if current.IsZero() {
		return nil, ErrNotAuthenticated
	}
	user, err := m.store.FindByID(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	return m.settled(user), nil
}

// Upgrade charges the subscription price to the card behind token and
// makes the user paid. A paid user is returned unchanged without any
// provider call.
func (m *Manager) Upgrade(ctx context.Context, current session.Identity, token string) (*Transition, error) {
	if current.IsZero() {
		return nil, ErrNotAuthenticated
	}
	ctx, unlock, err := m.lock(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := m.store.FindByID(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	switch user.Role {
	case RolePaid:
		return m.settled(user), nil
	case RoleFree:
	default:
		return nil, fmt.Errorf("%w: cannot upgrade role %q", ErrRoleNotEligible, user.Role)
	}
	if token == "" {
		return nil, ErrTokenRequired
	}

	log := m.log.With(logger.UserID(user.ID))

	customerRef, err := m.ensureCustomer(ctx, user, log)
	if err != nil {
		return nil, err
	}

	instrument, err := m.gateway.AttachInstrument(ctx, customerRef, token)
	if err != nil {
		log.WarnContext(ctx, "attach instrument failed", logger.CustomerRef(customerRef), logger.Error(err))
		return nil, err
	}

	key := chargeKey(user.ID, token)
	attempt, err := m.gateway.Charge(ctx, billing.ChargeRequest{
		CustomerRef:    customerRef,
		InstrumentRef:  instrument.ID,
		Amount:         m.cfg.Price,
		IdempotencyKey: key,
		Description:    m.cfg.Description,
	})
	if err == nil && !attempt.Succeeded() {
		err = &billing.GatewayError{Op: billing.OpCharge, Kind: billing.ErrDeclined, Message: "charge did not succeed"}
	}
	if err != nil {
		var chargeID string
		if attempt != nil {
			chargeID = attempt.ID
		}
		log.InfoContext(ctx, "upgrade charge failed",
			logger.CustomerRef(customerRef),
			logger.InstrumentRef(instrument.ID),
			logger.ChargeID(chargeID),
			logger.IdempotencyKey(key),
			logger.Error(err),
		)
		return nil, err
	}

	updated, err := m.store.SetRole(ctx, user.ID, RolePaid)
	if err != nil {
		// The customer was charged but the role did not change; needs
		// manual reconciliation against the charge id.
		log.ErrorContext(ctx, "role update failed after successful charge",
			logger.Event("membership.reconcile_required"),
			logger.CustomerRef(customerRef),
			logger.ChargeID(attempt.ID),
			logger.Error(err),
		)
		return nil, errors.Join(ErrRoleUpdateFailed, err)
	}

	t := &Transition{
		User:     updated,
		Identity: m.binder.Rebind(updated),
		From:     RoleFree,
		To:       RolePaid,
		Charge:   attempt,
		Changed:  true,
	}
	log.InfoContext(ctx, "membership upgraded",
		logger.Event(string(EventUpgraded)),
		logger.CustomerRef(customerRef),
		logger.ChargeID(attempt.ID),
	)
	m.notify(ctx, Event{Kind: EventUpgraded, User: *updated, Charge: attempt, Instrument: instrument})
	return t, nil
}

// Downgrade makes a paid user free again. Nothing is cancelled or refunded
// at the provider; the customer and its card stay linked.
func (m *Manager) Downgrade(ctx context.Context, current session.Identity) (*Transition, error) {
	if current.IsZero() {
		return nil, ErrNotAuthenticated
	}
	ctx, unlock, err := m.lock(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := m.store.FindByID(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	switch user.Role {
	case RoleFree:
		return m.settled(user), nil
	case RolePaid:
	default:
		return nil, fmt.Errorf("%w: cannot downgrade role %q", ErrRoleNotEligible, user.Role)
	}

	updated, err := m.store.SetRole(ctx, user.ID, RoleFree)
	if err != nil {
		return nil, errors.Join(ErrRoleUpdateFailed, err)
	}

	m.log.InfoContext(ctx, "membership downgraded",
		logger.UserID(user.ID),
		logger.Event(string(EventDowngraded)),
	)
	m.notify(ctx, Event{Kind: EventDowngraded, User: *updated})
	return &Transition{
		User:     updated,
		Identity: m.binder.Rebind(updated),
		From:     RolePaid,
		To:       RoleFree,
		Changed:  true,
	}, nil
}

// ReplaceInstrument attaches the card behind token and makes it the
// customer's default. The role is not touched.
func (m *Manager) ReplaceInstrument(ctx context.Context, current session.Identity, token string) (*billing.PaymentInstrument, error) {
	if current.IsZero() {
		return nil, ErrNotAuthenticated
	}
	ctx, unlock, err := m.lock(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := m.store.FindByID(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	if !user.HasCustomer() {
		return nil, ErrNoCustomer
	}
	if token == "" {
		return nil, ErrTokenRequired
	}

	instrument, err := m.gateway.AttachInstrument(ctx, user.PaymentCustomerRef, token)
	if err != nil {
		return nil, err
	}
	if err := m.gateway.SetDefaultInstrument(ctx, user.PaymentCustomerRef, instrument.ID); err != nil {
		// The card is attached but not default; the next attempt attaches
		// a new one, so nothing is rolled back here.
		m.log.WarnContext(ctx, "set default instrument failed",
			logger.UserID(user.ID),
			logger.CustomerRef(user.PaymentCustomerRef),
			logger.InstrumentRef(instrument.ID),
			logger.Error(err),
		)
		return nil, err
	}
	instrument.IsDefault = true

	m.log.InfoContext(ctx, "payment instrument replaced",
		logger.UserID(user.ID),
		logger.Event(string(EventInstrumentReplaced)),
		logger.InstrumentRef(instrument.ID),
	)
	m.notify(ctx, Event{Kind: EventInstrumentReplaced, User: *user, Instrument: instrument})
	return instrument, nil
}

// Card returns the stored card to display: the default one, or the first
// one when none is marked default. It is read from the provider each time.
func (m *Manager) Card(ctx context.Context, current session.Identity) (*billing.PaymentInstrument, error) {
	if current.IsZero() {
		return nil, ErrNotAuthenticated
	}
	user, err := m.store.FindByID(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	if !user.HasCustomer() {
		return nil, ErrNoCustomer
	}
	list, err := m.gateway.ListInstruments(ctx, user.PaymentCustomerRef)
	if err != nil {
		return nil, err
	}
	card, ok := billing.DefaultInstrument(list)
	if !ok {
		return nil, ErrNoInstrument
	}
	return &card, nil
}

// ensureCustomer resolves the provider customer of user, creating and
// linking one when needed. user.PaymentCustomerRef is updated in place.
func (m *Manager) ensureCustomer(ctx context.Context, user *User, log *slog.Logger) (string, error) {
	req := billing.CustomerRequest{
		ExistingRef: user.PaymentCustomerRef,
		Email:       user.Email,
		Name:        user.Name,
		UserID:      user.ID.String(),
	}
	if req.ExistingRef == "" {
		req.IdempotencyKey = uuid.NewSHA1(keyNamespace, []byte("customer:"+user.ID.String())).String()
	}

	ref, err := m.gateway.EnsureCustomer(ctx, req)
	if err != nil {
		if errors.Is(err, billing.ErrCustomerNotFound) {
			log.ErrorContext(ctx, "linked payment customer missing at provider",
				logger.CustomerRef(user.PaymentCustomerRef), logger.Error(err))
		}
		return "", err
	}
	if user.HasCustomer() {
		return ref, nil
	}

	stored, err := m.store.SetPaymentCustomerRef(ctx, user.ID, ref)
	switch {
	case errors.Is(err, ErrCustomerRefConflict):
		log.WarnContext(ctx, "customer already linked, created customer is orphaned",
			logger.CustomerRef(stored),
			slog.String("orphan_customer_ref", ref),
		)
	case err != nil:
		log.ErrorContext(ctx, "link payment customer failed",
			slog.String("orphan_customer_ref", ref), logger.Error(err))
		return "", err
	}
	user.PaymentCustomerRef = stored
	return stored, nil
}

// settled is the no-op result for a user already in the target state.
func (m *Manager) settled(user *User) *Transition {
	return &Transition{
		User:     user,
		Identity: m.binder.Rebind(user),
		From:     user.Role,
		To:       user.Role,
	}
}

// lock takes the per-user lease and returns a context that expires after
// OperationTimeout. Work under the lease must use that context, so that no
// provider or store call outlives a lease shorter than the request.
func (m *Manager) lock(ctx context.Context, userID uuid.UUID) (context.Context, func(), error) {
	lctx, cancel := context.WithTimeout(ctx, m.cfg.LockTimeout)
	defer cancel()
	unlock, err := m.locker.Lock(lctx, "membership:"+userID.String())
	if err != nil {
		return ctx, nil, errors.Join(ErrLockNotAcquired, err)
	}
	octx, done := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	return octx, func() {
		done()
		unlock()
	}, nil
}

// notify runs after commit and only logs failures.
func (m *Manager) notify(ctx context.Context, e Event) {
	if m.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.NotifyTimeout)
	defer cancel()
	if err := m.notifier.Notify(nctx, e); err != nil {
		m.log.WarnContext(ctx, "membership notification failed",
			logger.UserID(e.User.ID), logger.Event(string(e.Kind)), logger.Error(err))
	}
}

// chargeKey is stable for one (user, card token) pair, so a resubmitted
// form cannot charge twice while distinct attempts get distinct keys.
func chargeKey(userID uuid.UUID, token string) string {
	return uuid.NewSHA1(keyNamespace, []byte("charge:"+userID.String()+":"+token)).String()
}
