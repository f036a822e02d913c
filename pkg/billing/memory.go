package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Stripe test tokens understood by MemoryGateway.
const (
	TestTokenVisa          = "tok_visa"
	TestTokenMastercard    = "tok_mastercard"
	TestTokenJCB           = "tok_jcb"
	TestTokenChargeDecline = "tok_chargeDeclined"
)

type memCustomer struct {
	id          string
	email       string
	name        string
	defaultPM   string
	instruments []PaymentInstrument
}

// MemoryGateway is an in-process Gateway. Tokens must start with "tok_" or
// "pm_" and may be used once; cards created from tok_chargeDeclined are
// refused at charge time. Charges are deduplicated by idempotency key.
type MemoryGateway struct {
	mu        sync.Mutex
	seq       int
	customers map[string]*memCustomer
	usedToken map[string]bool
	charges   map[string]*ChargeAttempt
	idem      map[string]string
	failures  map[string][]error
	calls     map[string]int
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		customers: make(map[string]*memCustomer),
		usedToken: make(map[string]bool),
		charges:   make(map[string]*ChargeAttempt),
		idem:      make(map[string]string),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
	}
}

// Gateway operation names accepted by FailNext and Calls.
const (
	OpEnsureCustomer       = "ensure_customer"
	OpAttachInstrument     = "attach_instrument"
	OpCharge               = "charge"
	OpSetDefaultInstrument = "set_default_instrument"
	OpListInstruments      = "list_instruments"
)

// FailNext makes the next call of op return err instead of executing.
func (m *MemoryGateway) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// Calls returns how many times op was invoked, failed calls included.
func (m *MemoryGateway) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// CustomerCount returns the number of customers ever created.
func (m *MemoryGateway) CustomerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.customers)
}

// Charges returns the succeeded and failed attempts recorded so far.
func (m *MemoryGateway) Charges() []ChargeAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChargeAttempt, 0, len(m.charges))
	for i := 1; i <= m.seq; i++ {
		if a, ok := m.charges[fmt.Sprintf("pi_mem_%d", i)]; ok {
			out = append(out, *a)
		}
	}
	return out
}

// DeleteCustomer simulates a customer removed on the provider side.
func (m *MemoryGateway) DeleteCustomer(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.customers, ref)
}

// enter counts the call and pops an injected failure. Caller holds mu.
func (m *MemoryGateway) enter(op string) error {
	m.calls[op]++
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	m.failures[op] = queue[1:]
	return queue[0]
}

func (m *MemoryGateway) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_mem_%d", prefix, m.seq)
}

func (m *MemoryGateway) EnsureCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &GatewayError{Op: OpEnsureCustomer, Kind: ErrGateway, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpEnsureCustomer); err != nil {
		return "", err
	}

	if req.ExistingRef != "" {
		if _, ok := m.customers[req.ExistingRef]; !ok {
			return "", gatewayErr(OpEnsureCustomer, ErrCustomerNotFound, "no such customer: "+req.ExistingRef)
		}
		return req.ExistingRef, nil
	}
	if req.IdempotencyKey != "" {
		if ref, ok := m.idem["cus:"+req.IdempotencyKey]; ok {
			return ref, nil
		}
	}

	c := &memCustomer{id: m.nextID("cus"), email: req.Email, name: req.Name}
	m.customers[c.id] = c
	if req.IdempotencyKey != "" {
		m.idem["cus:"+req.IdempotencyKey] = c.id
	}
	return c.id, nil
}

func (m *MemoryGateway) AttachInstrument(ctx context.Context, customerRef, token string) (*PaymentInstrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: OpAttachInstrument, Kind: ErrGateway, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpAttachInstrument); err != nil {
		return nil, err
	}

	c, ok := m.customers[customerRef]
	if !ok {
		return nil, gatewayErr(OpAttachInstrument, ErrCustomerNotFound, "no such customer: "+customerRef)
	}
	if !strings.HasPrefix(token, "tok_") && !isPaymentMethodID(token) {
		return nil, gatewayErr(OpAttachInstrument, ErrInvalidToken, "invalid card token")
	}
	if m.usedToken[token] {
		return nil, &GatewayError{Op: OpAttachInstrument, Kind: ErrInvalidToken, Code: "token_already_used", Message: "token already used"}
	}
	m.usedToken[token] = true

	brand, last4 := cardFor(token)
	pi := PaymentInstrument{
		ID:          m.nextID("pm"),
		CustomerRef: c.id,
		Brand:       brand,
		Last4:       last4,
		ExpMonth:    12,
		ExpYear:     2034,
	}
	c.instruments = append(c.instruments, pi)
	return &pi, nil
}

func cardFor(token string) (brand, last4 string) {
	switch {
	case strings.Contains(token, "chargeDeclined"):
		return "visa", "0002"
	case strings.Contains(token, "mastercard"):
		return "mastercard", "4444"
	case strings.Contains(token, "jcb"):
		return "jcb", "0000"
	default:
		return "visa", "4242"
	}
}

func (m *MemoryGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeAttempt, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: OpCharge, Kind: ErrGateway, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCharge); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if id, ok := m.idem["pi:"+req.IdempotencyKey]; ok {
			prev := *m.charges[id]
			if prev.Succeeded() {
				return &prev, nil
			}
			return &prev, declined(prev)
		}
	}

	c, ok := m.customers[req.CustomerRef]
	if !ok {
		return nil, gatewayErr(OpCharge, ErrCustomerNotFound, "no such customer: "+req.CustomerRef)
	}
	var card *PaymentInstrument
	for i := range c.instruments {
		if c.instruments[i].ID == req.InstrumentRef {
			card = &c.instruments[i]
		}
	}
	if card == nil {
		return nil, gatewayErr(OpCharge, ErrInvalidRequest, "payment method does not belong to customer")
	}

	attempt := &ChargeAttempt{
		ID:             m.nextID("pi"),
		CustomerRef:    req.CustomerRef,
		InstrumentRef:  req.InstrumentRef,
		Amount:         req.Amount,
		Status:         ChargeSucceeded,
		IdempotencyKey: req.IdempotencyKey,
	}
	if card.Last4 == "0002" {
		attempt.Status = ChargeFailed
		attempt.FailureCode = "card_declined"
		attempt.FailureMessage = "Your card was declined."
	}
	m.charges[attempt.ID] = attempt
	if req.IdempotencyKey != "" {
		m.idem["pi:"+req.IdempotencyKey] = attempt.ID
	}

	out := *attempt
	if !out.Succeeded() {
		return &out, declined(out)
	}
	return &out, nil
}

func declined(a ChargeAttempt) error {
	return &GatewayError{Op: OpCharge, Kind: ErrDeclined, Code: "card_declined", DeclineCode: "generic_decline", Message: a.FailureMessage, StatusCode: 402}
}

func (m *MemoryGateway) SetDefaultInstrument(ctx context.Context, customerRef, instrumentRef string) error {
	if err := ctx.Err(); err != nil {
		return &GatewayError{Op: OpSetDefaultInstrument, Kind: ErrGateway, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpSetDefaultInstrument); err != nil {
		return err
	}

	c, ok := m.customers[customerRef]
	if !ok {
		return gatewayErr(OpSetDefaultInstrument, ErrCustomerNotFound, "no such customer: "+customerRef)
	}
	for _, pi := range c.instruments {
		if pi.ID == instrumentRef {
			c.defaultPM = instrumentRef
			return nil
		}
	}
	return gatewayErr(OpSetDefaultInstrument, ErrInvalidRequest, "payment method does not belong to customer")
}

func (m *MemoryGateway) ListInstruments(ctx context.Context, customerRef string) ([]PaymentInstrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: OpListInstruments, Kind: ErrGateway, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpListInstruments); err != nil {
		return nil, err
	}

	c, ok := m.customers[customerRef]
	if !ok {
		return nil, gatewayErr(OpListInstruments, ErrCustomerNotFound, "no such customer: "+customerRef)
	}
	out := make([]PaymentInstrument, 0, len(c.instruments))
	for _, pi := range c.instruments {
		pi.IsDefault = pi.ID == c.defaultPM
		if pi.IsDefault {
			out = append([]PaymentInstrument{pi}, out...)
			continue
		}
		out = append(out, pi)
	}
	return out, nil
}
