package membership

import (
	"github.com/google/uuid"

	"github.com/i-daichi/nagoyameshi/pkg/billing"
	"github.com/i-daichi/nagoyameshi/pkg/session"
	core "github.com/i-daichi/nagoyameshi/svc/membership"
)

type userView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Furigana    string    `json:"furigana,omitempty"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Authorities []string  `json:"authorities"`
	Paid        bool      `json:"paid"`
	HasCard     bool      `json:"has_payment_customer"`
}

func newUserView(u *core.User, id session.Identity) userView {
	return userView{
		ID:          u.ID,
		Name:        u.Name,
		Furigana:    u.Furigana,
		Email:       u.Email,
		Role:        u.Role.String(),
		Authorities: id.Authorities,
		Paid:        u.IsPaid(),
		HasCard:     u.HasCustomer(),
	}
}

type chargeView struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type transitionView struct {
	User    userView    `json:"user"`
	Changed bool        `json:"changed"`
	Charge  *chargeView `json:"charge,omitempty"`
}

func newTransitionView(t *core.Transition) transitionView {
	v := transitionView{User: newUserView(t.User, t.Identity), Changed: t.Changed}
	if t.Charge != nil {
		v.Charge = &chargeView{
			ID:       t.Charge.ID,
			Amount:   t.Charge.Amount.Amount,
			Currency: t.Charge.Amount.Currency,
			Status:   string(t.Charge.Status),
		}
	}
	return v
}

type cardView struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

func newCardView(pi *billing.PaymentInstrument) cardView {
	return cardView{Brand: pi.Brand, Last4: pi.Last4, ExpMonth: pi.ExpMonth, ExpYear: pi.ExpYear}
}

type billingView struct {
	PublishableKey string `json:"publishable_key,omitempty"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}
