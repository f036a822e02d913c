package membership

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleFree  Role = "free"
	RolePaid  Role = "paid"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleFree, RolePaid, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// User is the local account as far as membership is concerned.
// PaymentCustomerRef is empty until the first upgrade attempt links a
// provider customer; once set it never changes.
type User struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Furigana           string    `json:"furigana"`
	Email              string    `json:"email"`
	PostalCode         string    `json:"postal_code"`
	Address            string    `json:"address"`
	PhoneNumber        string    `json:"phone_number"`
	Role               Role      `json:"role"`
	PaymentCustomerRef string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (u *User) IsPaid() bool { return u != nil && u.Role == RolePaid }

// HasCustomer reports whether a provider customer is linked.
func (u *User) HasCustomer() bool { return u != nil && u.PaymentCustomerRef != "" }
