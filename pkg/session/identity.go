package session

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Identity is the authenticated principal attached to a session. It is a
// value: changing a user's role means building a new Identity and binding it.
type Identity struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Authorities []string  `json:"authorities"`
	BoundAt     time.Time `json:"bound_at"`
}

// HasAuthority reports whether the identity was granted authority.
func (i Identity) HasAuthority(authority string) bool {
	return slices.Contains(i.Authorities, authority)
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.UserID == uuid.Nil
}

func (i Identity) clone() Identity {
	i.Authorities = slices.Clone(i.Authorities)
	return i
}
