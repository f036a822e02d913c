package membership

import (
	"log/slog"
	"time"

	"github.com/i-daichi/nagoyameshi/pkg/logger"
	"github.com/i-daichi/nagoyameshi/pkg/rbac"
	"github.com/i-daichi/nagoyameshi/pkg/session"
)

// Binder derives session identities from stored users.
type Binder struct {
	authz *rbac.Authorizer
	now   func() time.Time
	log   *slog.Logger
}

func NewBinder(authz *rbac.Authorizer, log *slog.Logger) *Binder {
	if authz == nil {
		panic("membership: authorizer is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Binder{authz: authz, now: time.Now, log: log}
}

// Rebind builds the identity for u's current role. A role missing from the
// authority table yields no authorities at all.
func (b *Binder) Rebind(u *User) session.Identity {
	authorities, err := b.authz.Authorities(string(u.Role))
	if err != nil {
		b.log.Warn("role has no authorities, binding empty identity",
			logger.UserID(u.ID), logger.Role(u.Role), logger.Error(err))
		authorities = []string{}
	}
	return session.Identity{
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        string(u.Role),
		Authorities: authorities,
		BoundAt:     b.now(),
	}
}
