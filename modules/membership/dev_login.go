package membership

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/i-daichi/nagoyameshi/handler"
	"github.com/i-daichi/nagoyameshi/pkg/binder"
	"github.com/i-daichi/nagoyameshi/pkg/session"
	core "github.com/i-daichi/nagoyameshi/svc/membership"
)

// Authenticator starts an authenticated session.
type Authenticator interface {
	Authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, identity session.Identity) (*session.Session, error)
}

type devLoginRequest struct {
	UserID string `json:"user_id" form:"user_id"`
}

// DevLogin signs the caller in as any existing user, without credentials.
// Real sign-in lives outside this service; mount this only in development.
func (s *Service) DevLogin(users core.UserStore, b *core.Binder, auth Authenticator) http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req devLoginRequest) handler.Response {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			v := handler.NewValidationError()
			v.Add("user_id", "must be a uuid")
			return handler.Error(v)
		}
		u, err := users.FindByID(ctx, id)
		if err != nil {
			return handler.Error(err)
		}
		identity := b.Rebind(u)
		sess, err := auth.Authenticate(ctx, ctx.ResponseWriter(), ctx.Request(), identity)
		if err != nil {
			return handler.Error(err)
		}
		return handler.JSON(newUserView(u, identity), handler.WithJSONMeta(map[string]any{
			"token": sess.Token,
		}))
	},
		handler.WithBinder[handler.Context, devLoginRequest](binder.Body()),
		handler.WithErrorHandler[handler.Context, devLoginRequest](s.onError),
	)
}
