package membership

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/i-daichi/nagoyameshi/handler"
	"github.com/i-daichi/nagoyameshi/pkg/billing"
	"github.com/i-daichi/nagoyameshi/pkg/binder"
	"github.com/i-daichi/nagoyameshi/pkg/logger"
	"github.com/i-daichi/nagoyameshi/pkg/ratelimiter"
	"github.com/i-daichi/nagoyameshi/pkg/rbac"
	"github.com/i-daichi/nagoyameshi/pkg/session"
	core "github.com/i-daichi/nagoyameshi/svc/membership"
)

type Config struct {
	// PublishableKey is handed to the browser for card tokenization.
	PublishableKey string
	// CardLimiter throttles the card-submitting routes per user. Nil
	// disables throttling.
	CardLimiter ratelimiter.RateLimiter
}

// Lifecycle is the part of core.Manager the HTTP layer drives.
type Lifecycle interface {
	Current(ctx context.Context, current session.Identity) (*core.Transition, error)
	Upgrade(ctx context.Context, current session.Identity, token string) (*core.Transition, error)
	Downgrade(ctx context.Context, current session.Identity) (*core.Transition, error)
	ReplaceInstrument(ctx context.Context, current session.Identity, token string) (*billing.PaymentInstrument, error)
	Card(ctx context.Context, current session.Identity) (*billing.PaymentInstrument, error)
	Price() billing.Money
}

// Binder installs an identity into the caller's session.
type Binder interface {
	Bind(ctx context.Context, w http.ResponseWriter, r *http.Request, identity session.Identity) (*session.Session, error)
}

type Service struct {
	lifecycle Lifecycle
	sessions  Binder
	cfg       Config
	log       *slog.Logger
	onError   handler.ErrorHandler[handler.Context]
}

func NewService(lifecycle Lifecycle, sessions Binder, cfg Config, log *slog.Logger) *Service {
	if lifecycle == nil || sessions == nil {
		panic("membership: lifecycle and session binder are required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		lifecycle: lifecycle,
		sessions:  sessions,
		cfg:       cfg,
		log:       log.With(logger.Component("membership_http")),
		onError:   handler.NewErrorHandler(log, errorMappers...),
	}
}

type cardTokenRequest struct {
	Token string `json:"token" form:"stripeToken"`
}

// Handle returns the membership routes. Session loading must happen
// upstream (session.Manager.Middleware).
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(session.RequireAuthWith(s.reject))

	r.Get("/user", wrap(s, s.current))
	r.Get("/user/billing", wrap(s, s.billingInfo))
	r.Get("/user/card", wrap(s, s.card))
	r.Post("/user/downgrade", wrap(s, s.downgrade))
	r.Group(func(r chi.Router) {
		if s.cfg.CardLimiter != nil {
			r.Use(ratelimiter.Middleware(s.cfg.CardLimiter, limitKey, s.reject))
		}
		r.Post("/user/charge", wrapBody(s, s.charge))
		r.Post("/user/update-card", wrapBody(s, s.updateCard))
	})

	r.With(session.RequireAuthorityWith(rbac.AuthorityPaidUser, s.reject)).
		Get("/paid/ping", wrap(s, s.paidPing))

	return r
}

// limitKey buckets by user so a shared office address does not lock out
// every member behind it.
func limitKey(r *http.Request) string {
	if id, ok := session.IdentityFromContext(r.Context()); ok && !id.IsZero() {
		return "card:user:" + id.UserID.String()
	}
	if key := ratelimiter.ByIP(r); key != "" {
		return "card:" + key
	}
	return ""
}

// reject renders middleware refusals through the same JSON envelope as
// handler errors.
func (s *Service) reject(w http.ResponseWriter, r *http.Request, err error) {
	s.onError(handler.NewContext(w, r), err)
}

func wrap(s *Service, h handler.HandlerFunc[handler.Context, struct{}]) http.HandlerFunc {
	return handler.Wrap(h, handler.WithErrorHandler[handler.Context, struct{}](s.onError))
}

func wrapBody(s *Service, h handler.HandlerFunc[handler.Context, cardTokenRequest]) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinder[handler.Context, cardTokenRequest](binder.Body()),
		handler.WithErrorHandler[handler.Context, cardTokenRequest](s.onError),
	)
}

func identity(ctx handler.Context) (session.Identity, error) {
	id, ok := session.IdentityFromContext(ctx)
	if !ok {
		return session.Identity{}, core.ErrNotAuthenticated
	}
	return id, nil
}

// install binds the new identity before anything is written.
func (s *Service) install(ctx handler.Context, t *core.Transition) error {
	if _, err := s.sessions.Bind(ctx, ctx.ResponseWriter(), ctx.Request(), t.Identity); err != nil {
		s.log.ErrorContext(ctx, "session bind failed after membership change",
			logger.UserID(t.User.ID), logger.Role(t.User.Role), logger.Error(err))
		return errors.Join(ErrSessionBind, err)
	}
	return nil
}

func (s *Service) current(ctx handler.Context, _ struct{}) handler.Response {
	id, err := identity(ctx)
	if err != nil {
		return handler.Error(err)
	}
	t, err := s.lifecycle.Current(ctx, id)
	if err != nil {
		return handler.Error(err)
	}
	if err := s.install(ctx, t); err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newUserView(t.User, t.Identity))
}

func (s *Service) billingInfo(_ handler.Context, _ struct{}) handler.Response {
	price := s.lifecycle.Price()
	return handler.JSON(billingView{
		PublishableKey: s.cfg.PublishableKey,
		Amount:         price.Amount,
		Currency:       price.Currency,
	})
}

func (s *Service) charge(ctx handler.Context, req cardTokenRequest) handler.Response {
	id, err := identity(ctx)
	if err != nil {
		return handler.Error(err)
	}
	t, err := s.lifecycle.Upgrade(ctx, id, req.Token)
	if err != nil {
		return handler.Error(err)
	}
	if err := s.install(ctx, t); err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newTransitionView(t), handler.WithJSONMeta(map[string]any{
		"message": "有料プランへの登録が完了しました。",
	}))
}

func (s *Service) downgrade(ctx handler.Context, _ struct{}) handler.Response {
	id, err := identity(ctx)
	if err != nil {
		return handler.Error(err)
	}
	t, err := s.lifecycle.Downgrade(ctx, id)
	if err != nil {
		return handler.Error(err)
	}
	if err := s.install(ctx, t); err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newTransitionView(t), handler.WithJSONMeta(map[string]any{
		"message": "無料プランへの変更が完了しました。",
	}))
}

func (s *Service) card(ctx handler.Context, _ struct{}) handler.Response {
	id, err := identity(ctx)
	if err != nil {
		return handler.Error(err)
	}
	pi, err := s.lifecycle.Card(ctx, id)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newCardView(pi))
}

func (s *Service) updateCard(ctx handler.Context, req cardTokenRequest) handler.Response {
	id, err := identity(ctx)
	if err != nil {
		return handler.Error(err)
	}
	pi, err := s.lifecycle.ReplaceInstrument(ctx, id, req.Token)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newCardView(pi), handler.WithJSONMeta(map[string]any{
		"message": "カード情報を変更しました。",
	}))
}

func (s *Service) paidPing(ctx handler.Context, _ struct{}) handler.Response {
	id, err := identity(ctx)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(map[string]any{"user_id": id.UserID, "role": id.Role})
}
