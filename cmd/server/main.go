package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/i-daichi/nagoyameshi/internal/db"
	"github.com/i-daichi/nagoyameshi/modules/membership"
	"github.com/i-daichi/nagoyameshi/pkg/billing"
	"github.com/i-daichi/nagoyameshi/pkg/clientip"
	"github.com/i-daichi/nagoyameshi/pkg/config"
	"github.com/i-daichi/nagoyameshi/pkg/email"
	"github.com/i-daichi/nagoyameshi/pkg/httpserver"
	"github.com/i-daichi/nagoyameshi/pkg/logger"
	"github.com/i-daichi/nagoyameshi/pkg/pg"
	"github.com/i-daichi/nagoyameshi/pkg/ratelimiter"
	"github.com/i-daichi/nagoyameshi/pkg/rbac"
	"github.com/i-daichi/nagoyameshi/pkg/redis"
	"github.com/i-daichi/nagoyameshi/pkg/requestid"
	"github.com/i-daichi/nagoyameshi/pkg/session"
	core "github.com/i-daichi/nagoyameshi/svc/membership"
)

type appConfig struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	ServiceName   string        `env:"SERVICE_NAME" envDefault:"nagoyameshi"`
	DevLogin      bool          `env:"DEV_LOGIN_ENABLED" envDefault:"false"`
	HealthTimeout time.Duration `env:"HEALTH_TIMEOUT" envDefault:"3s"`
	LockTimeout   time.Duration `env:"MEMBERSHIP_LOCK_TIMEOUT" envDefault:"10s"`
	OpTimeout     time.Duration `env:"MEMBERSHIP_OPERATION_TIMEOUT" envDefault:"45s"`
	NotifyTimeout time.Duration `env:"MEMBERSHIP_NOTIFY_TIMEOUT" envDefault:"5s"`
	SessionHeader string        `env:"SESSION_HEADER" envDefault:"X-Session-Token"`

	Postgres  pg.Config
	Redis     redis.Config
	Billing   billing.Config
	Session   session.Config
	Email     email.Config
	HTTP      httpserver.Config
	CardLimit ratelimiter.Config
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), clientip.LoggerExtractor()),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, db.Migrations(), cfg.Postgres, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	locker := redis.NewLocker(rdb, cfg.Redis, redis.WithLockLogger(log))
	if cfg.OpTimeout >= locker.TTL() {
		return fmt.Errorf("main: MEMBERSHIP_OPERATION_TIMEOUT (%s) must be below REDIS_LOCK_TTL (%s)", cfg.OpTimeout, locker.TTL())
	}

	sessions := session.New(
		session.NewRedisStore(rdb),
		session.MultiTransport{
			session.NewCookieTransport(cfg.Session),
			session.NewHeaderTransport(cfg.SessionHeader),
		},
		session.WithConfig(cfg.Session),
	)

	gateway, err := newGateway(cfg.Env, cfg.Billing, log)
	if err != nil {
		return err
	}

	sender, err := email.NewSender(cfg.Email)
	if err != nil {
		return err
	}

	users := core.NewPGUserStore(pool)
	binder := core.NewBinder(rbac.MustAuthorizer(rbac.DefaultTable()), log)
	manager := core.NewManager(users, gateway, binder,
		core.WithConfig(core.Config{
			Price:            cfg.Billing.Price(),
			Description:      cfg.Billing.Description,
			LockTimeout:      cfg.LockTimeout,
			OperationTimeout: cfg.OpTimeout,
			NotifyTimeout:    cfg.NotifyTimeout,
		}),
		core.WithLocker(locker),
		core.WithNotifier(core.NewMailNotifier(sender)),
		core.WithLogger(log),
	)

	cardLimiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(rdb, "ratelimit:card:"), cfg.CardLimit)
	if err != nil {
		return err
	}

	svc := membership.NewService(manager, sessions, membership.Config{
		PublishableKey: cfg.Billing.PublishableKey,
		CardLimiter:    cardLimiter,
	}, log)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", httpserver.HealthHandler(log, cfg.HealthTimeout, map[string]httpserver.Check{
		"postgres": pg.Healthcheck(pool),
		"redis":    redis.Healthcheck(rdb),
	}))

	r.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		if cfg.DevLogin {
			log.Warn("development login is enabled")
			r.Post("/dev/login", svc.DevLogin(users, binder, sessions))
		}
		r.Mount("/", svc.Handle())
	})

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
	if err := srv.Run(ctx, r); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newGateway picks Stripe when a secret key is configured. Without one every
// card operation goes to the in-process gateway, which never moves money.
func newGateway(env string, cfg billing.Config, log *slog.Logger) (billing.Gateway, error) {
	if cfg.Enabled() {
		return billing.NewStripeGateway(cfg, billing.WithStripeLogger(log)), nil
	}
	if env == logger.EnvProduction {
		return nil, errors.New("main: STRIPE_SECRET_KEY is required in production")
	}
	log.Warn("STRIPE_SECRET_KEY not set, using in-memory payment gateway")
	return billing.NewMemoryGateway(), nil
}
