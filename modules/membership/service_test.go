package membership_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-daichi/nagoyameshi/handler"
	"github.com/i-daichi/nagoyameshi/modules/membership"
	"github.com/i-daichi/nagoyameshi/pkg/billing"
	"github.com/i-daichi/nagoyameshi/pkg/ratelimiter"
	"github.com/i-daichi/nagoyameshi/pkg/rbac"
	"github.com/i-daichi/nagoyameshi/pkg/session"
	core "github.com/i-daichi/nagoyameshi/svc/membership"
)

type testEnv struct {
	store    *core.MemoryUserStore
	gateway  *billing.MemoryGateway
	binder   *core.Binder
	sessions *session.Manager
	router   http.Handler
}

func newTestEnv(t *testing.T, opts ...func(*membership.Config)) *testEnv {
	t.Helper()
	e := &testEnv{
		store:    core.NewMemoryUserStore(),
		gateway:  billing.NewMemoryGateway(),
		binder:   core.NewBinder(rbac.MustAuthorizer(rbac.DefaultTable()), nil),
		sessions: session.New(session.NewMemoryStore(0), session.NewHeaderTransport("")),
	}
	mgr := core.NewManager(e.store, e.gateway, e.binder,
		core.WithConfig(core.Config{Price: billing.Money{Amount: 30000, Currency: "jpy"}}))
	cfg := membership.Config{PublishableKey: "pk_test_123"}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc := membership.NewService(mgr, e.sessions, cfg, nil)

	r := chi.NewRouter()
	r.Use(e.sessions.Middleware)
	r.Post("/dev/login", svc.DevLogin(e.store, e.binder, e.sessions))
	r.Mount("/", svc.Handle())
	e.router = r
	return e
}

func (e *testEnv) addUser(role core.Role) core.User {
	u := core.User{ID: uuid.New(), Name: "侍 太郎", Email: "taro.samurai@example.com", Role: role}
	e.store.Put(u)
	return u
}

func (e *testEnv) login(t *testing.T, u core.User) string {
	t.Helper()
	sess, err := e.sessions.Authenticate(context.Background(), httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/", nil), e.binder.Rebind(&u))
	require.NoError(t, err)
	return sess.Token
}

func (e *testEnv) do(method, path, token, contentType, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, r)
	return rec
}

func formBody(token string) string {
	return url.Values{"stripeToken": {token}}.Encode()
}

const formType = "application/x-www-form-urlencoded"

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var body handler.JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestMembershipFlow(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.addUser(core.RoleFree)
	token := e.login(t, u)

	rec := e.do(http.MethodGet, "/paid/ping", token, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "free member cannot reach paid area")

	rec = e.do(http.MethodPost, "/user/charge", token, formType, formBody(billing.TestTokenVisa))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	data := body.Data.(map[string]any)
	assert.Equal(t, true, data["changed"])
	assert.Equal(t, "paid", data["user"].(map[string]any)["role"])
	assert.Equal(t, "有料プランへの登録が完了しました。", body.Meta["message"])

	rec = e.do(http.MethodGet, "/paid/ping", token, "", "")
	assert.Equal(t, http.StatusOK, rec.Code, "the same session is paid right after the charge")

	rec = e.do(http.MethodGet, "/user/card", token, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4242", decode(t, rec).Data.(map[string]any)["last4"])

	rec = e.do(http.MethodPost, "/user/update-card", token, "application/json", `{"token":"tok_mastercard"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "mastercard", decode(t, rec).Data.(map[string]any)["brand"])

	rec = e.do(http.MethodPost, "/user/downgrade", token, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "free", decode(t, rec).Data.(map[string]any)["user"].(map[string]any)["role"])

	rec = e.do(http.MethodGet, "/paid/ping", token, "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "downgrade takes effect immediately")

	assert.Len(t, e.gateway.Charges(), 1)
}

func TestCharge_Errors(t *testing.T) {
	t.Parallel()

	t.Run("declined card", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		token := e.login(t, e.addUser(core.RoleFree))

		rec := e.do(http.MethodPost, "/user/charge", token, formType, formBody(billing.TestTokenChargeDecline))
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "card_declined", body.Error.Code)
		assert.Equal(t, "決済に失敗しました。もう一度お試しください。", body.Error.Message)

		assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/paid/ping", token, "", "").Code)
	})

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		token := e.login(t, e.addUser(core.RoleFree))
		rec := e.do(http.MethodPost, "/user/charge", token, formType, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "card_token_required", decode(t, rec).Error.Code)
	})

	t.Run("gateway outage", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		token := e.login(t, e.addUser(core.RoleFree))
		e.gateway.FailNext(billing.OpEnsureCustomer, &billing.GatewayError{Op: billing.OpEnsureCustomer, Kind: billing.ErrGateway, StatusCode: 500})

		rec := e.do(http.MethodPost, "/user/charge", token, formType, formBody(billing.TestTokenVisa))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "payment_gateway_unavailable", decode(t, rec).Error.Code)
	})

	t.Run("admin", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		token := e.login(t, e.addUser(core.RoleAdmin))
		rec := e.do(http.MethodPost, "/user/charge", token, formType, formBody(billing.TestTokenVisa))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "role_not_eligible", decode(t, rec).Error.Code)
	})
}

func TestCard_NoCustomer(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	token := e.login(t, e.addUser(core.RoleFree))

	rec := e.do(http.MethodGet, "/user/card", token, "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_payment_customer", decode(t, rec).Error.Code)

	rec = e.do(http.MethodPost, "/user/update-card", token, formType, formBody(billing.TestTokenVisa))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, e.gateway.Calls(billing.OpAttachInstrument))
}

func TestUser_RebindsStaleSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.addUser(core.RoleFree)
	token := e.login(t, u)

	// Role changed out of band, e.g. by an operator.
	_, err := e.store.SetRole(context.Background(), u.ID, core.RolePaid)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/paid/ping", token, "", "").Code)

	rec := e.do(http.MethodGet, "/user", token, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec).Data.(map[string]any)["paid"])
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/paid/ping", token, "", "").Code)
}

func TestBilling(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	token := e.login(t, e.addUser(core.RoleFree))

	rec := e.do(http.MethodGet, "/user/billing", token, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"publishable_key": "pk_test_123",
		"amount":          float64(30000),
		"currency":        "jpy",
	}, decode(t, rec).Data)
}

func TestUnauthenticated(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	for _, path := range []string{"/user", "/user/card", "/user/billing", "/paid/ping"} {
		rec := e.do(http.MethodGet, path, "", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json", path)
		assert.Equal(t, handler.ErrUnauthorized.Key, decode(t, rec).Error.Code, path)
	}
	rec := e.do(http.MethodPost, "/user/charge", "bogus", formType, formBody("tok_visa"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, handler.ErrUnauthorized.Key, decode(t, rec).Error.Code)
}

func TestPaidArea_ForbiddenIsJSON(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	token := e.login(t, e.addUser(core.RoleFree))

	rec := e.do(http.MethodGet, "/paid/ping", token, "", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	body := decode(t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, handler.ErrForbidden.Key, body.Error.Code)
}

func TestDevLogin(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	u := e.addUser(core.RoleFree)

	rec := e.do(http.MethodPost, "/dev/login", "", "application/json", `{"user_id":"`+u.ID.String()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decode(t, rec).Meta["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/user", token, "", "").Code)

	rec = e.do(http.MethodPost, "/dev/login", "", "application/json", `{"user_id":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(http.MethodPost, "/dev/login", "", "application/json", `{"user_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type failingBinder struct{}

func (failingBinder) Bind(context.Context, http.ResponseWriter, *http.Request, session.Identity) (*session.Session, error) {
	return nil, session.ErrStore
}

func TestBindFailureIsReported(t *testing.T) {
	t.Parallel()
	store := core.NewMemoryUserStore()
	b := core.NewBinder(rbac.MustAuthorizer(rbac.DefaultTable()), nil)
	u := core.User{ID: uuid.New(), Email: "taro@example.com", Role: core.RolePaid}
	store.Put(u)
	mgr := core.NewManager(store, billing.NewMemoryGateway(), b)
	svc := membership.NewService(mgr, failingBinder{}, membership.Config{}, nil)

	withIdentity := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := b.Rebind(&u)
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), &session.Session{Identity: &id})))
		})
	}
	r := chi.NewRouter()
	r.Use(withIdentity)
	r.Mount("/", svc.Handle())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/user/downgrade", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	stored, err := store.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RoleFree, stored.Role, "the change itself is committed")
}

func TestCardRoutesAreThrottled(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	e := newTestEnv(t, func(c *membership.Config) { c.CardLimiter = limiter })
	token := e.login(t, e.addUser(core.RoleFree))
	other := e.login(t, e.addUser(core.RoleFree))

	// One-time tokens are single use; both still decline.
	for _, tok := range []string{billing.TestTokenChargeDecline + "_1", billing.TestTokenChargeDecline + "_2"} {
		rec := e.do(http.MethodPost, "/user/charge", token, formType, formBody(tok))
		assert.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
	}

	rec := e.do(http.MethodPost, "/user/charge", token, formType, formBody(billing.TestTokenVisa))
	require.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.NotNil(t, body.Error)
	assert.Equal(t, "card_attempts_exceeded", body.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 2, e.gateway.Calls(billing.OpCharge), "the throttled attempt never reaches the gateway")

	rec = e.do(http.MethodGet, "/user", token, "", "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not throttled")

	rec = e.do(http.MethodPost, "/user/charge", other, formType, formBody(billing.TestTokenVisa))
	assert.Equal(t, http.StatusOK, rec.Code, "other members keep their own budget")
}
