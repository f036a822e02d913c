package membership_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/i-daichi/nagoyameshi/pkg/billing"
	"github.com/i-daichi/nagoyameshi/pkg/rbac"
	"github.com/i-daichi/nagoyameshi/pkg/session"
	"github.com/i-daichi/nagoyameshi/svc/membership"
)

var price = billing.Money{Amount: 30000, Currency: "jpy"}

type fixture struct {
	store    *membership.MemoryUserStore
	gateway  *billing.MemoryGateway
	binder   *membership.Binder
	events   *recorder
	manager  *membership.Manager
	freeUser membership.User
}

func newFixture(t *testing.T, opts ...membership.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   membership.NewMemoryUserStore(),
		gateway: billing.NewMemoryGateway(),
		binder:  membership.NewBinder(rbac.MustAuthorizer(rbac.DefaultTable()), nil),
		events:  &recorder{},
	}
	f.freeUser = f.addUser(membership.RoleFree, "")
	opts = append([]membership.Option{
		membership.WithConfig(membership.Config{Price: price, Description: "NAGOYAMESHI paid membership", LockTimeout: time.Second}),
		membership.WithNotifier(f.events),
	}, opts...)
	f.manager = membership.NewManager(f.store, f.gateway, f.binder, opts...)
	return f
}

func (f *fixture) addUser(role membership.Role, customerRef string) membership.User {
	u := membership.User{
		ID:                 uuid.New(),
		Name:               "侍 太郎",
		Email:              "taro.samurai@example.com",
		Role:               role,
		PaymentCustomerRef: customerRef,
	}
	f.store.Put(u)
	return u
}

func (f *fixture) identity(u membership.User) session.Identity {
	return f.binder.Rebind(&u)
}

func (f *fixture) stored(t *testing.T, id uuid.UUID) *membership.User {
	t.Helper()
	u, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

type recorder struct {
	mu     sync.Mutex
	events []membership.Event
}

func (r *recorder) Notify(_ context.Context, e membership.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) kinds() []membership.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]membership.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}
