package membership_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/i-daichi/nagoyameshi/pkg/billing"
	"github.com/i-daichi/nagoyameshi/pkg/rbac"
	"github.com/i-daichi/nagoyameshi/pkg/session"
	"github.com/i-daichi/nagoyameshi/svc/membership"
)

func TestManager_Upgrade(t *testing.T) {
	t.Parallel()

	t.Run("free user without customer becomes paid", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		tr, err := f.manager.Upgrade(ctx, f.identity(f.freeUser), billing.TestTokenVisa)
		require.NoError(t, err)

		assert.True(t, tr.Changed)
		assert.Equal(t, membership.RoleFree, tr.From)
		assert.Equal(t, membership.RolePaid, tr.To)
		assert.Equal(t, membership.RolePaid, tr.User.Role)
		assert.Equal(t, "paid", tr.Identity.Role)
		assert.True(t, tr.Identity.HasAuthority(rbac.AuthorityPaidUser))
		assert.True(t, tr.Identity.HasAuthority(rbac.AuthorityFreeUser))
		require.NotNil(t, tr.Charge)
		assert.Equal(t, price, tr.Charge.Amount)
		assert.True(t, tr.Charge.Succeeded())

		stored := f.stored(t, f.freeUser.ID)
		assert.Equal(t, membership.RolePaid, stored.Role)
		assert.NotEmpty(t, stored.PaymentCustomerRef)
		assert.Equal(t, 1, f.gateway.CustomerCount())
		assert.Len(t, f.gateway.Charges(), 1)
		assert.Equal(t, []membership.EventKind{membership.EventUpgraded}, f.events.kinds())
	})

	t.Run("declined card keeps role and links customer", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		tr, err := f.manager.Upgrade(ctx, f.identity(f.freeUser), billing.TestTokenChargeDecline)
		require.Error(t, err)
		assert.Nil(t, tr)
		assert.ErrorIs(t, err, membership.ErrDeclined)

		stored := f.stored(t, f.freeUser.ID)
		assert.Equal(t, membership.RoleFree, stored.Role)
		assert.NotEmpty(t, stored.PaymentCustomerRef, "customer stays linked for the retry")
		assert.Empty(t, f.events.kinds())

		// Retry with a good card reuses the linked customer.
		tr, err = f.manager.Upgrade(ctx, f.identity(f.freeUser), billing.TestTokenMastercard)
		require.NoError(t, err)
		assert.Equal(t, membership.RolePaid, tr.User.Role)
		assert.Equal(t, stored.PaymentCustomerRef, tr.User.PaymentCustomerRef)
		assert.Equal(t, 1, f.gateway.CustomerCount())
		assert.Equal(t, 2, f.gateway.Calls(billing.OpEnsureCustomer), "second call only verifies")
	})

	t.Run("paid user is a no-op without provider calls", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		paid := f.addUser(membership.RolePaid, "cus_existing")

		tr, err := f.manager.Upgrade(context.Background(), f.identity(paid), billing.TestTokenVisa)
		require.NoError(t, err)
		assert.False(t, tr.Changed)
		assert.Equal(t, membership.RolePaid, tr.User.Role)
		assert.True(t, tr.Identity.HasAuthority(rbac.AuthorityPaidUser))
		assert.Zero(t, f.gateway.Calls(billing.OpEnsureCustomer))
		assert.Zero(t, f.gateway.Calls(billing.OpCharge))
	})

	t.Run("stale session is rebound from the stored role", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		stale := f.identity(f.freeUser)
		_, err := f.store.SetRole(context.Background(), f.freeUser.ID, membership.RolePaid)
		require.NoError(t, err)

		tr, err := f.manager.Upgrade(context.Background(), stale, billing.TestTokenVisa)
		require.NoError(t, err)
		assert.False(t, tr.Changed)
		assert.True(t, tr.Identity.HasAuthority(rbac.AuthorityPaidUser))
		assert.Zero(t, f.gateway.Calls(billing.OpCharge))
	})

	t.Run("admin is not eligible", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		admin := f.addUser(membership.RoleAdmin, "")

		_, err := f.manager.Upgrade(context.Background(), f.identity(admin), billing.TestTokenVisa)
		assert.ErrorIs(t, err, membership.ErrRoleNotEligible)
		assert.Zero(t, f.gateway.Calls(billing.OpEnsureCustomer))
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ghost := f.freeUser
		ghost.ID = uuid.New()

		_, err := f.manager.Upgrade(context.Background(), f.identity(ghost), billing.TestTokenVisa)
		assert.ErrorIs(t, err, membership.ErrUserNotFound)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.manager.Upgrade(context.Background(), session.Identity{}, billing.TestTokenVisa)
		assert.ErrorIs(t, err, membership.ErrNotAuthenticated)
	})

	t.Run("empty token", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.manager.Upgrade(context.Background(), f.identity(f.freeUser), "")
		assert.ErrorIs(t, err, membership.ErrTokenRequired)
		assert.Zero(t, f.gateway.Calls(billing.OpEnsureCustomer))
	})

	t.Run("invalid token leaves role", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.manager.Upgrade(context.Background(), f.identity(f.freeUser), "not-a-token")
		assert.ErrorIs(t, err, membership.ErrInvalidToken)
		assert.Equal(t, membership.RoleFree, f.stored(t, f.freeUser.ID).Role)
		assert.Zero(t, f.gateway.Calls(billing.OpCharge))
	})

	t.Run("gateway outage leaves role", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.gateway.FailNext(billing.OpCharge, &billing.GatewayError{Op: billing.OpCharge, Kind: billing.ErrGateway, StatusCode: 503})

		_, err := f.manager.Upgrade(context.Background(), f.identity(f.freeUser), billing.TestTokenVisa)
		assert.ErrorIs(t, err, membership.ErrGateway)
		assert.True(t, billing.IsTemporary(err))
		assert.Equal(t, membership.RoleFree, f.stored(t, f.freeUser.ID).Role)
	})

	t.Run("linked customer deleted at provider", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ref, err := f.gateway.EnsureCustomer(context.Background(), billing.CustomerRequest{Email: "x@example.com"})
		require.NoError(t, err)
		u := f.addUser(membership.RoleFree, ref)
		f.gateway.DeleteCustomer(ref)

		_, err = f.manager.Upgrade(context.Background(), f.identity(u), billing.TestTokenVisa)
		assert.ErrorIs(t, err, membership.ErrCustomerNotFound)
		assert.Equal(t, ref, f.stored(t, u.ID).PaymentCustomerRef)
	})
}

func TestManager_Upgrade_Concurrent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.identity(f.freeUser)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.manager.Upgrade(context.Background(), id, billing.TestTokenVisa)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, f.gateway.Charges(), 1, "only one charge for concurrent submits")
	assert.Equal(t, 1, f.gateway.CustomerCount())
	assert.Equal(t, membership.RolePaid, f.stored(t, f.freeUser.ID).Role)
}

func TestManager_Downgrade(t *testing.T) {
	t.Parallel()

	t.Run("paid user becomes free without provider calls", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		paid := f.addUser(membership.RolePaid, "cus_existing")

		tr, err := f.manager.Downgrade(context.Background(), f.identity(paid))
		require.NoError(t, err)
		assert.True(t, tr.Changed)
		assert.Equal(t, membership.RoleFree, tr.User.Role)
		assert.Equal(t, []string{rbac.AuthorityFreeUser}, tr.Identity.Authorities)
		assert.Equal(t, "cus_existing", tr.User.PaymentCustomerRef, "customer stays linked")

		for _, op := range []string{billing.OpEnsureCustomer, billing.OpAttachInstrument, billing.OpCharge, billing.OpSetDefaultInstrument, billing.OpListInstruments} {
			assert.Zero(t, f.gateway.Calls(op), op)
		}
		assert.Equal(t, []membership.EventKind{membership.EventDowngraded}, f.events.kinds())
	})

	t.Run("free user is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		tr, err := f.manager.Downgrade(context.Background(), f.identity(f.freeUser))
		require.NoError(t, err)
		assert.False(t, tr.Changed)
		assert.Empty(t, f.events.kinds())
	})

	t.Run("admin is not eligible", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		admin := f.addUser(membership.RoleAdmin, "")
		_, err := f.manager.Downgrade(context.Background(), f.identity(admin))
		assert.ErrorIs(t, err, membership.ErrRoleNotEligible)
	})

	t.Run("upgrade after downgrade charges again on the same customer", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		first, err := f.manager.Upgrade(ctx, f.identity(f.freeUser), billing.TestTokenVisa)
		require.NoError(t, err)
		_, err = f.manager.Downgrade(ctx, first.Identity)
		require.NoError(t, err)

		second, err := f.manager.Upgrade(ctx, first.Identity, billing.TestTokenJCB)
		require.NoError(t, err)
		assert.Equal(t, first.User.PaymentCustomerRef, second.User.PaymentCustomerRef)
		assert.Len(t, f.gateway.Charges(), 2)
	})
}

func TestManager_ReplaceInstrument(t *testing.T) {
	t.Parallel()

	t.Run("new card becomes default", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		tr, err := f.manager.Upgrade(ctx, f.identity(f.freeUser), billing.TestTokenVisa)
		require.NoError(t, err)

		card, err := f.manager.ReplaceInstrument(ctx, tr.Identity, billing.TestTokenMastercard)
		require.NoError(t, err)
		assert.Equal(t, "mastercard", card.Brand)
		assert.True(t, card.IsDefault)

		shown, err := f.manager.Card(ctx, tr.Identity)
		require.NoError(t, err)
		assert.Equal(t, card.ID, shown.ID)
		assert.Equal(t, "4444", shown.Last4)

		assert.Equal(t, membership.RolePaid, f.stored(t, f.freeUser.ID).Role, "role untouched")
		assert.Len(t, f.gateway.Charges(), 1, "no charge on card change")
		assert.Equal(t, []membership.EventKind{membership.EventUpgraded, membership.EventInstrumentReplaced}, f.events.kinds())
	})

	t.Run("no customer", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.manager.ReplaceInstrument(context.Background(), f.identity(f.freeUser), billing.TestTokenVisa)
		assert.ErrorIs(t, err, membership.ErrNoCustomer)
		assert.Zero(t, f.gateway.Calls(billing.OpAttachInstrument))
	})

	t.Run("set default fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		tr, err := f.manager.Upgrade(ctx, f.identity(f.freeUser), billing.TestTokenVisa)
		require.NoError(t, err)
		f.gateway.FailNext(billing.OpSetDefaultInstrument, &billing.GatewayError{Op: billing.OpSetDefaultInstrument, Kind: billing.ErrGateway})

		_, err = f.manager.ReplaceInstrument(ctx, tr.Identity, billing.TestTokenJCB)
		assert.ErrorIs(t, err, membership.ErrGateway)

		shown, err := f.manager.Card(ctx, tr.Identity)
		require.NoError(t, err)
		assert.Equal(t, "4242", shown.Last4, "old card still shown")
	})
}

func TestManager_Card(t *testing.T) {
	t.Parallel()

	t.Run("no customer", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.manager.Card(context.Background(), f.identity(f.freeUser))
		assert.ErrorIs(t, err, membership.ErrNoCustomer)
	})

	t.Run("customer without cards", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ref, err := f.gateway.EnsureCustomer(context.Background(), billing.CustomerRequest{Email: "x@example.com"})
		require.NoError(t, err)
		u := f.addUser(membership.RoleFree, ref)

		_, err = f.manager.Card(context.Background(), f.identity(u))
		assert.ErrorIs(t, err, membership.ErrNoInstrument)
	})

	t.Run("first card when none is default", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		ref, err := f.gateway.EnsureCustomer(ctx, billing.CustomerRequest{Email: "x@example.com"})
		require.NoError(t, err)
		_, err = f.gateway.AttachInstrument(ctx, ref, billing.TestTokenJCB)
		require.NoError(t, err)
		u := f.addUser(membership.RoleFree, ref)

		card, err := f.manager.Card(ctx, f.identity(u))
		require.NoError(t, err)
		assert.Equal(t, "jcb", card.Brand)
	})
}

func TestManager_Current(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	tr, err := f.manager.Current(context.Background(), f.identity(f.freeUser))
	require.NoError(t, err)
	assert.Equal(t, f.freeUser.ID, tr.User.ID)
	assert.False(t, tr.Changed)
	assert.Equal(t, price, f.manager.Price())
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindByID(ctx context.Context, id uuid.UUID) (*membership.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*membership.User)
	return u, args.Error(1)
}

func (m *mockStore) SetPaymentCustomerRef(ctx context.Context, id uuid.UUID, ref string) (string, error) {
	args := m.Called(ctx, id, ref)
	return args.String(0), args.Error(1)
}

func (m *mockStore) SetRole(ctx context.Context, id uuid.UUID, role membership.Role) (*membership.User, error) {
	args := m.Called(ctx, id, role)
	u, _ := args.Get(0).(*membership.User)
	return u, args.Error(1)
}

func TestManager_Upgrade_StoreFailures(t *testing.T) {
	t.Parallel()
	authz := rbac.MustAuthorizer(rbac.DefaultTable())

	t.Run("role write fails after charge", func(t *testing.T) {
		t.Parallel()
		gw := billing.NewMemoryGateway()
		binder := membership.NewBinder(authz, nil)
		user := &membership.User{ID: uuid.New(), Email: "taro@example.com", Role: membership.RoleFree}

		store := &mockStore{}
		store.On("FindByID", mock.Anything, user.ID).Return(user, nil)
		store.On("SetPaymentCustomerRef", mock.Anything, user.ID, mock.AnythingOfType("string")).
			Return("cus_mem_1", nil)
		store.On("SetRole", mock.Anything, user.ID, membership.RolePaid).
			Return(nil, errors.Join(membership.ErrStore, errors.New("connection reset")))

		m := membership.NewManager(store, gw, binder, membership.WithConfig(membership.Config{Price: price}))
		_, err := m.Upgrade(context.Background(), binder.Rebind(user), billing.TestTokenVisa)
		assert.ErrorIs(t, err, membership.ErrRoleUpdateFailed)
		assert.ErrorIs(t, err, membership.ErrStore)
		assert.Len(t, gw.Charges(), 1)
		store.AssertExpectations(t)
	})

	t.Run("customer linked concurrently is reused", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		gw := billing.NewMemoryGateway()
		existing, err := gw.EnsureCustomer(ctx, billing.CustomerRequest{Email: "taro@example.com"})
		require.NoError(t, err)
		binder := membership.NewBinder(authz, nil)
		user := &membership.User{ID: uuid.New(), Email: "taro@example.com", Role: membership.RoleFree}
		paid := *user
		paid.Role = membership.RolePaid
		paid.PaymentCustomerRef = existing

		store := &mockStore{}
		store.On("FindByID", mock.Anything, user.ID).Return(user, nil)
		store.On("SetPaymentCustomerRef", mock.Anything, user.ID, mock.AnythingOfType("string")).
			Return(existing, membership.ErrCustomerRefConflict)
		store.On("SetRole", mock.Anything, user.ID, membership.RolePaid).Return(&paid, nil)

		m := membership.NewManager(store, gw, binder, membership.WithConfig(membership.Config{Price: price}))
		tr, err := m.Upgrade(ctx, binder.Rebind(user), billing.TestTokenVisa)
		require.NoError(t, err)
		require.Len(t, gw.Charges(), 1)
		assert.Equal(t, existing, gw.Charges()[0].CustomerRef)
		assert.Equal(t, existing, tr.User.PaymentCustomerRef)
		store.AssertExpectations(t)
	})

	t.Run("lookup fails", func(t *testing.T) {
		t.Parallel()
		gw := billing.NewMemoryGateway()
		binder := membership.NewBinder(authz, nil)
		id := uuid.New()
		store := &mockStore{}
		store.On("FindByID", mock.Anything, id).Return(nil, membership.ErrUserNotFound)

		m := membership.NewManager(store, gw, binder)
		_, err := m.Downgrade(context.Background(), session.Identity{UserID: id})
		assert.ErrorIs(t, err, membership.ErrUserNotFound)
		store.AssertNotCalled(t, "SetRole", mock.Anything, mock.Anything, mock.Anything)
	})
}

type blockingLocker struct{}

func (blockingLocker) Lock(ctx context.Context, _ string) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestManager_LockTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, membership.WithLocker(blockingLocker{}), membership.WithConfig(membership.Config{LockTimeout: 10 * time.Millisecond}))

	_, err := f.manager.Upgrade(context.Background(), f.identity(f.freeUser), billing.TestTokenVisa)
	assert.ErrorIs(t, err, membership.ErrLockNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, f.gateway.Calls(billing.OpEnsureCustomer))
}

// slowAttachGateway stalls card attachment until the caller gives up, then
// lets the provider finish the attach anyway.
type slowAttachGateway struct {
	*billing.MemoryGateway
}

func (g slowAttachGateway) AttachInstrument(ctx context.Context, customerRef, token string) (*billing.PaymentInstrument, error) {
	<-ctx.Done()
	return g.MemoryGateway.AttachInstrument(context.WithoutCancel(ctx), customerRef, token)
}

type countingLocker struct {
	inner    membership.Locker
	mu       sync.Mutex
	released int
}

func (l *countingLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlock, err := l.inner.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	return func() {
		unlock()
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

func TestManager_OperationTimeout(t *testing.T) {
	t.Parallel()
	store := membership.NewMemoryUserStore()
	gw := billing.NewMemoryGateway()
	binder := membership.NewBinder(rbac.MustAuthorizer(rbac.DefaultTable()), nil)
	locker := &countingLocker{inner: membership.NewLocalLocker()}
	u := membership.User{ID: uuid.New(), Name: "侍 花子", Email: "hanako@example.com", Role: membership.RoleFree}
	store.Put(u)

	m := membership.NewManager(store, slowAttachGateway{gw}, binder,
		membership.WithConfig(membership.Config{
			Price:            price,
			LockTimeout:      time.Second,
			OperationTimeout: 20 * time.Millisecond,
		}),
		membership.WithLocker(locker),
	)

	start := time.Now()
	_, err := m.Upgrade(context.Background(), binder.Rebind(&u), billing.TestTokenVisa)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	// The charge never reaches the provider once the operation has expired.
	assert.Zero(t, gw.Calls(billing.OpCharge))
	assert.Empty(t, gw.Charges())

	stored, err := store.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, membership.RoleFree, stored.Role)

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Equal(t, 1, locker.released)
}

func TestManager_NotifierFailureDoesNotUndo(t *testing.T) {
	t.Parallel()
	f := newFixture(t, membership.WithNotifier(membership.NotifierFunc(func(context.Context, membership.Event) error {
		return errors.New("smtp down")
	})))

	tr, err := f.manager.Upgrade(context.Background(), f.identity(f.freeUser), billing.TestTokenVisa)
	require.NoError(t, err)
	assert.Equal(t, membership.RolePaid, tr.User.Role)
}

func TestNewManager_PanicsWithoutDeps(t *testing.T) {
	t.Parallel()
	binder := membership.NewBinder(rbac.MustAuthorizer(rbac.DefaultTable()), nil)
	assert.Panics(t, func() { membership.NewManager(nil, billing.NewMemoryGateway(), binder) })
	assert.Panics(t, func() { membership.NewManager(membership.NewMemoryUserStore(), nil, binder) })
	assert.Panics(t, func() { membership.NewManager(membership.NewMemoryUserStore(), billing.NewMemoryGateway(), nil) })
}
