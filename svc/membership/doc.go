// Package membership moves users between the free and paid plans.
//
// Manager is the only entry point that changes a user's role. Each
// operation takes the caller's current session identity, serializes on the
// user through a Locker, talks to the payment provider through a
// billing.Gateway, persists through a UserStore and returns the rebuilt
// identity inside a Transition. The caller installs that identity in the
// session (session.Manager.Bind) before answering, so authorization checks
// on the next request already see the new role.
//
// Ordering: provider side effects happen before the local write, except the
// provider customer reference, which is stored right after it is created so
// a customer is never left without a local pointer. A refused or failed
// charge leaves the role untouched.
package membership
