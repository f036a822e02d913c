// Package session keeps server side sessions and the identity bound to them.
//
// A Session is addressed by an opaque random token carried by a Transport
// (cookie or header) and persisted in a Store (in-memory or Redis). Once a
// user logs in the session carries an Identity: a snapshot of the user's
// role and the authorities derived from it. Authorization checks read the
// Identity, never the database, so whoever changes a user's role must call
// Manager.Bind with the rebuilt Identity before answering the request.
//
//	mgr := session.New(session.NewRedisStore(client), session.NewCookieTransport(cfg))
//	r.Use(mgr.Middleware)
//	r.With(session.RequireAuthority("PAID_USER")).Get("/reservations", h)
package session
