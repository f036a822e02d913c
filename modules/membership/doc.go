// Package membership exposes the membership lifecycle over HTTP.
//
// Every route requires an authenticated session. Handlers run one lifecycle
// operation, install the identity it returns into the caller's session and
// only then write the response, so the next request is authorized with the
// new authorities.
//
//	svc := membership.NewService(manager, sessions, membership.Config{PublishableKey: pk}, log)
//	r.Group(func(r chi.Router) {
//		r.Use(sessions.Middleware)
//		r.Mount("/", svc.Handle())
//	})
package membership
