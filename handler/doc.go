// Package handler turns typed handler functions into http.HandlerFunc.
//
// A handler receives a Context (the request context plus the request and
// response writer) and a decoded request value, and returns a Response:
//
//	type chargeRequest struct {
//		Token string `json:"token" form:"stripeToken"`
//	}
//
//	func charge(ctx handler.Context, req chargeRequest) handler.Response {
//		t, err := manager.Upgrade(ctx, identity, req.Token)
//		if err != nil {
//			return handler.Error(err)
//		}
//		return handler.JSON(t.User)
//	}
//
//	r.Post("/user/charge", handler.Wrap(charge,
//		handler.WithBinder[handler.Context, chargeRequest](binder.Body()),
//		handler.WithErrorHandler[handler.Context, chargeRequest](errHandler),
//	))
//
// Binding failures, responses built with Error and failed renders all reach
// the ErrorHandler. NewErrorHandler classifies the error into an HTTPError
// (directly, through ErrorMapper rules, or as a ValidationError), logs it and
// writes the JSON error envelope.
package handler
