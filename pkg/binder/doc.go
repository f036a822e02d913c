// Package binder decodes request bodies into tagged structs.
//
// JSON reads application/json bodies strictly (unknown fields are rejected).
// Form reads url-encoded and multipart bodies using `form:"name"` tags. Body
// picks one of them from the Content-Type header, so a handler can accept a
// classic HTML form post and an API call with the same request type:
//
//	type chargeRequest struct {
//		Token string `json:"token" form:"stripeToken"`
//	}
//
//	var req chargeRequest
//	if err := binder.Body()(r, &req); err != nil {
//		// errors.Is(err, binder.ErrUnsupportedMediaType) ...
//	}
//
// String values are trimmed of surrounding whitespace.
package binder
