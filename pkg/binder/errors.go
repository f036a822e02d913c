package binder

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("binder.unsupported_media_type")
	ErrMissingContentType   = errors.New("binder.missing_content_type")
	ErrFailedToParseJSON    = errors.New("binder.invalid_json")
	ErrFailedToParseForm    = errors.New("binder.invalid_form")
	ErrInvalidTarget        = errors.New("binder.invalid_target")
)
