package binder

import (
	"fmt"
	"mime"
	"net/http"
)

// Func decodes r into v, which must be a non-nil pointer to a struct.
type Func func(r *http.Request, v any) error

// Body dispatches to JSON or Form by media type.
func Body() Func {
	jsonBinder, formBinder := JSON(), Form()
	return func(r *http.Request, v any) error {
		mediaType, err := mediaTypeOf(r)
		if err != nil {
			return err
		}
		switch mediaType {
		case "application/json":
			return jsonBinder(r, v)
		case "application/x-www-form-urlencoded", "multipart/form-data":
			return formBinder(r, v)
		}
		return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
}

func mediaTypeOf(r *http.Request) (string, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "", ErrMissingContentType
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedMediaType, err)
	}
	return mediaType, nil
}
