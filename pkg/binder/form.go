package binder

import (
	"fmt"
	"net/http"
)

// DefaultMaxMemory bounds multipart parsing held in memory.
const DefaultMaxMemory = 10 << 20

// Form binds `form:"name"` fields. Fields without the tag are bound by their
// lowercased name; `form:"-"` skips a field. File parts are ignored.
func Form() Func {
	return func(r *http.Request, v any) error {
		mediaType, err := mediaTypeOf(r)
		if err != nil {
			return err
		}

		var values map[string][]string
		switch mediaType {
		case "application/x-www-form-urlencoded":
			if err := r.ParseForm(); err != nil {
				return fmt.Errorf("%w: %v", ErrFailedToParseForm, err)
			}
			values = r.PostForm
		case "multipart/form-data":
			if err := r.ParseMultipartForm(DefaultMaxMemory); err != nil {
				return fmt.Errorf("%w: %v", ErrFailedToParseForm, err)
			}
			values = r.MultipartForm.Value
		default:
			return fmt.Errorf("%w: got %s, expected a form", ErrUnsupportedMediaType, mediaType)
		}
		return bindToStruct(v, "form", values, ErrFailedToParseForm)
	}
}
