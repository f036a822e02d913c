package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/i-daichi/nagoyameshi/pkg/binder"
	"github.com/i-daichi/nagoyameshi/pkg/logger"
	"github.com/i-daichi/nagoyameshi/pkg/requestid"
)

// ErrorInfo is the classified form of a request error.
type ErrorInfo struct {
	StatusCode int
	Key        string
	Message    string
	Details    map[string][]string
	LogLevel   slog.Level
}

// ErrorMapper translates domain errors into HTTP errors.
type ErrorMapper func(err error) (HTTPError, bool)

// MapError maps anything matching target (errors.Is) to httpErr.
func MapError(target error, httpErr HTTPError) ErrorMapper {
	return func(err error) (HTTPError, bool) {
		if errors.Is(err, target) {
			return httpErr, true
		}
		return HTTPError{}, false
	}
}

var binderErrors = []ErrorMapper{
	MapError(binder.ErrMissingContentType, ErrUnsupportedMedia),
	MapError(binder.ErrUnsupportedMediaType, ErrUnsupportedMedia),
	MapError(binder.ErrFailedToParseJSON, ErrBadRequest),
	MapError(binder.ErrFailedToParseForm, ErrBadRequest),
}

func classifyError(err error, mappers []ErrorMapper) ErrorInfo {
	info := ErrorInfo{
		StatusCode: http.StatusInternalServerError,
		Key:        ErrInternalServerError.Key,
		Message:    "An error occurred processing your request",
	}

	var validationErr ValidationError
	var httpErr HTTPError
	switch {
	case errors.As(err, &validationErr):
		info.StatusCode = http.StatusUnprocessableEntity
		info.Key = "validation_error"
		info.Message = validationErr.Error()
		info.Details = validationErr
	case errors.As(err, &httpErr):
		info = fromHTTPError(httpErr)
	default:
		for _, m := range slices.Concat(mappers, binderErrors) {
			if he, ok := m(err); ok {
				info = fromHTTPError(he)
				break
			}
		}
	}

	info.LogLevel = slog.LevelError
	if info.StatusCode < http.StatusInternalServerError {
		info.LogLevel = slog.LevelWarn
	}
	return info
}

func fromHTTPError(he HTTPError) ErrorInfo {
	msg := he.Message
	if msg == "" {
		msg = http.StatusText(he.Code)
	}
	return ErrorInfo{StatusCode: he.Code, Key: he.Key, Message: msg}
}

// NewErrorHandler logs err and writes the JSON error envelope. mappers are
// tried in order after HTTPError and ValidationError.
func NewErrorHandler(log *slog.Logger, mappers ...ErrorMapper) ErrorHandler[Context] {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("http"))

	return func(ctx Context, err error) {
		r := ctx.Request()
		requestID := requestid.FromContext(r.Context())
		info := classifyError(err, mappers)

		log.LogAttrs(r.Context(), info.LogLevel, "request error",
			logger.RequestID(requestID),
			logger.Error(err),
			slog.Int("status_code", info.StatusCode),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		if renderErr := errorResponse(info, requestID).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response",
				logger.RequestID(requestID), logger.Error(renderErr))
		}
	}
}
