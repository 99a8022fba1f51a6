// Package errors writes error responses and logs their causes with the
// request id.
package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"gitea.jw6.us/james/bookingcal/internal/ical"
	"gitea.jw6.us/james/bookingcal/internal/store"
)

// Responder maps errors to HTTP responses.
type Responder struct {
	logger *zap.Logger
}

func NewResponder(logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{logger: logger}
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ical.ErrMissingIdentity), stderrors.Is(err, ical.ErrMalformedSessionDate):
		return http.StatusUnprocessableEntity
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error writes the response for err. Client errors echo the cause; server
// errors are logged and answered with a generic message.
func (e *Responder) Error(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		e.Internal(w, r, err, message)
		return
	}
	e.log(r).Info(message, zap.Int("status", status), zap.Error(err))
	http.Error(w, err.Error(), status)
}

func (e *Responder) Internal(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := Status(err)
	if status < http.StatusInternalServerError {
		status = http.StatusInternalServerError
	}
	e.log(r).Error(message, zap.Int("status", status), zap.Error(err))
	http.Error(w, http.StatusText(status), status)
}

func (e *Responder) BadRequest(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	e.log(r).Warn("bad request", zap.Error(err))
	http.Error(w, clientMessage, http.StatusBadRequest)
}

// LogError records err without writing a response, for failures after the
// response has started.
func (e *Responder) LogError(r *http.Request, message string, err error) {
	e.log(r).Error(message, zap.Error(err))
}

func (e *Responder) log(r *http.Request) *zap.Logger {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return e.logger.With(zap.String("request_id", id))
	}
	return e.logger
}
