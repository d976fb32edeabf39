// Package rpc exposes trail execution over HTTP and streams session logs
// over websockets.
package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorType is the closed set of error categories reported to clients.
type ErrorType string

const (
	ErrorNetwork       ErrorType = "network"
	ErrorHTTP          ErrorType = "http"
	ErrorSerialization ErrorType = "serialization"
	ErrorUnknown       ErrorType = "unknown"
)

// Error is the body of every failed response.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	// Status is the HTTP status the error was, or will be, sent with.
	Status int `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s error: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func serializationError(msg string, err error) *Error {
	e := &Error{Type: ErrorSerialization, Message: msg, Status: http.StatusBadRequest}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

func httpError(status int, msg string) *Error {
	return &Error{Type: ErrorHTTP, Message: msg, Status: status}
}

// errorHandler renders every handler error as an Error body.
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var body *Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &body):
		case errors.As(err, &he):
			body = httpError(he.Code, fmt.Sprint(he.Message))
		default:
			body = &Error{Type: ErrorUnknown, Message: err.Error(), Status: http.StatusInternalServerError}
		}
		if body.Status == 0 {
			body.Status = http.StatusInternalServerError
		}
		if body.Status >= http.StatusInternalServerError {
			log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(body.Status)
		} else {
			err = c.JSON(body.Status, body)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}
