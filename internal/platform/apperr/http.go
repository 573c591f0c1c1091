package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Response is the body of every error response.
type Response struct {
	Detail string `json:"detail"`
}

// StatusCode maps err to an HTTP status. Only NotFound becomes 404; every
// other classified failure is a 500. *echo.HTTPError keeps its own code so
// routing, rate limiting and body limits still behave as echo intends.
func StatusCode(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if KindOf(err) == KindNotFound {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// DetailOf returns the client-facing message for err.
func DetailOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Detail()
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
		return http.StatusText(he.Code)
	}
	return err.Error()
}

// HTTPErrorHandler replaces echo's default handler so that all failures share
// the {"detail": "..."} body.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := StatusCode(err)
		if code >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("kind", KindOf(err).String()).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, Response{Detail: DetailOf(err)})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}

// FromBind classifies an error returned by echo's c.Bind. Errors raised by a
// type's own UnmarshalJSON keep their classification, malformed JSON becomes
// a Validation error, and any other *echo.HTTPError (413 from the body
// limit, 415 for a missing content type) keeps its status.
func FromBind(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code != http.StatusBadRequest {
		return he
	}
	return Validation(op, "invalid request body: %s", DetailOf(err))
}
