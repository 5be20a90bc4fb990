package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
)

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

// ErrorHandler renders echo and application errors as ErrorResponse.
// Internal causes are logged and never sent to the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := resolveError(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		body := ErrorResponse{
			StatusCode: status,
			Message:    message,
			Error:      http.StatusText(status),
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func resolveError(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil {
			if _, ok := he.Internal.(*apperror.Error); ok {
				return resolveError(he.Internal)
			}
		}
		switch m := he.Message.(type) {
		case string:
			return he.Code, m
		case error:
			return he.Code, m.Error()
		default:
			return he.Code, http.StatusText(he.Code)
		}
	}
	return apperror.HTTPStatus(err), apperror.Message(err)
}
