package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
)

// Logger writes one access line per request. Errors are handed to the
// router's error handler first so the logged status is the one the client
// received. Health and metrics probes log at debug.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			evt := accessEvent(logger, c.Path(), status)
			if err != nil {
				evt = evt.Err(err)
			}

			if rid, ok := c.Get("request_id").(string); ok {
				evt = evt.Str("request_id", rid)
			}
			if tenant, ok := c.Get("tenant_id").(string); ok {
				evt = evt.Str("tenant_id", tenant)
			}
			if actor, ok := auth.ActorFromContext(c.Request().Context()); ok {
				evt = evt.Str("user_id", actor.ID.String()).Str("role", string(actor.Role))
			}

			evt.Str("method", c.Request().Method).
				Str("route", c.Path()).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return nil
		}
	}
}

func accessEvent(logger zerolog.Logger, route string, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	case auth.IsInfraPath(route):
		return logger.Debug()
	default:
		return logger.Info()
	}
}
