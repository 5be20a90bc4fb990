package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// TimeoutConfig sets the per-request deadline. Routes under an Exempt prefix
// run without one; Long routes get LongTimeout instead of Timeout.
type TimeoutConfig struct {
	Timeout     time.Duration
	LongTimeout time.Duration
	Exempt      []string
	Long        []string
}

// RequestTimeout attaches a deadline to the request context. If the deadline
// has passed when the handler returns and nothing was written yet, the
// request fails with 504.
func RequestTimeout(cfg TimeoutConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if hasAnyPrefix(path, cfg.Exempt) {
				return next(c)
			}
			d := cfg.Timeout
			if cfg.LongTimeout > 0 && hasAnyPrefix(path, cfg.Long) {
				d = cfg.LongTimeout
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
			}
			return err
		}
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
