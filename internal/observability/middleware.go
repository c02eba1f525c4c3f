package observability

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}

			event := logger.Info()
			if status >= 500 {
				event = logger.Error()
			} else if status >= 400 {
				event = logger.Warn()
			}

			event.
				Str("method", c.Request().Method).
				Str("path", path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Str("client_ip", c.RealIP()).
				Int64("bytes", c.Response().Size).
				Msg("http_request")
			return nil
		}
	}
}

func RequestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			RecordHTTPRequest(c.Request().Method, path, status, time.Since(start))
			return err
		}
	}
}
