// Package middleware provides HTTP middleware for the mailstore API.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns a middleware that logs each request. When a session
// is bound further down the chain the log line carries its username.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			args := []any{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}
			if session := SessionFromContext(c); session != nil {
				args = append(args, slog.String("username", session.Username()))
			}
			logger.Info("request", args...)

			return err
		}
	}
}

// Recover returns a middleware that turns handler panics into 500 responses
// and logs the panic value with its stack trace.
func Recover(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						panic(r)
					}
					if logger != nil {
						logger.Error("panic recovered",
							slog.Any("panic", r),
							slog.String("path", c.Request().URL.Path),
							slog.String("stack", string(debug.Stack())))
					}
					err = echo.NewHTTPError(http.StatusInternalServerError)
				}
			}()
			return next(c)
		}
	}
}
