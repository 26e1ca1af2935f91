package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/labtranscriber/labtranscriber/internal/platform/fhir"
)

// RequestTimeout puts a deadline on each request context. When it expires
// before the handler returns, the client gets a 504: an OperationOutcome under
// /fhir and a plain JSON message elsewhere. Paths with one of the skip
// prefixes run without a deadline.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skip {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return gatewayTimeout(c, path)
				}
				return ctx.Err()
			}
		}
	}
}

func gatewayTimeout(c echo.Context, path string) error {
	// a partial write cannot be replaced
	if c.Response().Committed {
		return nil
	}
	const msg = "request processing exceeded the allowed time limit"
	if strings.HasPrefix(path, "/fhir") {
		return c.JSON(http.StatusGatewayTimeout, fhir.NewOperationOutcome("error", "timeout", msg))
	}
	return c.JSON(http.StatusGatewayTimeout, map[string]string{"message": msg})
}
