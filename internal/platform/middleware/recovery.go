package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/labtranscriber/labtranscriber/internal/platform/fhir"
)

// Recovery turns a panic in a handler into a 500. Requests under /fhir get an
// OperationOutcome body, everything else the usual echo error.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				rid, _ := c.Get("request_id").(string)
				logger.Error().
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("path", c.Path()).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				if strings.HasPrefix(c.Request().URL.Path, "/fhir/") && !c.Response().Committed {
					err = c.JSON(http.StatusInternalServerError,
						fhir.NewOperationOutcome("fatal", "exception", "internal server error"))
					return
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
