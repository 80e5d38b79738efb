package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/handlers"
	"github.com/nfrund/hackchat/internal/middleware"
)

// setupErrorHandling installs an error handler that answers with the API
// error envelope and logs unhandled errors with a stack trace.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := handlers.StatusFor(err)
		msg := http.StatusText(status)

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		case status == http.StatusInternalServerError:
			middleware.FromContext(c.Request().Context()).Error("Internal Server Error (Unhandled)",
				slog.String("error", err.Error()),
				slog.String("path", c.Request().URL.Path),
				slog.String("stack_trace", string(debug.Stack())),
			)
		default:
			msg = domain.PublicMessage(err)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, handlers.ErrorResponse{Error: msg})
		}
		if werr != nil {
			slog.Warn("Failed to write error response", "error", werr)
		}
	}
}
