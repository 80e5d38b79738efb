package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/middleware"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// respond writes {"success":true} merged with payload.
func respond(c echo.Context, payload map[string]any) error {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = true
	return c.JSON(http.StatusOK, body)
}

// fail maps err to a status code and writes the error envelope.
func fail(c echo.Context, err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		middleware.FromContext(c.Request().Context()).Error("request failed",
			"path", c.Path(),
			"error", err,
		)
	}
	return c.JSON(status, ErrorResponse{Error: publicMessage(err)})
}

func publicMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fmt.Sprint(he.Message)
	}
	return domain.PublicMessage(err)
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	switch domain.KindOf(err) {
	case domain.ErrValidation, domain.ErrProtocol:
		return http.StatusBadRequest
	case domain.ErrAuthorization:
		return http.StatusForbidden
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
