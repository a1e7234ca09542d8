// Package httpx holds the response envelope and request helpers shared by
// the domain handlers.
package httpx

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
)

// Envelope is the success body. Errors use apperr.Response.
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Status: "success", Data: data})
}

func OKMessage(c echo.Context, status int, msg string, data interface{}) error {
	return c.JSON(status, Envelope{Status: "success", Message: msg, Data: data})
}

// Bind decodes the request body, reporting malformed input as a validation
// error.
func Bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

// ParamUUID parses a path parameter as a UUID.
func ParamUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}
