package handler

import (
	"context"
	"net/http"

	"awscqrs/internal/transport/httpdto"
	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Ping(c *gin.Context) (httpdto.Response, error) {
	return httpdto.NewSuccessResponse(gin.H{"message": "pong"}), nil
}

func (h *HealthHandler) Health(c *gin.Context) (httpdto.Response, error) {
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			return httpdto.Response{}, awscqrs_errors.NewCustomError(name+": "+err.Error(), http.StatusServiceUnavailable)
		}
	}
	return httpdto.NewSuccessResponse(gin.H{"status": "healthy"}), nil
}
