package handler

import (
	"io"

	"awscqrs/internal/services"
	"awscqrs/internal/transport/httpdto"
	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/gin-gonic/gin"
)

const maxCommandBody = 256 << 10

type CommandHandler struct {
	service *services.CommandService
}

func NewCommandHandler(service *services.CommandService) *CommandHandler {
	return &CommandHandler{service: service}
}

// Submit is mounted for every method so that the service decides what is
// allowed.
func (h *CommandHandler) Submit(c *gin.Context) (httpdto.Response, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCommandBody+1))
	if err != nil {
		return httpdto.Response{}, awscqrs_errors.IncorrectRequestError("cannot read request body")
	}
	if len(body) > maxCommandBody {
		return httpdto.Response{}, awscqrs_errors.IncorrectRequestError("request body too large")
	}

	userID, _ := services.UserIDFromContext(c.Request.Context())
	if _, err := h.service.Accept(c.Request.Context(), c.Request.Method, body, userID); err != nil {
		return httpdto.Response{}, err
	}
	return httpdto.Empty(), nil
}
