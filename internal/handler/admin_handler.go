package handler

import (
	"awscqrs/internal/services"
	"awscqrs/internal/transport/httpdto"
	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	replay *services.ReplayService
}

func NewAdminHandler(replay *services.ReplayService) *AdminHandler {
	return &AdminHandler{replay: replay}
}

func (h *AdminHandler) Replay(c *gin.Context) (httpdto.Response, error) {
	var req services.ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return httpdto.Response{}, awscqrs_errors.IncorrectRequestError("invalid replay request")
	}
	res, err := h.replay.Replay(c.Request.Context(), req)
	if err != nil {
		return httpdto.Response{}, err
	}
	return httpdto.NewSuccessResponse(res), nil
}
