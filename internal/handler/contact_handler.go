package handler

import (
	"strconv"

	"awscqrs/internal/domain/contact"
	"awscqrs/internal/services"
	"awscqrs/internal/transport/httpdto"
	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/gin-gonic/gin"
)

type ContactHandler struct {
	service *services.ContactService
}

func NewContactHandler(service *services.ContactService) *ContactHandler {
	return &ContactHandler{service: service}
}

func (h *ContactHandler) Get(c *gin.Context) (httpdto.Response, error) {
	claims, ok := services.ClaimsFromContext(c.Request.Context())
	if !ok {
		return httpdto.Response{}, awscqrs_errors.UnauthenticatedError("unauthorized")
	}
	ct, err := h.service.GetByID(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		return httpdto.Response{}, err
	}
	return httpdto.NewSuccessResponse(ct), nil
}

func (h *ContactHandler) List(c *gin.Context) (httpdto.Response, error) {
	claims, ok := services.ClaimsFromContext(c.Request.Context())
	if !ok {
		return httpdto.Response{}, awscqrs_errors.UnauthenticatedError("unauthorized")
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return httpdto.Response{}, awscqrs_errors.IncorrectRequestError("limit must be a positive integer")
		}
		limit = n
	}
	list, err := h.service.List(c.Request.Context(), claims, c.Query("owner"), limit)
	if err != nil {
		return httpdto.Response{}, err
	}
	return httpdto.NewSuccessResponse(httpdto.NewListResponse[contact.Contact](list)), nil
}
