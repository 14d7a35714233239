package handler

import (
	"fmt"
	"io"

	"awscqrs/internal/changefeed"
	"awscqrs/internal/services"
	"awscqrs/internal/transport/httpdto"
	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/gin-gonic/gin"
)

// FeedHandler receives change batches pushed by a stream trigger. A non-2xx
// answer makes the pusher retry the whole batch.
type FeedHandler struct {
	capture services.ChangeHandler
}

func NewFeedHandler(capture services.ChangeHandler) *FeedHandler {
	return &FeedHandler{capture: capture}
}

func (h *FeedHandler) Receive(c *gin.Context) (httpdto.Response, error) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return httpdto.Response{}, awscqrs_errors.IncorrectRequestError("cannot read request body")
	}
	batch, err := changefeed.DecodeBatch(data)
	if err != nil {
		return httpdto.Response{}, awscqrs_errors.IncorrectRequestError(err.Error())
	}

	res, err := h.capture.HandleBatch(c.Request.Context(), batch)
	if err != nil {
		// Answered with 500 so the pusher sends the batch again.
		return httpdto.Response{}, fmt.Errorf("capture batch: %w", err)
	}
	return httpdto.NewSuccessResponse(gin.H{
		"published": res.Published,
		"skipped":   res.Skipped,
		"rejected":  len(res.Rejected),
	}), nil
}
