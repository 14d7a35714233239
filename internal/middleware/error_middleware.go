package middleware

import (
	"context"
	"net/http"

	"awscqrs/internal/transport/httpdto"
	awscqrs_errors "awscqrs/pkg/errors"
	"awscqrs/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandlerFunc is an endpoint body run inside the error boundary.
type HandlerFunc func(ctx context.Context) (httpdto.Response, error)

// WithErrorHandling runs fn and turns any error into a bounded response:
// a CustomError keeps its code and message, anything else becomes a 500.
func WithErrorHandling(ctx context.Context, log *logger.Logger, fn HandlerFunc) httpdto.Response {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	resp, err := fn(ctx)
	if err == nil {
		return resp
	}
	return ErrorResponse(ctx, log, err)
}

// ErrorResponse logs err and maps it to its response.
func ErrorResponse(ctx context.Context, log *logger.Logger, err error) httpdto.Response {
	if ce, ok := awscqrs_errors.AsCustomError(err); ok {
		log.WarnCtx(ctx, "request rejected", zap.Int("status", ce.Code), zap.Error(err))
		return httpdto.NewErrorResponse(ce.Code, ce.Message)
	}
	log.ErrorCtx(ctx, "request failed", zap.Error(err))
	return httpdto.NewErrorResponse(http.StatusInternalServerError, err.Error())
}

// Handle adapts a boundary handler to gin. An empty success is a bare 200
// without a body; everything else is written as {"statusCode","body"}.
func Handle(log *logger.Logger, fn func(c *gin.Context) (httpdto.Response, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := WithErrorHandling(c.Request.Context(), log, func(context.Context) (httpdto.Response, error) {
			return fn(c)
		})
		if resp.IsEmpty() {
			c.Status(http.StatusOK)
			return
		}
		c.JSON(resp.StatusCode, resp)
	}
}

// ErrorHandler answers errors attached with c.Error by earlier middleware
// that aborted without writing.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		log := l
		if log == nil {
			log = logger.GetGlobalLogger()
		}
		resp := ErrorResponse(c.Request.Context(), log, c.Errors.Last().Err)
		c.JSON(resp.StatusCode, resp)
	}
}

// abort stops the chain with err; ErrorHandler writes the response.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
