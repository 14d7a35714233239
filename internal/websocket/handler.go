package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"awscqrs/internal/services"
	awscqrs_errors "awscqrs/pkg/errors"
	"awscqrs/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	verifier *services.TokenVerifier
	hub      *Hub
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewHandler(verifier *services.TokenVerifier, hub *Hub, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Handler{
		verifier: verifier,
		hub:      hub,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades GET /ws. Browsers cannot set headers on the handshake, so
// the token may also come as ?token=.
func (h *Handler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearer(c.GetHeader("Authorization"))
	}
	claims, err := h.verifier.Parse(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"statusCode": http.StatusUnauthorized, "body": "unauthorized"})
		return
	}
	owner, ok := ResolveOwner(claims, c.Query("owner"))
	if !ok {
		ce := awscqrs_errors.ForbiddenError("cannot watch events of another owner")
		c.JSON(ce.Code, gin.H{"statusCode": ce.Code, "body": ce.Message})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WarnCtx(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, claims.UserID(), owner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	go client.WriteLoop(ctx)

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
	}

	h.hub.Unregister(client)
}

func bearer(value string) string {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
