package server

import (
	"awscqrs/internal/handler"
	"awscqrs/internal/middleware"
	"awscqrs/internal/services"
	"awscqrs/internal/transport/httpdto"
	"awscqrs/internal/websocket"

	"github.com/gin-gonic/gin"
)

type APIHandlers struct {
	Health    *handler.HealthHandler
	Commands  *handler.CommandHandler
	Contacts  *handler.ContactHandler
	Admin     *handler.AdminHandler
	WebSocket *websocket.Handler
}

type RelayHandlers struct {
	Health *handler.HealthHandler
	Feed   *handler.FeedHandler
}

func (s *Server) wrap(fn func(c *gin.Context) (httpdto.Response, error)) gin.HandlerFunc {
	return middleware.Handle(s.logger, fn)
}

func (s *Server) useCommon() {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))
}

// SetupAPIRoutes mounts the command, query and live endpoints. limiter may
// be nil, which disables command rate limiting.
func (s *Server) SetupAPIRoutes(h APIHandlers, verifier *services.TokenVerifier, limiter middleware.CommandLimiter) {
	s.useCommon()

	if h.Health != nil {
		s.engine.GET("/ping", s.wrap(h.Health.Ping))
		s.engine.GET("/health", s.wrap(h.Health.Health))
	}

	auth := middleware.AuthMiddleware(verifier)

	command := []gin.HandlerFunc{middleware.OptionalAuthMiddleware(verifier)}
	if limiter != nil {
		command = append(command, middleware.CommandRateLimitMiddleware(limiter))
	}
	s.engine.Any("/command", append(command, s.wrap(h.Commands.Submit))...)

	contacts := s.engine.Group("/contacts", auth)
	{
		contacts.GET("", s.wrap(h.Contacts.List))
		contacts.GET("/:id", s.wrap(h.Contacts.Get))
	}

	if h.Admin != nil {
		admin := s.engine.Group("/admin", auth, middleware.RequireGroup(services.AdminGroup))
		admin.POST("/replay", s.wrap(h.Admin.Replay))
	}

	if h.WebSocket != nil {
		s.engine.GET("/ws", h.WebSocket.Connect)
	}
}

// SetupRelayRoutes mounts the change-feed push endpoint.
func (s *Server) SetupRelayRoutes(h RelayHandlers) {
	s.useCommon()
	if h.Health != nil {
		s.engine.GET("/ping", s.wrap(h.Health.Ping))
		s.engine.GET("/health", s.wrap(h.Health.Health))
	}
	s.engine.POST("/feed", s.wrap(h.Feed.Receive))
}
