package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"awscqrs/config"
	"awscqrs/internal/app"
	"awscqrs/internal/handler"
	"awscqrs/internal/middleware"
	"awscqrs/internal/server"
	"awscqrs/internal/services"
	"awscqrs/internal/websocket"
	"awscqrs/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := app.New(cfg, l)
	defer res.Close()

	if err := run(ctx, res); err != nil {
		l.Errorf("api stopped: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, res *app.Resources) error {
	cfg, l := res.Config(), res.Logger()
	g, gctx := errgroup.WithContext(ctx)

	store, err := res.EventStore(gctx)
	if err != nil {
		return err
	}
	contacts, err := res.ContactRepository()
	if err != nil {
		return err
	}
	captureHandler, err := res.CaptureHandler(gctx)
	if err != nil {
		return err
	}

	hub := websocket.NewHub()
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if err := res.StartLive(gctx, g, hub); err != nil {
		l.Warnf("live notifications disabled: %v", err)
	}

	// With the in-process transport nothing else can see the bus, so the
	// whole pipeline runs here.
	if cfg.Transport == config.TransportMemory {
		if _, err := res.StartProjectors(gctx, g, cfg.Subscriptions, false); err != nil {
			return err
		}
		if err := res.StartFeedRelay(gctx, g); err != nil {
			return err
		}
	}

	var contactCache services.ContactCache
	if cache := res.ContactCache(); cache != nil {
		contactCache = cache
	}
	var limiter middleware.CommandLimiter
	if rl := res.RateLimiter(); rl != nil {
		limiter = rl
	}

	verifier := services.NewTokenVerifier(cfg.JWTSecret)
	srv := server.New("api", cfg.AppPort, cfg.AppMode, l)
	srv.SetupAPIRoutes(server.APIHandlers{
		Health:    handler.NewHealthHandler(res.Checks()),
		Commands:  handler.NewCommandHandler(services.NewCommandService(store, nil, l)),
		Contacts:  handler.NewContactHandler(services.NewContactService(contacts, contactCache, l)),
		Admin:     handler.NewAdminHandler(services.NewReplayService(store, captureHandler, l)),
		WebSocket: websocket.NewHandler(verifier, hub, l),
	}, verifier, limiter)

	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}
