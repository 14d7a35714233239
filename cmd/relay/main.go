package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"awscqrs/config"
	"awscqrs/internal/app"
	"awscqrs/internal/handler"
	"awscqrs/internal/server"
	"awscqrs/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// The relay moves the event log's change feed onto the broadcast channel.
// Postgres feeds are polled; DynamoDB streams push to POST /feed.
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
		l.Errorf("relay stopped: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, res *app.Resources) error {
	cfg, l := res.Config(), res.Logger()
	g, gctx := errgroup.WithContext(ctx)

	err := res.StartFeedRelay(gctx, g)
	switch {
	case errors.Is(err, app.ErrPushedFeed):
		l.Infof("event store %s pushes its feed, polling disabled", cfg.Store)
	case err != nil:
		return err
	}

	captureHandler, err := res.CaptureHandler(gctx)
	if err != nil {
		return err
	}
	srv := server.New("relay", cfg.RelayPort, cfg.AppMode, l)
	srv.SetupRelayRoutes(server.RelayHandlers{
		Health: handler.NewHealthHandler(res.Checks()),
		Feed:   handler.NewFeedHandler(captureHandler),
	})

	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}
