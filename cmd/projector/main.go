package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"awscqrs/config"
	"awscqrs/internal/app"
	"awscqrs/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// The projector consumes broadcast subscriptions into their views.
func main() {
	subscriptions := flag.String("subscriptions", "", "comma separated subscriptions (default: SUBSCRIPTIONS)")
	strict := flag.Bool("strict", true, "fail when a subscription cannot be started")
	flag.Parse()

	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	names := cfg.Subscriptions
	if *subscriptions != "" {
		names = strings.Split(*subscriptions, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := app.New(cfg, l)
	defer res.Close()

	g, gctx := errgroup.WithContext(ctx)
	started, err := res.StartProjectors(gctx, g, names, *strict)
	if err == nil && started == 0 {
		err = errors.New("no subscription started")
	}
	if err != nil {
		l.Errorf("projector: %v", err)
		os.Exit(1)
	}
	l.Infof("projector running %d subscriptions on %s", started, cfg.Transport)

	if err := g.Wait(); err != nil {
		l.Errorf("projector stopped: %v", err)
		os.Exit(1)
	}
}
