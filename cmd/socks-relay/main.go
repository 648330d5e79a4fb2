package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"socks-relay/internal/application"
	"socks-relay/internal/config"
	"socks-relay/internal/infrastructure/epoll"
	"socks-relay/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	log := logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("Initializing SOCKS5 Proxy...")

	eventLoop, err := epoll.New(log)
	if err != nil {
		log.Error("Failed to create event loop", "error", err)
		os.Exit(1)
	}
	defer eventLoop.Close()

	proxy, err := application.NewProxyService(eventLoop, log, logger.NewEventSink(log), cfg.Listen(), application.Options{
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		ConnectTimeout:   cfg.Server.ConnectTimeout,
	})
	if err != nil {
		log.Error("Failed to create proxy service", "error", err)
		os.Exit(1)
	}

	log.Info("Proxy listening", "addr", proxy.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(proxy.Start)
	g.Go(func() error {
		<-gctx.Done()
		eventLoop.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Proxy stopped unexpectedly", "error", err)
		os.Exit(1)
	}
	log.Info("Proxy stopped")
}
