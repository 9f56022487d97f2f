package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"helm-assistant/internal/adapter/api"
	"helm-assistant/internal/adapter/tui/chat"
	"helm-assistant/internal/infra/config"
	"helm-assistant/internal/infra/logger"
	"helm-assistant/internal/infra/tracer"
	"helm-assistant/internal/usecase"
	"helm-assistant/internal/usecase/eventbus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer setup: %w", err)
	}
	defer shutdownTracer(context.Background())

	client := api.NewClient(api.Options{
		BaseURL:           cfg.Server.BaseURL,
		Token:             cfg.Server.Token,
		Timeout:           cfg.RequestTimeout(),
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
	}, log)

	svc := api.NewBreakerService(client, api.BreakerConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		Timeout:     cfg.BreakerTimeout(),
		Interval:    cfg.BreakerInterval(),
	}, log)

	bus := eventbus.New(log)
	defer bus.Close()

	catalog := usecase.NewReferenceCatalog(client, usecase.CatalogConfig{
		TTL:              cfg.CatalogTTL(),
		RefreshPerMinute: cfg.Catalog.RefreshPerMinute,
	}, bus, log)
	if err := catalog.StartSchedule(ctx, cfg.Catalog.RefreshSchedule); err != nil {
		return err
	}
	defer catalog.Stop()

	session := usecase.NewSessionController(svc, client, catalog, bus, log)

	return chat.Run(ctx, chat.Deps{
		Session: session,
		Catalog: catalog,
		Logger:  log,
	}, bus, log)
}
