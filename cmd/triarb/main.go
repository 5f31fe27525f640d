// Package main is the entry point for the triangular arbitrage engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	booksapp "github.com/dpfaria/triarb/business/books/app"
	controlapp "github.com/dpfaria/triarb/business/control/app"
	"github.com/dpfaria/triarb/business/control/infra/telegram"
	engineapp "github.com/dpfaria/triarb/business/engine/app"
	marketapp "github.com/dpfaria/triarb/business/market/app"
	"github.com/dpfaria/triarb/business/market/infra/binance"
	routingapp "github.com/dpfaria/triarb/business/routing/app"
	"github.com/dpfaria/triarb/internal/blacklist"
	"github.com/dpfaria/triarb/internal/config"
	"github.com/dpfaria/triarb/internal/health"
	"github.com/dpfaria/triarb/internal/logger"
	"github.com/dpfaria/triarb/internal/metrics"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("triarb %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var log logger.LoggerInterface
	if cfg.App.Environment == "development" {
		log = logger.NewText(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name)
	} else {
		log = logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name)
	}
	log.Info(ctx, "starting triangular arbitrage engine",
		"version", version,
		"environment", cfg.App.Environment,
		"dry_run", cfg.Engine.DryRun,
	)

	m := metrics.New(prometheus.DefaultRegisterer)

	var metricsSrv *metrics.Server
	if cfg.Telemetry.PrometheusEnabled {
		metricsSrv = metrics.NewServer(cfg.Telemetry.PrometheusPort)
		metricsSrv.Start()
		defer metricsSrv.Stop(context.Background())
	}

	// Persistent blacklist: a missing or corrupt file starts empty.
	bl := blacklist.Open(cfg.Blacklist.Path, log)

	gateway := binance.New(binance.Config{
		RESTURL:        cfg.Exchange.RESTURL,
		WebSocketURL:   cfg.Exchange.WebSocketURL,
		APIKey:         cfg.Exchange.APIKey,
		APISecret:      cfg.Exchange.APISecret,
		RequestTimeout: cfg.Exchange.RequestTimeout,
		RequestsPerMin: cfg.Exchange.RequestsPerMin,
	}, log)
	defer gateway.Close()

	catalog := marketapp.NewCatalog(gateway, bl, marketapp.CatalogConfig{
		FiatCurrencies:    cfg.Engine.FiatCurrencies,
		CurrencyBlacklist: cfg.Engine.CurrencyBlacklist,
	}, log)

	cache := booksapp.NewCache()

	// Operator channel: Telegram when configured, the log otherwise.
	var sender controlapp.Sender
	var tg *telegram.Client
	if cfg.Telegram.Enabled {
		tg = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			ChatID:      cfg.Telegram.ChatID,
			PollTimeout: cfg.Telegram.PollTimeout,
		}, log)
		sender = tg
	} else {
		sender = controlapp.NewLogSender(log)
	}
	notifier := controlapp.NewNotifier(sender, log)

	streams := booksapp.NewSupervisor(gateway, cache, bl, notifier, m, booksapp.SupervisorConfig{
		Depth:                cfg.Engine.OrderBookDepth,
		ReconnectBackoff:     cfg.Stream.ReconnectBackoff,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
	}, log)

	planner := routingapp.NewPlanner(catalog, bl, cfg.Engine.BaseCurrencies, log)

	simulator := engineapp.NewSimulator(cache, catalog,
		cfg.Engine.TakerFeeDecimal(), cfg.Engine.OrderBookDepth)

	executor := engineapp.NewExecutor(gateway, catalog, bl, notifier, engineapp.ExecutorConfig{
		SafetyMargin:      cfg.Engine.SafetyMarginDecimal(),
		AbsoluteMinimum:   cfg.Engine.AbsoluteMinimumDecimal(),
		OrderPollInterval: cfg.Engine.OrderPollInterval,
		OrderFillTimeout:  cfg.Engine.OrderFillTimeout,
	}, log)

	state := controlapp.NewState(&cfg.Engine)

	loop := engineapp.NewLoop(state, gateway, planner, streams, simulator, executor,
		notifier, m, engineapp.LoopConfig{
			SafetyMargin:    cfg.Engine.SafetyMarginDecimal(),
			AbsoluteMinimum: cfg.Engine.AbsoluteMinimumDecimal(),
			ScanInterval:    cfg.Engine.ScanInterval,
			WarmupDelay:     cfg.Engine.WarmupDelay,
			HitCooldown:     cfg.Engine.HitCooldown,
		}, log)

	supervisor := engineapp.NewSupervisor(loop, catalog, streams, cache, notifier, m,
		engineapp.SupervisorConfig{RestartCooldown: cfg.Supervisor.RestartCooldown}, log)

	router := controlapp.NewRouter(state, gateway, cache, bl, sender,
		cfg.Stream.HealthyAge, log)

	healthSrv := health.NewServer(cfg.Telemetry.HealthPort, version)
	healthSrv.RegisterCheck("books", func(ctx context.Context) (bool, string) {
		n := cache.Len()
		if n == 0 {
			return false, "no order books cached"
		}
		return true, fmt.Sprintf("%d books cached", n)
	})
	healthSrv.RegisterCheck("markets", func(ctx context.Context) (bool, string) {
		n := catalog.Len()
		if n == 0 {
			return false, "catalog not loaded"
		}
		return true, fmt.Sprintf("%d markets", n)
	})
	if err := healthSrv.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}
	defer healthSrv.Stop(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Run(gctx)
	})
	if tg != nil {
		g.Go(func() error {
			return tg.Listen(gctx, router.Handle)
		})
	}

	err = g.Wait()
	streams.CancelAll(context.Background())
	log.Info(context.Background(), "engine stopped")

	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
