package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/economy/internal/config"
	"github.com/congo-pay/economy/internal/economy"
	"github.com/congo-pay/economy/internal/events"
	"github.com/congo-pay/economy/internal/infra"
	"github.com/congo-pay/economy/internal/logging"
	"github.com/congo-pay/economy/internal/observability"
	"github.com/congo-pay/economy/internal/routes"
	"github.com/congo-pay/economy/internal/server"
	"github.com/congo-pay/economy/internal/store"
	"github.com/congo-pay/economy/internal/wallet"
)

// gateway is a balance store that can also report its health.
type gateway interface {
	store.Gateway
	store.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)

	ctx := context.Background()

	gw, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	bus := events.NewBus(logger)
	bus.Subscribe(events.LogSink(logger))
	if cfg.NATSURL != "" {
		nc, err := infra.NewNATSConn(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Error("connect nats", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("drain nats", "error", err)
			}
		}()
		bus.Subscribe(events.NATSSink(nc, cfg.NATSSubjectPrefix, logger))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	wallets, err := wallet.NewRegistry(cfg.WalletKinds...)
	if err != nil {
		logger.Error("register wallets", "error", err)
		os.Exit(1)
	}

	svc := economy.New(gw, wallets, economy.Options{
		AllowNegative:     cfg.AllowNegativeBalance,
		FlushOnCheckpoint: cfg.SaveOnCheckpoint,
		FlushTimeout:      cfg.FlushTimeout,
		Bus:               bus,
		Logger:            logger,
		Metrics:           metrics,
	})
	svc.StartFlusher(cfg.SaveQueueInterval)

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		Store:    gw,
		Cache:    cache,
		Logger:   logger,
		Economy:  svc,
		Gatherer: reg,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		exitCode = 1
	}

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.FinalFlushTimeout)
	defer cancelFlush()
	if err := svc.Shutdown(flushCtx); err != nil {
		logger.Warn("final flush incomplete", "error", err)
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	logger.Info("server exited cleanly")
}

func openStore(ctx context.Context, cfg config.Config) (gateway, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	case config.DriverSQLite:
		db, err := infra.NewSQLiteDB(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		lite := store.NewSQLite(db)
		if err := lite.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return lite, func() {
			if err := db.Close(); err != nil {
				slog.Warn("close sqlite", "error", err)
			}
		}, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}
