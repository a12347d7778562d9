package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lifetrack/slawatch/internal/api"
	"github.com/lifetrack/slawatch/internal/cache"
	"github.com/lifetrack/slawatch/internal/config"
	"github.com/lifetrack/slawatch/internal/metrics"
	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/repo"
	"github.com/lifetrack/slawatch/internal/services"
	"github.com/lifetrack/slawatch/internal/utils"
	"github.com/lifetrack/slawatch/internal/watch"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting sla-watch",
		slog.String("address", cfg.Server.Address),
		slog.String("dispatch", cfg.Clients.Dispatch.BaseURL),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cacheProvider cache.Provider = cache.NewMemoryProvider()
	if cfg.Cache.Enabled {
		provider, err := cache.NewRedisProvider(ctx, cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("redis cache unavailable, keeping terminal timers in memory", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	dispatch := repo.NewDispatchClient(repo.DispatchOptions{
		BaseURL:        cfg.Clients.Dispatch.BaseURL,
		TimerPath:      cfg.Clients.Dispatch.TimerPath,
		HistoryPath:    cfg.Clients.Dispatch.HistoryPath,
		OccurrencePath: cfg.Clients.Dispatch.OccurrencePath,
		Timeout:        cfg.Clients.Dispatch.Timeout,
		Location:       cfg.Clients.Dispatch.Location(),
	})
	timers := repo.NewTerminalCache(dispatch, cacheProvider, cfg.Cache.TerminalTTL, logger)

	sources := watch.Sources{
		Timers:      timers,
		History:     dispatch,
		Occurrences: dispatch,
	}
	registry := watch.NewRegistry(ctx, func(key watch.Key, viewer models.Session) *watch.Session {
		return watch.NewSession(sources, watch.Options{
			OccurrenceID:    key.OccurrenceID,
			Session:         viewer,
			Live:            key.Live,
			TimerInterval:   cfg.Polling.TimerInterval,
			HistoryInterval: cfg.Polling.HistoryInterval,
			PhaseInterval:   cfg.Polling.PhaseInterval,
			Logger:          logger.With(slog.String("occurrence_id", key.OccurrenceID)),
		})
	})
	defer registry.Close()

	watchService := services.NewWatchService(logger, timers, registry, cfg.Clients.Dispatch.UserID, cfg.Polling.HistoryLive)

	server, err := api.NewServer(cfg.Server, watchService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	var httpServer *http.Server
	if cfg.Server.HTTPAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle("GET /ws/occurrences/{id}", api.NewFeedHandler(registry, api.FeedOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			DefaultUserID:  cfg.Clients.Dispatch.UserID,
			DefaultLive:    cfg.Polling.HistoryLive,
			Tolerance:      cfg.ViewGuard.Tolerance,
			AckTimeout:     cfg.ViewGuard.AckTimeout,
		}, logger))
		httpServer = &http.Server{
			Addr:        cfg.Server.HTTPAddress,
			Handler:     mux,
			ReadTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start()
	})
	if httpServer != nil {
		g.Go(func() error {
			logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		if httpServer != nil {
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("http server shutdown", slog.Any("error", err))
			}
		}
		// Closing the sessions ends open watch streams so GracefulStop can return.
		registry.Close()
		server.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
	}

	logger.Info("sla-watch stopped")
}
