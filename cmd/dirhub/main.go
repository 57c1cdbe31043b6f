package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"dirhub/pkg/audit"
	"dirhub/pkg/auth"
	"dirhub/pkg/config"
	"dirhub/pkg/kvstore"
	"dirhub/pkg/middleware"
	"dirhub/pkg/observability"
	"dirhub/pkg/rbac"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(logLevel(cfg.Log.Level), os.Stdout)

	store, err := kvstore.NewRedisStore(cfg.Redis)
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	tokens := auth.NewTokenManager(store)
	throttle := middleware.NewLoginThrottle(store, logger,
		cfg.Auth.LoginMaxFailures, cfg.Auth.LoginWindow, cfg.Auth.LoginLockTTL)
	authMW := middleware.NewAuthMiddleware(tokens, logger).WithThrottle(throttle)
	limiter := middleware.NewRateLimiter(store, logger, cfg.Auth.RateLimit, cfg.Auth.RateWindow)

	service := rbac.NewService(store, logger, cfg.RBAC.CacheTTL).WithMetrics(metrics)
	auditLog := audit.NewKVLogger(store, cfg.RBAC.AuditMaxEvents)
	handlers := rbac.NewHandlers(service, auditLog, logger)

	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(metrics))
	router.Use(authMW.Authenticate)
	router.Use(limiter.Limit)
	handlers.RegisterRoutes(router, rbac.NewMiddleware(service, logger))

	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, observability.NewHealthChecker(store, version))
	observability.RegisterMetricsEndpoint(opsMux, registry)

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	opsServer := &http.Server{
		Addr:    cfg.Server.OpsAddr,
		Handler: opsMux,
	}

	reconciler := rbac.NewReconciler(store, logger)
	if err := reconciler.Start(cfg.RBAC.ReconcileSchedule); err != nil {
		logger.WithError(err).Error("failed to start reconciler")
		os.Exit(1)
	}
	defer reconciler.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.Server.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", cfg.Server.OpsAddr).Info("ops server listening")
		if err := opsServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("api server shutdown failed")
		}
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("ops server shutdown failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func logLevel(level string) observability.LogLevel {
	switch level {
	case "debug":
		return observability.DebugLevel
	case "warn":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}
