// Command authd serves the session authority over HTTP: login, refresh and
// logout endpoints behind the authentication gate, plus Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	sessionAuth "github.com/MrEthical07/sessionAuth"
	"github.com/MrEthical07/sessionAuth/internal/config"
	"github.com/MrEthical07/sessionAuth/internal/logger"
	"github.com/MrEthical07/sessionAuth/internal/rate"
	promexport "github.com/MrEthical07/sessionAuth/metrics/export/prometheus"
	"github.com/MrEthical07/sessionAuth/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("authd stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	client, cleanup, err := openRedis(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	authority, err := sessionAuth.New().
		WithConfig(cfg.ToAuthConfig()).
		WithRedis(client).
		WithLogger(log).
		WithAuditSink(sessionAuth.NewZapSink(log)).
		Build()
	if err != nil {
		return fmt.Errorf("build authority: %w", err)
	}
	defer authority.Close()

	limiter := rate.New(client, rate.Config{Limit: cfg.RateLimit, Window: cfg.RateWindow()})

	router, err := newRouter(authority, limiter)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("authd listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRedis(cfg *config.Config, log *zap.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.RedisAddr
	var mr *miniredis.Miniredis
	if addr == "" {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		log.Warn("REDIS_ADDR not set, using in-process miniredis", zap.String("addr", addr))
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cleanup := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}
	return client, cleanup, nil
}

func newRouter(authority *sessionAuth.Authority, limiter *rate.Limiter) (http.Handler, error) {
	h := &handlers{authority: authority, limiter: limiter, log: authority.Logger().Named("http")}

	r := mux.NewRouter()
	r.Handle("/api/auth/login", h.throttle("login", middleware.Handle(h.login))).Methods(http.MethodPost)
	r.Handle("/api/auth/refresh", h.throttle("refresh", middleware.Handle(h.refresh))).Methods(http.MethodPost)
	r.Handle("/api/auth/logout", middleware.Handle(h.logout)).Methods(http.MethodPost)
	r.Handle("/api/auth/logout-all", middleware.Handle(h.logoutAll)).Methods(http.MethodPost)
	r.Handle("/api/public/health", middleware.Handle(h.health)).Methods(http.MethodGet)
	r.Handle("/api/me", middleware.RequirePrincipal(middleware.Handle(h.me))).Methods(http.MethodGet)
	r.Handle("/api/me/devices", middleware.RequirePrincipal(middleware.Handle(h.devices))).Methods(http.MethodGet)

	metrics, err := promexport.Handler(authority)
	if err != nil {
		return nil, fmt.Errorf("metrics handler: %w", err)
	}
	gated := middleware.Chain(r, middleware.Gate(authority))

	// /metrics is served outside the gate so scrapers need no token.
	root := http.NewServeMux()
	root.Handle("/metrics", metrics)
	root.Handle("/", gated)
	return root, nil
}
