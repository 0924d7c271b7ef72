package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/graphrag-dialogue/internal/adapters/http"
	"github.com/kirillkom/graphrag-dialogue/internal/bootstrap"
	"github.com/kirillkom/graphrag-dialogue/internal/config"
	"github.com/kirillkom/graphrag-dialogue/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("graphrag-dialogue-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	// Load whatever flow graph is already persisted. A missing or broken
	// graph is not fatal: chat turns report the backend as unavailable
	// until the first successful publish.
	if err := app.FlowCache.Reload(ctx, app.FlowCache.NextVersion()); err != nil {
		logger.Warn("initial flow load failed", "error", err)
	}

	go func() {
		err := app.Bus.SubscribeFlowUpdated(ctx, func(ctx context.Context, version int64) error {
			return app.FlowCache.Reload(ctx, version)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("flow update subscription ended", "error", err)
		}
	}()

	router := httpadapter.NewRouter(app.Conversations, app.Search, app.FlowAdmin, httpadapter.RouterConfig{
		RateLimitRPS:     cfg.APIRateLimitRPS,
		RateLimitBurst:   cfg.APIRateLimitBurst,
		MaxInFlight:      cfg.APIMaxInFlight,
		BackpressureWait: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
	}).
		WithMetrics(app.Metrics.Handler(), app.Metrics.Middleware).
		WithHealthPinger("redis", app.RedisPing).
		WithHealthPinger("neo4j", app.GraphPing)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
