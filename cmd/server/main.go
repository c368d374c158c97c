package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
	"github.com/Larin-Sergei/telegram-notify-bot/common/otel"
	"github.com/Larin-Sergei/telegram-notify-bot/core/config"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/http/handler/webhook"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/http/middleware"
	httprouter "github.com/Larin-Sergei/telegram-notify-bot/internal/http/router"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/queue"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, config.ServiceTypeServer)
	if err != nil {
		// Can't use slog yet, OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "notifier webhook server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	producer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, slog.Default())
	defer producer.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg, producer),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, producer queue.Producer) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span, Recovery catches panics, Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, producer, httprouter.RouterConfig{
		Webhook: webhook.Config{
			Secret:      cfg.GitLab.WebhookSecret,
			ProjectID:   cfg.GitLab.ProjectID,
			TraceHeader: cfg.Pipeline.TraceHeaderName,
		},
	})

	return router
}

const banner = `
 _   _  ___ _____ ___ _____ ___ _____ ____    ____  _____ ______     _______ ____
| \ | |/ _ \_   _|_ _|  ___|_ _| ____|  _ \  / ___|| ____|  _ \ \   / / ____|  _ \
|  \| | | | || |  | || |_   | ||  _| | |_) | \___ \|  _| | |_) \ \ / /|  _| | |_) |
| |\  | |_| || |  | ||  _|  | || |___|  _ <   ___) | |___|  _ < \ V / | |___|  _ <
|_| \_|\___/ |_| |___|_|   |___|_____|_| \_\ |____/|_____|_| \_\ \_/  |_____|_| \_\
`
