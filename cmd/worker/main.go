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

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Larin-Sergei/telegram-notify-bot/common/id"
	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
	"github.com/Larin-Sergei/telegram-notify-bot/common/otel"
	"github.com/Larin-Sergei/telegram-notify-bot/core/config"
	"github.com/Larin-Sergei/telegram-notify-bot/core/db"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/account"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/autoack"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/bot"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/conversation"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/notify"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/queue"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/reconcile"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/scheduler"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/tracker"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel, config.ServiceTypeWorker)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "notifier worker starting",
		"env", cfg.Env,
		"project_id", cfg.GitLab.ProjectID,
		"reconcile_interval", cfg.Reconcile.Interval)

	// Different node id than the server.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	stores := store.NewStores(database.Queries())
	txRunner := store.NewTxRunner(database)

	gitlabClient, err := tracker.NewGitLab(tracker.GitLabConfig{
		BaseURL: cfg.GitLab.BaseURL,
		Token:   cfg.GitLab.Token,
		Timeout: cfg.NetworkTimeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create gitlab client", "error", err)
		os.Exit(1)
	}

	telegram := chat.NewTelegram(&http.Client{}, chat.TelegramConfig{
		BaseURL:  cfg.Telegram.APIURL,
		Token:    cfg.Telegram.Token,
		Timeout:  cfg.NetworkTimeout,
		SendRate: cfg.Telegram.SendRate,
	})

	fanout := notify.NewFanout(stores.Subscriptions(), stores.Accounts(), telegram)

	reconciler := reconcile.New(stores.TrackedIssues(), gitlabClient, fanout, reconcile.Config{
		Concurrency: cfg.Reconcile.Concurrency,
		ReviewLabel: cfg.GitLab.ReviewLabel,
		MaxFileSize: cfg.Intake.MaxFileSize,
	})

	monitor := autoack.New(stores.TrackedIssues(), fanout, autoack.Config{
		Cutoff: cfg.Reconcile.AutoAckCutoff,
	})

	engine := conversation.New(conversation.Dependencies{
		Chat:          telegram,
		Tracker:       gitlabClient,
		Accounts:      account.NewResolver(stores.Accounts(), gitlabClient),
		Issues:        stores.TrackedIssues(),
		Subscriptions: stores.Subscriptions(),
		Tx:            txRunner,
	}, conversation.Config{
		ProjectID:   cfg.GitLab.ProjectID,
		MaxFiles:    cfg.Intake.MaxFiles,
		MaxFileSize: cfg.Intake.MaxFileSize,
		GroupChatID: cfg.Telegram.GroupChatID,
		ReworkLabel: cfg.GitLab.ReworkLabel,
	})

	poller := bot.NewPoller(telegram, engine, bot.Config{
		PollTimeout:  cfg.Telegram.PollTimeout,
		AlbumLatency: cfg.Intake.AlbumLatency,
	})

	reconcileJob := scheduler.NewPeriodic("reconcile", cfg.Reconcile.Interval, reconciler.Tick)
	autoAckJob := scheduler.NewPeriodic("autoack", cfg.Reconcile.AutoAckInterval, func(ctx context.Context) error {
		_, err := monitor.Sweep(ctx)
		return err
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := poller.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		reconcileJob.Run(gctx)
		return nil
	})
	g.Go(func() error {
		autoAckJob.Run(gctx)
		return nil
	})

	// Webhook-driven reconciles are optional; the periodic tick covers
	// every tracked issue on its own.
	var redisClient *redis.Client
	if cfg.Pipeline.Enabled() {
		redisClient, err = startStreamWorker(gctx, g, cfg, reconciler)
		if err != nil {
			slog.WarnContext(ctx, "webhook stream disabled", "error", err)
		} else {
			defer redisClient.Close()
		}
	}

	slog.InfoContext(ctx, "worker initialized and running")

	<-gctx.Done()
	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(shutdownCtx, "shutdown timeout exceeded")
	case err := <-done:
		if err != nil {
			slog.ErrorContext(shutdownCtx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "worker shutdown complete")
}

func startStreamWorker(ctx context.Context, g *errgroup.Group, cfg config.Config, reconciler *reconcile.Reconciler) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	stream, err := queue.NewRedisStream(ctx, redisClient, queue.StreamConfig{
		Stream:     cfg.Pipeline.RedisStream,
		Group:      cfg.Pipeline.RedisGroup,
		Consumer:   cfg.Pipeline.RedisConsumer,
		DLQStream:  cfg.Pipeline.RedisDLQStream,
		BatchSize:  10,
		Block:      5 * time.Second,
		MinIdle:    5 * time.Minute,
		RetryDelay: time.Second,
	})
	if err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("creating stream consumer: %w", err)
	}

	w := worker.New(stream, reconciler, worker.Config{MaxAttempts: 3})
	reclaimJob := scheduler.NewPeriodic("reclaim", time.Minute, w.Reclaim)

	g.Go(func() error {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		reclaimJob.Run(ctx)
		return nil
	})

	return redisClient, nil
}

const banner = `
 _   _  ___ _____ ___ _____ ___ _____ ____   __        _____  ____  _  _______ ____
| \ | |/ _ \_   _|_ _|  ___|_ _| ____|  _ \  \ \      / / _ \|  _ \| |/ / ____|  _ \
|  \| | | | || |  | || |_   | ||  _| | |_) |  \ \ /\ / / | | | |_) | ' /|  _| | |_) |
| |\  | |_| || |  | ||  _|  | || |___|  _ <    \ V  V /| |_| |  _ <| . \| |___|  _ <
|_| \_|\___/ |_| |___|_|   |___|_____|_| \_\    \_/\_/  \___/|_| \_\_|\_\_____|_| \_\
`
