package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"herald/internal/config"
	"herald/internal/domain/notification"
	"herald/internal/infra/email"
	"herald/internal/infra/push"
	"herald/internal/infra/queue"
	"herald/internal/infra/sms"
	"herald/internal/infra/store"
)

// queueEnqueuer adapts the asynq client to the notification.Enqueuer interface.
// Used by the reaper to re-enqueue stale dispatches.
type queueEnqueuer struct {
	client   *asynq.Client
	maxRetry int
}

func (q *queueEnqueuer) EnqueueDispatch(notificationID string) error {
	return queue.EnqueueDispatch(q.client, notificationID, q.maxRetry)
}

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("worker configuration loaded")

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	sendTimeout := time.Duration(cfg.Dispatch.SendTimeoutSec) * time.Second

	// Delivery Adapters (one per channel)
	emailProvider := email.NewResendProvider(
		cfg.Email.APIKey,
		cfg.Email.FromAddress,
		cfg.Email.FromName,
		sendTimeout,
	)
	smsProvider := sms.NewTwilioProvider(
		cfg.SMS.AccountSID,
		cfg.SMS.AuthToken,
		cfg.SMS.FromNumber,
		sendTimeout,
	)
	pushProvider := push.NewFCMProvider(
		cfg.Push.ProjectID,
		cfg.Push.AccessToken,
		sendTimeout,
	)

	// Supabase Store
	notifStore, err := store.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
	if err != nil {
		slog.Error("failed to initialize supabase store", "error", err)
		os.Exit(1)
	}
	slog.Info("supabase store initialized")

	// Lifecycle + Dispatcher
	lifecycle := notification.NewLifecycle(notifStore)
	dispatcher := notification.NewDispatcher(notifStore, lifecycle, sendTimeout,
		emailProvider, smsProvider, pushProvider)

	// Asynq Client (for reaper re-enqueuing)
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()

	enqueuer := &queueEnqueuer{
		client:   asynqClient,
		maxRetry: cfg.Dispatch.MaxAttempts - 1,
	}

	// ==========================================
	// Asynq Server (task processing)
	// ==========================================

	asynqServer := queue.NewServer(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Dispatch.Concurrency,
		time.Duration(cfg.Dispatch.RetryDelaySec)*time.Second,
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(notification.TaskTypeDispatch, func(ctx context.Context, task *asynq.Task) error {
		payload, err := notification.ParseDispatchPayload(task.Payload())
		if err != nil {
			return err
		}

		// The retry count is how many attempts already failed; both numbers
		// feed the dispatcher as plain data so the policy stays testable.
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		return dispatcher.Dispatch(ctx, payload.NotificationID, retried+1, maxRetry+1)
	})

	// Start the asynq worker in a goroutine
	go func() {
		slog.Info("worker starting",
			"concurrency", cfg.Dispatch.Concurrency,
			"max_attempts", cfg.Dispatch.MaxAttempts,
			"redis", cfg.Redis.Address,
		)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Stale Dispatch Reaper
	// ==========================================

	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	defer reaperCancel()

	reaper := notification.NewReaper(notifStore, enqueuer, notification.ReaperConfig{
		Interval:       time.Duration(cfg.Reaper.IntervalSec) * time.Second,
		StaleThreshold: time.Duration(cfg.Reaper.StaleThresholdSec) * time.Second,
		BatchSize:      cfg.Reaper.BatchSize,
	})

	go reaper.Run(reaperCtx)

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	reaperCancel() // Stop the reaper first
	asynqServer.Shutdown()
	slog.Info("worker exited gracefully")
}
