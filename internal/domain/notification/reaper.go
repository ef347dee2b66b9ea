package notification

import (
	"context"
	"log/slog"
	"time"
)

// ReaperConfig holds configuration for the stale dispatch reaper.
type ReaperConfig struct {
	// Interval is how often the reaper scans for stale notifications.
	Interval time.Duration

	// StaleThreshold is how long a notification can stay in pending
	// before the reaper considers it stuck and re-enqueues it.
	StaleThreshold time.Duration

	// BatchSize is the maximum number of stale records to recover per cycle.
	BatchSize int
}

// Reaper periodically scans the store for notifications stuck in pending and
// re-enqueues their dispatch. The store is the source of truth; the reaper
// reconciles it with the queue on a timer, so a worker crash or a wiped
// Redis never strands a notification.
//
// Re-enqueueing is safe: dispatch tasks are unique per notification id and
// the dispatcher skips records that already reached a terminal status.
type Reaper struct {
	store    Store
	enqueuer Enqueuer
	config   ReaperConfig
}

// NewReaper creates a new stale dispatch reaper.
func NewReaper(store Store, enqueuer Enqueuer, cfg ReaperConfig) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	return &Reaper{
		store:    store,
		enqueuer: enqueuer,
		config:   cfg,
	}
}

// Run starts the reaper loop. It blocks until the context is cancelled.
// Should be called in a goroutine.
func (r *Reaper) Run(ctx context.Context) {
	slog.Info("reaper started",
		"interval", r.config.Interval,
		"stale_threshold", r.config.StaleThreshold,
		"batch_size", r.config.BatchSize,
	)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reaper stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep performs one reaper cycle: find stale pending records and re-enqueue them.
func (r *Reaper) sweep(ctx context.Context) {
	olderThan := time.Now().Add(-r.config.StaleThreshold)

	stale, err := r.store.ListStalePending(ctx, olderThan, r.config.BatchSize)
	if err != nil {
		slog.Error("reaper: failed to list stale notifications", "error", err)
		return
	}

	if len(stale) == 0 {
		return
	}

	slog.Warn("reaper: found stale notifications", "count", len(stale))

	recovered := 0
	for _, n := range stale {
		if err := r.enqueuer.EnqueueDispatch(n.ID); err != nil {
			slog.Error("reaper: failed to re-enqueue dispatch",
				"id", n.ID,
				"error", err,
			)
			continue
		}

		recovered++
		slog.Info("reaper: recovered stale notification",
			"id", n.ID,
			"age", time.Since(n.UpdatedAt).Round(time.Second),
		)
	}

	if recovered > 0 {
		slog.Info("reaper: sweep complete", "recovered", recovered, "total_stale", len(stale))
	}
}
