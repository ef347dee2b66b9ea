package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"herald/internal/domain/notification"
)

// NewClient creates a new asynq client connected to Redis.
func NewClient(redisAddr, password string, db int) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
}

// NewServer creates a new asynq server connected to Redis. concurrency caps
// how many notifications dispatch at once, acting as admission control
// against the downstream providers. retryDelay is the base of the
// exponential backoff curve applied between attempts.
func NewServer(redisAddr, password string, db int, concurrency int, retryDelay time.Duration) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"notifications": 10, // priority weight
				"default":       1,
			},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				// Exponential backoff: delay, 2*delay, 4*delay, ...
				return retryDelay * time.Duration(1<<uint(n-1))
			},
		},
	)
}

// EnqueueDispatch enqueues a dispatch task for the given notification.
// The task id is the notification id, so a second enqueue while one is
// pending or running is rejected by asynq, so attempts for a single
// notification are strictly serialized.
func EnqueueDispatch(client *asynq.Client, notificationID string, maxRetry int) error {
	task, err := notification.NewDispatchTask(notificationID)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	_, err = client.Enqueue(task,
		asynq.Queue("notifications"),
		asynq.TaskID(notificationID),
		asynq.MaxRetry(maxRetry),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// Already queued or in flight; nothing to do.
			return nil
		}
		return fmt.Errorf("enqueuing task: %w", err)
	}

	return nil
}
