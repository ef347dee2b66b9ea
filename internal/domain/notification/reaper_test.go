package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaperSweepRecoversStalePending(t *testing.T) {
	store := newMemStore()
	enqueuer := &fakeEnqueuer{}

	stale := newStoredNotification(t, store, StatusPending)
	// Age the record past the threshold.
	store.mu.Lock()
	store.notifications[stale.ID].UpdatedAt = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	fresh := newStoredNotification(t, store, StatusPending)
	sent := newStoredNotification(t, store, StatusSent)

	r := NewReaper(store, enqueuer, ReaperConfig{
		Interval:       time.Minute,
		StaleThreshold: 10 * time.Minute,
		BatchSize:      50,
	})
	r.sweep(context.Background())

	require.Equal(t, []string{stale.ID}, enqueuer.ids)
	assert.NotContains(t, enqueuer.ids, fresh.ID)
	assert.NotContains(t, enqueuer.ids, sent.ID)
}

func TestReaperDefaults(t *testing.T) {
	r := NewReaper(newMemStore(), &fakeEnqueuer{}, ReaperConfig{})

	assert.Equal(t, 5*time.Minute, r.config.Interval)
	assert.Equal(t, 10*time.Minute, r.config.StaleThreshold)
	assert.Equal(t, 50, r.config.BatchSize)
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	r := NewReaper(newMemStore(), &fakeEnqueuer{}, ReaperConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on context cancellation")
	}
}
