package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/common"
)

func newDispatcher(store *memStore, providers ...Provider) *Dispatcher {
	return NewDispatcher(store, NewLifecycle(store), time.Second, providers...)
}

func TestDispatchSuccess(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{channel: ChannelEmail}
	d := newDispatcher(store, provider)
	n := newStoredNotification(t, store, StatusPending)

	require.NoError(t, d.Dispatch(context.Background(), n.ID, 1, 3))

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, stored.Status)
	assert.Equal(t, "msg-1", stored.ProviderMessageID)
	assert.NotNil(t, stored.SentAt)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, n.ID, provider.lastMsg.CorrelationID)
	assert.Equal(t, 1, store.auditCount(n.ID))
}

func TestDispatchTransientFailuresThenSuccess(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{
		channel: ChannelEmail,
		errs: []error{
			common.NewProviderTransientError("resend", "throttled"),
			common.NewProviderTransientError("resend", "timeout"),
			nil,
		},
	}
	d := newDispatcher(store, provider)
	n := newStoredNotification(t, store, StatusPending)

	// Attempts 1 and 2 fail transiently: the dispatcher records the attempt
	// and hands the error back for rescheduling.
	require.Error(t, d.Dispatch(context.Background(), n.ID, 1, 3))
	require.Error(t, d.Dispatch(context.Background(), n.ID, 2, 3))

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status, "no terminal status while retry budget remains")

	// Attempt 3 succeeds.
	require.NoError(t, d.Dispatch(context.Background(), n.ID, 3, 3))

	stored, err = store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, stored.Status)
	assert.Equal(t, 3, stored.AttemptCount)
	assert.Equal(t, 3, store.auditCount(n.ID), "two attempt records plus one transition")
}

func TestDispatchRetryBudgetExhausted(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{
		channel: ChannelEmail,
		errs: []error{
			common.NewProviderTransientError("resend", "throttled"),
		},
	}
	d := newDispatcher(store, provider)
	n := newStoredNotification(t, store, StatusPending)

	// Last allowed attempt fails transiently: finalize instead of retrying.
	require.NoError(t, d.Dispatch(context.Background(), n.ID, 3, 3))

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, ErrorCategoryTransient, stored.ErrorCategory)
	assert.Contains(t, stored.ErrorMessage, "retry budget exhausted")
}

func TestDispatchTerminalFailureNoRetry(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{
		channel: ChannelPush,
		errs: []error{
			common.NewProviderTerminalError("fcm", "invalid device token"),
		},
	}
	d := newDispatcher(store, provider)

	now := time.Now().UTC()
	n := &Notification{
		ID:        "push-1",
		UserID:    "user-1",
		Channel:   ChannelPush,
		Recipient: "dQw4w9WgXcQ:APA91bHun4MxP5egoKMwt2KZFBaFUH",
		Body:      "You have a new message",
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(context.Background(), n))

	// First attempt hits a terminal error: failed immediately, no reschedule.
	require.NoError(t, d.Dispatch(context.Background(), n.ID, 1, 3))

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, ErrorCategoryTerminal, stored.ErrorCategory)
	assert.Contains(t, stored.ErrorMessage, "invalid device token")
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, 1, store.auditCount(n.ID))
}

func TestDispatchSkipsFinalizedRecord(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{channel: ChannelEmail}
	d := newDispatcher(store, provider)
	n := newStoredNotification(t, store, StatusSent)

	require.NoError(t, d.Dispatch(context.Background(), n.ID, 1, 3))
	assert.Zero(t, provider.calls, "finalized records are never sent again")
}

func TestDispatchHonorsCancellationBeforeSend(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{channel: ChannelEmail}
	d := newDispatcher(store, provider)
	n := newStoredNotification(t, store, StatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Dispatch(ctx, n.ID, 1, 3)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, provider.calls)

	stored, getErr := store.GetByID(context.Background(), n.ID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestDispatchRecordsOutcomeAfterCancellationMidSend(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	// The caller's context dies while the provider call is in flight.
	provider := &fakeProvider{channel: ChannelEmail, onSend: cancel}
	d := newDispatcher(store, provider)
	n := newStoredNotification(t, store, StatusPending)

	require.NoError(t, d.Dispatch(ctx, n.ID, 1, 3))

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, stored.Status, "a delivered send must be recorded even during shutdown")
	assert.Equal(t, "msg-1", stored.ProviderMessageID)
}

func TestDispatchFinalizesFailureAfterCancellationMidSend(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	provider := &fakeProvider{
		channel: ChannelEmail,
		errs:    []error{common.NewProviderTerminalError("resend", "suppressed address")},
		onSend:  cancel,
	}
	d := newDispatcher(store, provider)
	n := newStoredNotification(t, store, StatusPending)

	require.NoError(t, d.Dispatch(ctx, n.ID, 1, 3))

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, ErrorCategoryTerminal, stored.ErrorCategory)
}

func TestDispatchMissingProvider(t *testing.T) {
	store := newMemStore()
	d := newDispatcher(store) // no providers registered
	n := newStoredNotification(t, store, StatusPending)

	require.NoError(t, d.Dispatch(context.Background(), n.ID, 1, 3))

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, ErrorCategoryInternal, stored.ErrorCategory)
}

func TestDispatchUnknownIDIsDropped(t *testing.T) {
	store := newMemStore()
	d := newDispatcher(store, &fakeProvider{channel: ChannelEmail})

	assert.NoError(t, d.Dispatch(context.Background(), "no-such-id", 1, 3))
}
