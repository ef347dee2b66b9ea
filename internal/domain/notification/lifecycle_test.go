package notification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/common"
)

func newStoredNotification(t *testing.T, store *memStore, status Status) *Notification {
	t.Helper()
	now := time.Now().UTC()
	n := &Notification{
		ID:        uuid.New().String(),
		UserID:    "user-1",
		Channel:   ChannelEmail,
		Recipient: "a@b.com",
		Subject:   "Welcome",
		Body:      "Hello",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(context.Background(), n))
	return n
}

func TestCanTransition(t *testing.T) {
	statuses := []Status{StatusPending, StatusSent, StatusFailed, StatusRead}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusSent}:   true,
		{StatusPending, StatusFailed}: true,
		{StatusSent, StatusRead}:      true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestLifecycleMarkSent(t *testing.T) {
	store := newMemStore()
	lc := NewLifecycle(store)
	n := newStoredNotification(t, store, StatusPending)

	require.NoError(t, lc.MarkSent(context.Background(), n, "prov-123", 1))

	assert.Equal(t, StatusSent, n.Status)
	assert.Equal(t, "prov-123", n.ProviderMessageID)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, 1, n.AttemptCount)

	changes, err := store.ListAudit(context.Background(), n.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, StatusPending, changes[0].FromStatus)
	assert.Equal(t, StatusSent, changes[0].ToStatus)
}

func TestLifecycleMarkFailed(t *testing.T) {
	store := newMemStore()
	lc := NewLifecycle(store)
	n := newStoredNotification(t, store, StatusPending)

	require.NoError(t, lc.MarkFailed(context.Background(), n, ErrorCategoryTerminal, "invalid recipient", 1))

	assert.Equal(t, StatusFailed, n.Status)
	assert.Equal(t, ErrorCategoryTerminal, n.ErrorCategory)
	assert.Equal(t, "invalid recipient", n.ErrorMessage)
	assert.Nil(t, n.SentAt)
}

func TestLifecycleInvalidTransitions(t *testing.T) {
	cases := []struct {
		name string
		from Status
		call func(lc *Lifecycle, n *Notification) error
	}{
		{"failed to sent", StatusFailed, func(lc *Lifecycle, n *Notification) error {
			return lc.MarkSent(context.Background(), n, "x", 1)
		}},
		{"read to failed", StatusRead, func(lc *Lifecycle, n *Notification) error {
			return lc.MarkFailed(context.Background(), n, ErrorCategoryInternal, "x", 1)
		}},
		{"pending to read", StatusPending, func(lc *Lifecycle, n *Notification) error {
			return lc.MarkRead(context.Background(), n)
		}},
		{"sent to failed", StatusSent, func(lc *Lifecycle, n *Notification) error {
			return lc.MarkFailed(context.Background(), n, ErrorCategoryInternal, "x", 1)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			lc := NewLifecycle(store)
			n := newStoredNotification(t, store, tc.from)

			err := tc.call(lc, n)

			var transition *common.InvalidTransitionError
			require.ErrorAs(t, err, &transition)

			// State is unchanged and nothing was audited.
			stored, getErr := store.GetByID(context.Background(), n.ID)
			require.NoError(t, getErr)
			assert.Equal(t, tc.from, stored.Status)
			assert.Zero(t, store.auditCount(n.ID))
		})
	}
}

func TestLifecycleMarkReadIdempotent(t *testing.T) {
	store := newMemStore()
	lc := NewLifecycle(store)
	n := newStoredNotification(t, store, StatusSent)

	require.NoError(t, lc.MarkRead(context.Background(), n))
	require.Equal(t, StatusRead, n.Status)
	require.NotNil(t, n.ReadAt)
	firstReadAt := *n.ReadAt
	require.Equal(t, 1, store.auditCount(n.ID))

	// Applying a second read receipt is a no-op: no error, no new audit
	// entry, timestamps untouched.
	require.NoError(t, lc.MarkRead(context.Background(), n))
	assert.Equal(t, StatusRead, n.Status)
	assert.Equal(t, firstReadAt, *n.ReadAt)
	assert.Equal(t, 1, store.auditCount(n.ID))
}

func TestLifecycleLostRaceToSameStatus(t *testing.T) {
	store := newMemStore()
	lc := NewLifecycle(store)
	n := newStoredNotification(t, store, StatusSent)

	// Caller holds a stale pending view while the store already says sent,
	// as happens when two workers race the same outcome.
	stale := *n
	stale.Status = StatusPending

	require.NoError(t, lc.MarkSent(context.Background(), &stale, "prov-1", 1))
	assert.Equal(t, StatusSent, stale.Status)
}

func TestLifecycleRecordAttempt(t *testing.T) {
	store := newMemStore()
	lc := NewLifecycle(store)
	n := newStoredNotification(t, store, StatusPending)

	require.NoError(t, lc.RecordAttempt(context.Background(), n, "attempt 1/3 failed", 1))

	changes, err := store.ListAudit(context.Background(), n.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, StatusPending, changes[0].FromStatus)
	assert.Equal(t, StatusPending, changes[0].ToStatus)
	assert.Equal(t, 1, changes[0].Attempt)

	// Recording an attempt never moves the status.
	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}
