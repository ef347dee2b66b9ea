package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"herald/internal/common"
)

// allowedTransitions is the closed transition table of the notification
// state machine. Anything not listed here is rejected.
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusSent, StatusFailed},
	StatusSent:    {StatusRead},
}

// CanTransition reports whether from -> to is a permitted status change.
func CanTransition(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Lifecycle owns the notification status state machine. Every transition is
// committed atomically with one appended audit entry; disallowed transitions
// leave the record untouched.
type Lifecycle struct {
	store Store
}

// NewLifecycle creates a new lifecycle manager.
func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// MarkSent transitions pending -> sent, recording the provider message ID
// and the send timestamp.
func (l *Lifecycle) MarkSent(ctx context.Context, n *Notification, providerMessageID string, attempt int) error {
	now := time.Now().UTC()
	updated := *n
	updated.Status = StatusSent
	updated.ProviderMessageID = providerMessageID
	updated.SentAt = &now
	updated.AttemptCount = attempt
	updated.ErrorCategory = ""
	updated.ErrorMessage = ""

	reason := fmt.Sprintf("provider accepted message %s", providerMessageID)
	if err := l.apply(ctx, n, &updated, reason, attempt); err != nil {
		return err
	}
	return nil
}

// MarkFailed transitions pending -> failed, recording the categorized error.
func (l *Lifecycle) MarkFailed(ctx context.Context, n *Notification, category, errMsg string, attempt int) error {
	updated := *n
	updated.Status = StatusFailed
	updated.ErrorCategory = category
	updated.ErrorMessage = errMsg
	updated.AttemptCount = attempt

	reason := fmt.Sprintf("%s: %s", category, errMsg)
	return l.apply(ctx, n, &updated, reason, attempt)
}

// MarkRead transitions sent -> read in response to an external read receipt.
// Applying a read receipt to an already-read notification is an idempotent
// no-op: state and timestamps are left unchanged and no error is returned.
func (l *Lifecycle) MarkRead(ctx context.Context, n *Notification) error {
	if n.Status == StatusRead {
		return nil
	}

	now := time.Now().UTC()
	updated := *n
	updated.Status = StatusRead
	updated.ReadAt = &now

	return l.apply(ctx, n, &updated, "read receipt received", n.AttemptCount)
}

// RecordAttempt appends an audit entry for a delivery attempt that did not
// change the status (a transient failure that will be retried).
func (l *Lifecycle) RecordAttempt(ctx context.Context, n *Notification, reason string, attempt int) error {
	change := &StatusChange{
		NotificationID: n.ID,
		FromStatus:     n.Status,
		ToStatus:       n.Status,
		Reason:         reason,
		Attempt:        attempt,
		CreatedAt:      time.Now().UTC(),
	}
	return l.store.AppendAudit(ctx, change)
}

// apply validates the transition against the table and commits it together
// with its audit entry. A lost compare-and-set race is resolved by refetching:
// if another writer already moved the record to the same target status the
// call degrades to a no-op, otherwise it is an invalid transition.
func (l *Lifecycle) apply(ctx context.Context, current, updated *Notification, reason string, attempt int) error {
	if !CanTransition(current.Status, updated.Status) {
		return common.NewInvalidTransitionError(string(current.Status), string(updated.Status))
	}

	updated.UpdatedAt = time.Now().UTC()
	change := &StatusChange{
		NotificationID: current.ID,
		FromStatus:     current.Status,
		ToStatus:       updated.Status,
		Reason:         reason,
		Attempt:        attempt,
		CreatedAt:      updated.UpdatedAt,
	}

	ok, err := l.store.ApplyTransition(ctx, updated, change)
	if err != nil {
		return fmt.Errorf("applying transition %s -> %s: %w", current.Status, updated.Status, err)
	}
	if !ok {
		fresh, err := l.store.GetByID(ctx, current.ID)
		if err != nil || fresh == nil {
			return common.NewInvalidTransitionError(string(current.Status), string(updated.Status))
		}
		if fresh.Status == updated.Status {
			slog.Info("transition already applied by concurrent writer",
				"id", current.ID,
				"status", updated.Status,
			)
			*current = *fresh
			return nil
		}
		return common.NewInvalidTransitionError(string(fresh.Status), string(updated.Status))
	}

	*current = *updated
	return nil
}
