package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"herald/internal/common"
)

// ErrorCategoryTransient and friends are the failure categories persisted on
// a failed notification and written to the audit trail.
const (
	ErrorCategoryTransient = "provider_transient"
	ErrorCategoryTerminal  = "provider_terminal"
	ErrorCategoryInternal  = "internal"
)

// Dispatcher drives a single delivery attempt for a notification: fetch the
// record, invoke the channel's provider with a bounded timeout, and finalize
// the lifecycle according to the outcome.
//
// Retry scheduling lives outside the dispatcher: the attempt number and the
// budget come in as data, and a returned error means "try again later". The
// queue serializes attempts per notification id, so no two sends for the
// same id ever run concurrently.
type Dispatcher struct {
	store     Store
	lifecycle *Lifecycle
	providers map[Channel]Provider
	timeout   time.Duration
}

// NewDispatcher creates a new dispatcher. timeout bounds every provider call.
func NewDispatcher(store Store, lifecycle *Lifecycle, timeout time.Duration, providers ...Provider) *Dispatcher {
	pm := make(map[Channel]Provider, len(providers))
	for _, p := range providers {
		pm[p.Channel()] = p
	}
	return &Dispatcher{
		store:     store,
		lifecycle: lifecycle,
		providers: pm,
		timeout:   timeout,
	}
}

// Dispatch performs one delivery attempt. attempt is 1-based; maxAttempts is
// the total retry budget. The return value is nil when the notification
// reached a terminal status (sent or failed) or the attempt is moot; a
// non-nil error means the attempt failed transiently and should be
// rescheduled by the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, id string, attempt, maxAttempts int) error {
	start := time.Now()

	n, err := d.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("fetching notification %s: %w", id, err)
	}
	if n == nil {
		slog.Error("notification not found, dropping dispatch", "id", id)
		return nil
	}

	// Duplicate delivery guard: a record that already reached a terminal
	// status is never sent again, no matter how the task got here.
	if n.Status.Terminal() {
		slog.Info("notification already finalized, skipping dispatch",
			"id", id,
			"status", n.Status,
		)
		return nil
	}

	provider, ok := d.providers[n.Channel]
	if !ok {
		// Unsendable record: no adapter for the channel. Finalize instead of
		// bouncing around the queue forever.
		_ = d.lifecycle.MarkFailed(ctx, n, ErrorCategoryInternal,
			fmt.Sprintf("no provider registered for channel %s", n.Channel), attempt)
		return nil
	}

	// Cancellation is honored only up to this point. Once the provider call
	// is issued, its outcome is authoritative: both the send and the status
	// write recording it run detached from the caller's cancellation, so a
	// shutdown mid-flight cannot lose an outcome and cause a re-send.
	if err := ctx.Err(); err != nil {
		return err
	}
	sendCtx := context.WithoutCancel(ctx)

	msg := &Message{
		To:            n.Recipient,
		Subject:       n.Subject,
		Body:          n.Body,
		CorrelationID: n.ID,
	}

	callCtx, cancel := context.WithTimeout(sendCtx, d.timeout)
	defer cancel()

	outcome, sendErr := provider.Send(callCtx, msg)
	if sendErr != nil {
		return d.finalizeFailure(sendCtx, n, sendErr, attempt, maxAttempts)
	}

	if err := d.lifecycle.MarkSent(sendCtx, n, outcome.ProviderMessageID, attempt); err != nil {
		var transition *common.InvalidTransitionError
		if errors.As(err, &transition) {
			// Lost the race to another finalizer; the provider outcome stands.
			slog.Warn("sent outcome discarded, record already finalized", "id", id, "error", err)
			return nil
		}
		return fmt.Errorf("marking notification %s sent: %w", id, err)
	}

	slog.Info("notification sent",
		"id", id,
		"channel", n.Channel,
		"recipient", n.Recipient,
		"provider_message_id", outcome.ProviderMessageID,
		"attempt", attempt,
		"duration", time.Since(start),
	)
	return nil
}

// finalizeFailure categorizes a provider failure and either finalizes the
// record or hands the transient error back for rescheduling.
func (d *Dispatcher) finalizeFailure(ctx context.Context, n *Notification, sendErr error, attempt, maxAttempts int) error {
	category := ErrorCategoryTransient
	retryable := true

	var pErr *common.ProviderError
	if errors.As(sendErr, &pErr) && !pErr.Retryable() {
		category = ErrorCategoryTerminal
		retryable = false
	}

	if retryable && attempt < maxAttempts {
		reason := fmt.Sprintf("attempt %d/%d failed (%s): %s", attempt, maxAttempts, category, sendErr.Error())
		if err := d.lifecycle.RecordAttempt(ctx, n, reason, attempt); err != nil {
			slog.Error("failed to record attempt audit", "id", n.ID, "error", err)
		}
		slog.Warn("transient delivery failure, will retry",
			"id", n.ID,
			"channel", n.Channel,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", sendErr,
		)
		return sendErr
	}

	reason := sendErr.Error()
	if retryable {
		reason = fmt.Sprintf("retry budget exhausted after %d attempts: %s", attempt, reason)
	}
	if err := d.lifecycle.MarkFailed(ctx, n, category, reason, attempt); err != nil {
		var transition *common.InvalidTransitionError
		if errors.As(err, &transition) {
			slog.Warn("failed outcome discarded, record already finalized", "id", n.ID, "error", err)
			return nil
		}
		return fmt.Errorf("marking notification %s failed: %w", n.ID, err)
	}

	slog.Error("notification delivery failed",
		"id", n.ID,
		"channel", n.Channel,
		"category", category,
		"attempt", attempt,
		"error", sendErr,
	)
	return nil
}
