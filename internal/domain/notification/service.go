package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"herald/internal/common"
)

// Service orchestrates the create side of dispatch:
// resolve template → render → validate → rate limit → persist pending → enqueue.
// Validation failures never leave a record behind.
type Service struct {
	store       Store
	resolver    TemplateResolver
	renderer    Renderer
	enqueuer    Enqueuer
	rateLimiter RecipientRateLimiter
	rateWindow  time.Duration
	lifecycle   *Lifecycle
}

// NewService creates a new notification service.
func NewService(store Store, resolver TemplateResolver, renderer Renderer, enqueuer Enqueuer, rateLimiter RecipientRateLimiter, rateWindow time.Duration) *Service {
	return &Service{
		store:       store,
		resolver:    resolver,
		renderer:    renderer,
		enqueuer:    enqueuer,
		rateLimiter: rateLimiter,
		rateWindow:  rateWindow,
		lifecycle:   NewLifecycle(store),
	}
}

// Create runs the pre-dispatch pipeline and persists the notification in
// pending, the first durable state. The actual send happens asynchronously.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Notification, error) {
	channel, err := ParseChannel(req.Channel)
	if err != nil {
		return nil, common.NewFieldValidationError("channel", "must be one of: email, sms, push")
	}

	subject := req.Subject
	body := req.Message
	var warnings []string

	// Template path: fail fast when the template is missing, render otherwise.
	// Rendering itself never fails; unresolved variables come back as warnings.
	if req.TemplateID != "" {
		tmpl, err := s.resolver.Resolve(ctx, req.TemplateID)
		if err != nil {
			return nil, err
		}
		if tmpl.Channel != channel {
			return nil, common.NewFieldValidationError("template_id",
				fmt.Sprintf("template %s targets channel %s, not %s", tmpl.ID, tmpl.Channel, channel))
		}
		subject, body, warnings = s.renderer.Render(tmpl.Subject, tmpl.Body, req.TemplateData)
	}

	// SMS carries no subject line.
	if channel == ChannelSMS {
		subject = ""
	}

	if fieldErrs := Validate(channel, req.Recipient, subject, body); len(fieldErrs) > 0 {
		return nil, common.NewValidationError(fieldErrs...)
	}

	if s.rateLimiter != nil {
		allowed, err := s.rateLimiter.Allow(ctx, req.Recipient)
		if err != nil {
			slog.Error("rate limit check failed, proceeding without limit", "recipient", req.Recipient, "error", err)
			// Fail open: don't block the request when Redis is down
		} else if !allowed {
			return nil, common.NewRateLimitError(
				fmt.Sprintf("rate limit exceeded for recipient: %s", req.Recipient),
				s.rateWindow,
			)
		}
	}

	now := time.Now().UTC()
	n := &Notification{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		Channel:        channel,
		Recipient:      req.Recipient,
		Subject:        subject,
		Body:           body,
		Status:         StatusPending,
		TemplateID:     req.TemplateID,
		TemplateData:   req.TemplateData,
		RenderWarnings: warnings,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}

	if err := s.enqueuer.EnqueueDispatch(n.ID); err != nil {
		// The record exists but will never be picked up; finalize it so the
		// caller sees an honest failure instead of a permanently pending row.
		_ = s.lifecycle.MarkFailed(ctx, n, ErrorCategoryInternal, "failed to enqueue dispatch: "+err.Error(), 0)
		return nil, fmt.Errorf("enqueuing dispatch: %w", err)
	}

	slog.Info("notification created",
		"id", n.ID,
		"channel", channel,
		"recipient", req.Recipient,
		"template_id", req.TemplateID,
		"render_warnings", len(warnings),
	)

	return n, nil
}

// Get retrieves a notification by ID.
func (s *Service) Get(ctx context.Context, id string) (*Notification, error) {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching notification: %w", err)
	}
	if n == nil {
		return nil, common.NewNotFoundError("notification", id)
	}
	return n, nil
}

// List retrieves notifications with pagination and filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	notifications, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	return &ListResponse{
		Notifications: notifications,
		Total:         total,
		Page:          filter.Page,
		PageSize:      filter.PageSize,
	}, nil
}

// MarkRead applies an external read receipt to a sent notification.
// Duplicate receipts are idempotent no-ops.
func (s *Service) MarkRead(ctx context.Context, id string) (*Notification, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.lifecycle.MarkRead(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Audit retrieves the audit trail for a notification, oldest first.
func (s *Service) Audit(ctx context.Context, id string) ([]*StatusChange, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	changes, err := s.store.ListAudit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing audit trail: %w", err)
	}
	return changes, nil
}

// Stats computes read-only rollups over the stored notification population.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	notifications, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing notifications for stats: %w", err)
	}
	stats := Aggregate(notifications)
	return &stats, nil
}

// GetTemplate exposes the template read contract.
func (s *Service) GetTemplate(ctx context.Context, id string) (*Template, error) {
	return s.resolver.Resolve(ctx, id)
}
