package notification

import (
	"context"
	"time"
)

// Store defines the contract for persisting notification records and their
// audit trail. Implementations live in infra/store/ (e.g., Supabase).
type Store interface {
	// Create inserts a new notification record in its initial status.
	Create(ctx context.Context, n *Notification) error

	// GetByID retrieves a notification by its ID.
	// Returns nil, nil if no record is found.
	GetByID(ctx context.Context, id string) (*Notification, error)

	// ApplyTransition commits a status change as a single unit: the record's
	// status and transition metadata plus one appended audit entry. The update
	// is guarded on change.FromStatus so concurrent duplicates lose cleanly;
	// it returns false when the record was no longer in that status.
	ApplyTransition(ctx context.Context, n *Notification, change *StatusChange) (bool, error)

	// AppendAudit records an audit entry without a status change
	// (e.g., a failed delivery attempt that will be retried).
	AppendAudit(ctx context.Context, change *StatusChange) error

	// ListAudit retrieves the audit trail for a notification, oldest first.
	ListAudit(ctx context.Context, notificationID string) ([]*StatusChange, error)

	// List retrieves notifications with pagination and filtering.
	List(ctx context.Context, filter ListFilter) ([]*Notification, int, error)

	// ListAll retrieves every notification record, for statistics rollups.
	ListAll(ctx context.Context) ([]*Notification, error)

	// ListStalePending retrieves notifications stuck in pending for longer
	// than the given threshold. Used by the reaper for reconciliation.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*Notification, error)
}

// TemplateStore is the read contract this core consumes from the external
// template-management collaborator. Name uniqueness and system-template
// protection are enforced on that side.
type TemplateStore interface {
	// GetByID retrieves a template by its ID.
	// Returns nil, nil if no template is found.
	GetByID(ctx context.Context, id string) (*Template, error)
}
