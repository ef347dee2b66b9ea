package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"herald/internal/domain/notification"
)

const (
	notificationsTable = "notifications"
	auditTable         = "notification_status_changes"
	templatesTable     = "notification_templates"
)

var (
	_ notification.Store         = (*SupabaseStore)(nil)
	_ notification.TemplateStore = templateStoreAdapter{}
)

// SupabaseStore implements the notification and template stores using the
// Supabase Go SDK. Status transitions are guarded with a compare-and-set on
// the previous status so concurrent writers cannot double-finalize a record.
type SupabaseStore struct {
	client *supa.Client
}

// NewSupabaseStore creates a new Supabase-backed store.
func NewSupabaseStore(supabaseURL, serviceKey string) (*SupabaseStore, error) {
	client, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

// notificationRow is the internal representation for PostgREST insert/update.
type notificationRow struct {
	ID                string         `json:"id,omitempty"`
	UserID            string         `json:"user_id"`
	Channel           string         `json:"channel"`
	Recipient         string         `json:"recipient"`
	Subject           *string        `json:"subject,omitempty"`
	Body              string         `json:"body"`
	Status            string         `json:"status"`
	TemplateID        *string        `json:"template_id,omitempty"`
	TemplateData      map[string]any `json:"template_data,omitempty"`
	RenderWarnings    []string       `json:"render_warnings,omitempty"`
	ProviderMessageID *string        `json:"provider_message_id,omitempty"`
	ErrorCategory     *string        `json:"error_category,omitempty"`
	ErrorMessage      *string        `json:"error_message,omitempty"`
	AttemptCount      int            `json:"attempt_count"`
	CreatedAt         string         `json:"created_at,omitempty"`
	UpdatedAt         string         `json:"updated_at,omitempty"`
	SentAt            *string        `json:"sent_at,omitempty"`
	ReadAt            *string        `json:"read_at,omitempty"`
}

type auditRow struct {
	ID             string `json:"id,omitempty"`
	NotificationID string `json:"notification_id"`
	FromStatus     string `json:"from_status"`
	ToStatus       string `json:"to_status"`
	Reason         string `json:"reason"`
	Attempt        int    `json:"attempt"`
	CreatedAt      string `json:"created_at,omitempty"`
}

type templateRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Channel   string `json:"channel"`
	System    bool   `json:"system"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Create inserts a new notification record.
func (s *SupabaseStore) Create(ctx context.Context, n *notification.Notification) error {
	row := toRow(n)

	data, _, err := s.client.From(notificationsTable).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}

	var results []notificationRow
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parsing insert response: %w", err)
	}
	if len(results) > 0 {
		*n = *rowToNotification(&results[0])
	}

	return nil
}

// GetByID retrieves a notification by its ID. Returns nil, nil when absent.
func (s *SupabaseStore) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	data, _, err := s.client.From(notificationsTable).Select("*", "exact", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching notification: %w", err)
	}

	var rows []notificationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing notification: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return rowToNotification(&rows[0]), nil
}

// ApplyTransition updates the record guarded on its previous status and
// appends the audit entry. Returns false when the guard did not match,
// meaning a concurrent writer got there first.
func (s *SupabaseStore) ApplyTransition(ctx context.Context, n *notification.Notification, change *notification.StatusChange) (bool, error) {
	row := toRow(n)
	row.CreatedAt = "" // never rewrite creation time

	data, _, err := s.client.From(notificationsTable).
		Update(row, "representation", "exact").
		Eq("id", n.ID).
		Eq("status", string(change.FromStatus)).
		Execute()
	if err != nil {
		return false, fmt.Errorf("updating notification status: %w", err)
	}

	var updated []notificationRow
	if err := json.Unmarshal(data, &updated); err != nil {
		return false, fmt.Errorf("parsing update response: %w", err)
	}
	if len(updated) == 0 {
		// Guard miss: the record left change.FromStatus under our feet.
		return false, nil
	}

	if err := s.AppendAudit(ctx, change); err != nil {
		return true, err
	}
	return true, nil
}

// AppendAudit records an immutable audit entry.
func (s *SupabaseStore) AppendAudit(ctx context.Context, change *notification.StatusChange) error {
	row := auditRow{
		NotificationID: change.NotificationID,
		FromStatus:     string(change.FromStatus),
		ToStatus:       string(change.ToStatus),
		Reason:         change.Reason,
		Attempt:        change.Attempt,
	}

	_, _, err := s.client.From(auditTable).Insert(row, false, "", "minimal", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAudit retrieves the audit trail for a notification, oldest first.
func (s *SupabaseStore) ListAudit(ctx context.Context, notificationID string) ([]*notification.StatusChange, error) {
	data, _, err := s.client.From(auditTable).
		Select("*", "exact", false).
		Eq("notification_id", notificationID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching audit trail: %w", err)
	}

	var rows []auditRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing audit trail: %w", err)
	}

	changes := make([]*notification.StatusChange, 0, len(rows))
	for i := range rows {
		changes = append(changes, rowToChange(&rows[i]))
	}
	return changes, nil
}

// List retrieves notifications with pagination and filtering.
func (s *SupabaseStore) List(ctx context.Context, filter notification.ListFilter) ([]*notification.Notification, int, error) {
	query := s.client.From(notificationsTable).Select("*", "exact", false)

	if filter.Status != "" {
		query = query.Eq("status", filter.Status)
	}
	if filter.Recipient != "" {
		query = query.Eq("recipient", filter.Recipient)
	}
	if filter.Channel != "" {
		query = query.Eq("channel", filter.Channel)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	from := (page - 1) * pageSize
	to := from + pageSize - 1

	data, count, err := query.
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(from, to, "").
		Execute()
	if err != nil {
		return nil, 0, fmt.Errorf("listing notifications: %w", err)
	}

	var rows []notificationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, 0, fmt.Errorf("parsing notifications: %w", err)
	}

	notifications := make([]*notification.Notification, 0, len(rows))
	for i := range rows {
		notifications = append(notifications, rowToNotification(&rows[i]))
	}
	return notifications, int(count), nil
}

// ListAll retrieves every notification record, for statistics rollups.
func (s *SupabaseStore) ListAll(ctx context.Context) ([]*notification.Notification, error) {
	data, _, err := s.client.From(notificationsTable).Select("*", "exact", false).Execute()
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	var rows []notificationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing notifications: %w", err)
	}

	notifications := make([]*notification.Notification, 0, len(rows))
	for i := range rows {
		notifications = append(notifications, rowToNotification(&rows[i]))
	}
	return notifications, nil
}

// ListStalePending retrieves notifications stuck in pending since before olderThan.
func (s *SupabaseStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*notification.Notification, error) {
	data, _, err := s.client.From(notificationsTable).
		Select("*", "exact", false).
		Eq("status", string(notification.StatusPending)).
		Lt("updated_at", olderThan.UTC().Format(time.RFC3339Nano)).
		Order("updated_at", &postgrest.OrderOpts{Ascending: true}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("listing stale notifications: %w", err)
	}

	var rows []notificationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing stale notifications: %w", err)
	}

	notifications := make([]*notification.Notification, 0, len(rows))
	for i := range rows {
		notifications = append(notifications, rowToNotification(&rows[i]))
	}
	return notifications, nil
}

// GetTemplateByID retrieves a template by ID. Returns nil, nil when absent.
func (s *SupabaseStore) GetTemplateByID(ctx context.Context, id string) (*notification.Template, error) {
	data, _, err := s.client.From(templatesTable).Select("*", "exact", false).Eq("id", id).Execute()
	if err != nil {
		// PostgREST surfaces "no rows" as an error on Single(); with a plain
		// select an empty array comes back instead, so any error here is real.
		return nil, fmt.Errorf("fetching template: %w", err)
	}

	var rows []templateRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	return &notification.Template{
		ID:        row.ID,
		Name:      row.Name,
		Subject:   row.Subject,
		Body:      row.Body,
		Channel:   notification.Channel(row.Channel),
		System:    row.System,
		CreatedAt: parseTime(row.CreatedAt),
		UpdatedAt: parseTime(row.UpdatedAt),
	}, nil
}

// Template store read contract.
func (s *SupabaseStore) TemplateStore() notification.TemplateStore {
	return templateStoreAdapter{s}
}

type templateStoreAdapter struct{ s *SupabaseStore }

func (a templateStoreAdapter) GetByID(ctx context.Context, id string) (*notification.Template, error) {
	return a.s.GetTemplateByID(ctx, id)
}

func toRow(n *notification.Notification) notificationRow {
	row := notificationRow{
		ID:           n.ID,
		UserID:       n.UserID,
		Channel:      string(n.Channel),
		Recipient:    n.Recipient,
		Body:         n.Body,
		Status:       string(n.Status),
		TemplateData: n.TemplateData,
		AttemptCount: n.AttemptCount,
	}

	if n.Subject != "" {
		row.Subject = &n.Subject
	}
	if n.TemplateID != "" {
		row.TemplateID = &n.TemplateID
	}
	if len(n.RenderWarnings) > 0 {
		row.RenderWarnings = n.RenderWarnings
	}
	if n.ProviderMessageID != "" {
		row.ProviderMessageID = &n.ProviderMessageID
	}
	if n.ErrorCategory != "" {
		row.ErrorCategory = &n.ErrorCategory
	}
	if n.ErrorMessage != "" {
		row.ErrorMessage = &n.ErrorMessage
	}
	if !n.CreatedAt.IsZero() {
		row.CreatedAt = n.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !n.UpdatedAt.IsZero() {
		row.UpdatedAt = n.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if n.SentAt != nil {
		v := n.SentAt.UTC().Format(time.RFC3339Nano)
		row.SentAt = &v
	}
	if n.ReadAt != nil {
		v := n.ReadAt.UTC().Format(time.RFC3339Nano)
		row.ReadAt = &v
	}

	return row
}

func rowToNotification(row *notificationRow) *notification.Notification {
	n := &notification.Notification{
		ID:             row.ID,
		UserID:         row.UserID,
		Channel:        notification.Channel(row.Channel),
		Recipient:      row.Recipient,
		Body:           row.Body,
		Status:         notification.Status(row.Status),
		TemplateData:   row.TemplateData,
		RenderWarnings: row.RenderWarnings,
		AttemptCount:   row.AttemptCount,
		CreatedAt:      parseTime(row.CreatedAt),
		UpdatedAt:      parseTime(row.UpdatedAt),
	}

	if row.Subject != nil {
		n.Subject = *row.Subject
	}
	if row.TemplateID != nil {
		n.TemplateID = *row.TemplateID
	}
	if row.ProviderMessageID != nil {
		n.ProviderMessageID = *row.ProviderMessageID
	}
	if row.ErrorCategory != nil {
		n.ErrorCategory = *row.ErrorCategory
	}
	if row.ErrorMessage != nil {
		n.ErrorMessage = *row.ErrorMessage
	}
	if row.SentAt != nil {
		if t, err := time.Parse(time.RFC3339Nano, *row.SentAt); err == nil {
			n.SentAt = &t
		}
	}
	if row.ReadAt != nil {
		if t, err := time.Parse(time.RFC3339Nano, *row.ReadAt); err == nil {
			n.ReadAt = &t
		}
	}

	return n
}

func rowToChange(row *auditRow) *notification.StatusChange {
	return &notification.StatusChange{
		ID:             row.ID,
		NotificationID: row.NotificationID,
		FromStatus:     notification.Status(row.FromStatus),
		ToStatus:       notification.Status(row.ToStatus),
		Reason:         row.Reason,
		Attempt:        row.Attempt,
		CreatedAt:      parseTime(row.CreatedAt),
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	// Supabase may return timestamps with or without a zone suffix.
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t
		}
	}
	return time.Time{}
}
