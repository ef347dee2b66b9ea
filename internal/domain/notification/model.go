package notification

import (
	"fmt"
	"time"
)

// Channel represents a notification delivery channel.
// It is a closed set: email, sms and push are the only valid values
// at every layer of the system.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// ParseChannel validates and normalizes a channel string.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return Channel(s), nil
	default:
		return "", fmt.Errorf("unknown channel: %q", s)
	}
}

// Status represents a notification's position in its delivery lifecycle.
type Status string

const (
	// StatusPending is the initial status, set when the record is first persisted.
	StatusPending Status = "pending"

	// StatusSent means the provider accepted the message.
	StatusSent Status = "sent"

	// StatusFailed means delivery failed terminally or the retry budget ran out.
	StatusFailed Status = "failed"

	// StatusRead means the recipient acknowledged the message via a read receipt.
	StatusRead Status = "read"
)

// Terminal reports whether no further delivery attempt is allowed from this status.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusRead
}

// Notification is a persisted delivery record. Once created it is mutated
// only through lifecycle transitions.
type Notification struct {
	ID                string         `json:"id"`
	UserID            string         `json:"user_id"`
	Channel           Channel        `json:"channel"`
	Recipient         string         `json:"recipient"`
	Subject           string         `json:"subject,omitempty"`
	Body              string         `json:"body"`
	Status            Status         `json:"status"`
	TemplateID        string         `json:"template_id,omitempty"`
	TemplateData      map[string]any `json:"template_data,omitempty"`
	RenderWarnings    []string       `json:"render_warnings,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	ErrorCategory     string         `json:"error_category,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	AttemptCount      int            `json:"attempt_count"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	ReadAt            *time.Time     `json:"read_at,omitempty"`
}

// Template is a named, reusable subject/body pattern. Templates are owned by
// an external management surface; the dispatch core only reads them.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Channel   Channel   `json:"channel"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusChange is one immutable audit entry for a lifecycle transition
// or a recorded delivery attempt.
type StatusChange struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notification_id"`
	FromStatus     Status    `json:"from_status"`
	ToStatus       Status    `json:"to_status"`
	Reason         string    `json:"reason"`
	Attempt        int       `json:"attempt"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateRequest is the API request payload for creating a notification.
type CreateRequest struct {
	UserID       string         `json:"user_id" binding:"required"`
	Channel      string         `json:"channel" binding:"required"`
	Recipient    string         `json:"recipient" binding:"required"`
	Subject      string         `json:"subject"`
	Message      string         `json:"message"`
	TemplateID   string         `json:"template_id"`
	TemplateData map[string]any `json:"template_data"`
}

// Message is the rendered, validated content handed to a delivery adapter.
type Message struct {
	To      string
	Subject string
	Body    string

	// CorrelationID ties the provider call back to the notification record.
	CorrelationID string
}

// ListFilter defines pagination and filtering options for listing notifications.
type ListFilter struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
	Recipient string `form:"recipient"`
	Channel   string `form:"channel"`
}

// ListResponse wraps a paginated list of notifications.
type ListResponse struct {
	Notifications []*Notification `json:"notifications"`
	Total         int             `json:"total"`
	Page          int             `json:"page"`
	PageSize      int             `json:"page_size"`
}
