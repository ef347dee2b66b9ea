package notification

import "context"

// DeliveryOutcome is the normalized result of a successful provider call.
type DeliveryOutcome struct {
	// ProviderMessageID is the provider's identifier for the accepted message.
	ProviderMessageID string
}

// Provider defines the contract for a notification delivery channel.
// Implementations live in infra/ (Resend for email, Twilio for SMS, FCM for
// push). Failed sends return a *common.ProviderError whose kind tells the
// dispatcher whether the failure is retryable.
type Provider interface {
	// Send delivers a rendered message.
	Send(ctx context.Context, msg *Message) (*DeliveryOutcome, error)

	// Channel returns which delivery channel this provider handles.
	Channel() Channel
}

// Renderer defines the contract for rendering templates into subject/body.
// Implementations live in infra/template/. Rendering is pure and never fails:
// unresolved placeholders render as empty strings and come back as warnings.
type Renderer interface {
	Render(subjectPattern, bodyPattern string, data map[string]any) (subject, body string, warnings []string)
}

// TemplateResolver loads templates for the dispatch flow.
type TemplateResolver interface {
	// Resolve returns the template or a *common.NotFoundError.
	Resolve(ctx context.Context, id string) (*Template, error)
}

// Enqueuer defines the contract for enqueuing dispatch tasks.
// This allows the service to be decoupled from the specific queue implementation.
type Enqueuer interface {
	EnqueueDispatch(notificationID string) error
}

// RecipientRateLimiter defines the contract for per-recipient rate limiting.
// Implementations live in infra/ratelimit/.
type RecipientRateLimiter interface {
	// Allow checks whether a notification can be sent to the given recipient.
	// Returns true if the notification is allowed, false if rate limited.
	Allow(ctx context.Context, recipient string) (bool, error)
}
