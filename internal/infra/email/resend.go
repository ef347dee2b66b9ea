package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"herald/internal/common"
	"herald/internal/domain/notification"
)

var _ notification.Provider = (*ResendProvider)(nil)

const resendEndpoint = "https://api.resend.com/emails"

// ResendProvider sends emails using the Resend API.
type ResendProvider struct {
	apiKey      string
	fromAddress string
	fromName    string
	httpClient  *http.Client
	endpoint    string
}

// NewResendProvider creates a new Resend email provider.
func NewResendProvider(apiKey, fromAddress, fromName string, timeout time.Duration) *ResendProvider {
	return &ResendProvider{
		apiKey:      apiKey,
		fromAddress: fromAddress,
		fromName:    fromName,
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    resendEndpoint,
	}
}

// Channel returns the email channel identifier.
func (p *ResendProvider) Channel() notification.Channel {
	return notification.ChannelEmail
}

// Send delivers an email via the Resend API and returns the message ID.
// Failures come back as provider errors classified transient or terminal.
func (p *ResendProvider) Send(ctx context.Context, msg *notification.Message) (*notification.DeliveryOutcome, error) {
	from := p.fromAddress
	if p.fromName != "" {
		from = fmt.Sprintf("%s <%s>", p.fromName, p.fromAddress)
	}

	payload := map[string]any{
		"from":    from,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.Body,
		"headers": map[string]string{
			"X-Entity-Ref-ID": msg.CorrelationID,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, common.NewProviderTerminalError("resend", "marshaling payload: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, common.NewProviderTerminalError("resend", "creating request: "+err.Error())
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Network errors and timeouts are worth retrying.
		return nil, common.NewProviderTransientError("resend", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max
	if err != nil {
		return nil, common.NewProviderTransientError("resend", "reading response: "+err.Error())
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &errResp)

		detail := errResp.Message
		if detail == "" {
			detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		if retryableStatus(resp.StatusCode) {
			return nil, common.NewProviderTransientError("resend", detail)
		}
		return nil, common.NewProviderTerminalError("resend", detail)
	}

	var successResp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &successResp); err != nil {
		return nil, common.NewProviderTransientError("resend", "parsing response: "+err.Error())
	}

	return &notification.DeliveryOutcome{ProviderMessageID: successResp.ID}, nil
}

// retryableStatus reports whether an HTTP status indicates a failure that
// may resolve on retry: throttling, timeouts and provider-side errors.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}
