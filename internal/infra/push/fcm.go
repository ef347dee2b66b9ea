package push

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

var _ notification.Provider = (*FCMProvider)(nil)

// FCMProvider sends push notifications through the Firebase Cloud Messaging
// HTTP v1 API.
type FCMProvider struct {
	projectID   string
	accessToken string
	httpClient  *http.Client
	endpoint    string
}

// NewFCMProvider creates a new FCM push provider.
func NewFCMProvider(projectID, accessToken string, timeout time.Duration) *FCMProvider {
	return &FCMProvider{
		projectID:   projectID,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", projectID),
	}
}

// Channel returns the push channel identifier.
func (p *FCMProvider) Channel() notification.Channel {
	return notification.ChannelPush
}

// Send delivers a push message to a device token via FCM.
func (p *FCMProvider) Send(ctx context.Context, msg *notification.Message) (*notification.DeliveryOutcome, error) {
	payload := map[string]any{
		"message": map[string]any{
			"token": msg.To,
			"notification": map[string]string{
				"title": msg.Subject,
				"body":  msg.Body,
			},
			"data": map[string]string{
				"correlation_id": msg.CorrelationID,
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, common.NewProviderTerminalError("fcm", "marshaling payload: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, common.NewProviderTerminalError("fcm", "creating request: "+err.Error())
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, common.NewProviderTransientError("fcm", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, common.NewProviderTransientError("fcm", "reading response: "+err.Error())
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)

		detail := errResp.Error.Message
		if detail == "" {
			detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		if retryableStatus(resp.StatusCode) || errResp.Error.Status == "UNAVAILABLE" {
			return nil, common.NewProviderTransientError("fcm", detail)
		}
		// UNREGISTERED / INVALID_ARGUMENT mean the device token is dead.
		return nil, common.NewProviderTerminalError("fcm", detail)
	}

	var successResp struct {
		Name string `json:"name"` // projects/*/messages/{message_id}
	}
	if err := json.Unmarshal(respBody, &successResp); err != nil {
		return nil, common.NewProviderTransientError("fcm", "parsing response: "+err.Error())
	}

	return &notification.DeliveryOutcome{ProviderMessageID: successResp.Name}, nil
}

// retryableStatus reports whether an HTTP status indicates a failure that
// may resolve on retry.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}
