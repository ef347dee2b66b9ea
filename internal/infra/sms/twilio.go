package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"herald/internal/common"
	"herald/internal/domain/notification"
)

var _ notification.Provider = (*TwilioProvider)(nil)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioProvider sends SMS messages through the Twilio Messages API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
	baseURL    string
}

// NewTwilioProvider creates a new Twilio SMS provider.
func NewTwilioProvider(accountSID, authToken, fromNumber string, timeout time.Duration) *TwilioProvider {
	return &TwilioProvider{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    twilioBaseURL,
	}
}

// Channel returns the sms channel identifier.
func (p *TwilioProvider) Channel() notification.Channel {
	return notification.ChannelSMS
}

// Send delivers an SMS via Twilio and returns the message SID.
// SMS has no subject line; only the body is transmitted.
func (p *TwilioProvider) Send(ctx context.Context, msg *notification.Message) (*notification.DeliveryOutcome, error) {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", p.fromNumber)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", p.baseURL, p.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, common.NewProviderTerminalError("twilio", "creating request: "+err.Error())
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, common.NewProviderTransientError("twilio", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, common.NewProviderTransientError("twilio", "reading response: "+err.Error())
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &errResp)

		detail := errResp.Message
		if detail == "" {
			detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		if errResp.Code != 0 {
			detail = fmt.Sprintf("%s (code %d)", detail, errResp.Code)
		}
		if retryableStatus(resp.StatusCode) {
			return nil, common.NewProviderTransientError("twilio", detail)
		}
		// 21211 invalid 'To' number, 21610 unsubscribed recipient, etc.
		return nil, common.NewProviderTerminalError("twilio", detail)
	}

	var successResp struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(respBody, &successResp); err != nil {
		return nil, common.NewProviderTransientError("twilio", "parsing response: "+err.Error())
	}

	return &notification.DeliveryOutcome{ProviderMessageID: successResp.SID}, nil
}

// retryableStatus reports whether an HTTP status indicates a failure that
// may resolve on retry.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}
