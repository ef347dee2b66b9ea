package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/common"
	"herald/internal/domain/notification"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *ResendProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewResendProvider("test-key", "no-reply@example.com", "Herald", time.Second)
	p.endpoint = srv.URL
	return p
}

func testMessage() *notification.Message {
	return &notification.Message{
		To:            "a@b.com",
		Subject:       "Welcome",
		Body:          "<p>Hello</p>",
		CorrelationID: "n-1",
	}
}

func TestResendSendSuccess(t *testing.T) {
	var captured map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "re-123"})
	})

	outcome, err := p.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "re-123", outcome.ProviderMessageID)
	assert.Equal(t, "Herald <no-reply@example.com>", captured["from"])
}

func TestResendSendThrottledIsTransient(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "rate limit exceeded"})
	})

	_, err := p.Send(context.Background(), testMessage())

	var pErr *common.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.True(t, pErr.Retryable())
}

func TestResendSendServerErrorIsTransient(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := p.Send(context.Background(), testMessage())

	var pErr *common.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.True(t, pErr.Retryable())
}

func TestResendSendRejectedContentIsTerminal(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid to address"})
	})

	_, err := p.Send(context.Background(), testMessage())

	var pErr *common.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.False(t, pErr.Retryable())
	assert.Contains(t, pErr.Message, "invalid to address")
}

func TestResendSendNetworkErrorIsTransient(t *testing.T) {
	p := NewResendProvider("test-key", "no-reply@example.com", "", time.Second)
	p.endpoint = "http://127.0.0.1:1" // nothing listens here

	_, err := p.Send(context.Background(), testMessage())

	var pErr *common.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.True(t, pErr.Retryable())
}

func TestResendSendTimeoutIsTransient(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	})
	p.httpClient.Timeout = time.Millisecond

	_, err := p.Send(context.Background(), testMessage())

	var pErr *common.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.True(t, pErr.Retryable())
	assert.False(t, errors.Is(err, context.Canceled))
}
