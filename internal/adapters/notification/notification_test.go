package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-orchestrator/internal/config"
	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

type capturedMessage struct {
	Text    string  `json:"text"`
	Channel *string `json:"channel"`
}

func webhookServer(t *testing.T, status int, captured *capturedMessage, calls *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)
	return server
}

func sampleTicket() domain.Ticket {
	return domain.Ticket{ID: "t-1", Title: "VPN down", Status: domain.TicketStatusNew, Priority: "High"}
}

func TestNotifyCreatedUsesDefaultChannel(t *testing.T) {
	var (
		got   capturedMessage
		calls int32
	)
	server := webhookServer(t, http.StatusOK, &got, &calls)
	cfg := config.NotificationConfig{Enabled: true, WebhookURL: server.URL, DefaultChannel: "#helpdesk"}
	notifier := New(cfg, config.FrontendConfig{BaseURL: "https://desk.example.com/"}, server.Client(), nil)

	require.NoError(t, notifier.NotifyCreated(context.Background(), sampleTicket()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.NotNil(t, got.Channel)
	assert.Equal(t, "#helpdesk", *got.Channel)
	assert.Contains(t, got.Text, "New ticket t-1: VPN down")
	assert.Contains(t, got.Text, "Status: NEW")
	assert.Contains(t, got.Text, "https://desk.example.com/tickets/t-1")
}

func TestNotifyPrefersTicketChannel(t *testing.T) {
	var (
		got   capturedMessage
		calls int32
	)
	server := webhookServer(t, http.StatusOK, &got, &calls)
	cfg := config.NotificationConfig{Enabled: true, WebhookURL: server.URL, DefaultChannel: "#helpdesk"}
	ticket := sampleTicket()
	channel := "#network"
	ticket.NotificationChannel = &channel
	ticket.ExternalIssue = &domain.ExternalIssueRef{Key: "OPS-42", URL: "https://jira/browse/OPS-42"}

	require.NoError(t, New(cfg, config.FrontendConfig{}, server.Client(), nil).NotifyStatusChanged(context.Background(), ticket))

	require.NotNil(t, got.Channel)
	assert.Equal(t, "#network", *got.Channel)
	assert.Contains(t, got.Text, "OPS-42")
	assert.Contains(t, got.Text, "is now NEW")
}

func TestNotifyWithoutAnyChannelOmitsField(t *testing.T) {
	var (
		got   capturedMessage
		calls int32
	)
	server := webhookServer(t, http.StatusOK, &got, &calls)
	cfg := config.NotificationConfig{Enabled: true, WebhookURL: server.URL}

	require.NoError(t, New(cfg, config.FrontendConfig{}, server.Client(), nil).NotifyCreated(context.Background(), sampleTicket()))
	assert.Nil(t, got.Channel)
	assert.NotContains(t, got.Text, "/tickets/")
}

func TestNotifyDisabledIsNoop(t *testing.T) {
	var calls int32
	server := webhookServer(t, http.StatusOK, nil, &calls)
	cfg := config.NotificationConfig{Enabled: false, WebhookURL: server.URL}

	require.NoError(t, New(cfg, config.FrontendConfig{}, server.Client(), nil).NotifyCreated(context.Background(), sampleTicket()))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestNotifyFailureIsNotRetried(t *testing.T) {
	var calls int32
	server := webhookServer(t, http.StatusInternalServerError, nil, &calls)
	cfg := config.NotificationConfig{Enabled: true, WebhookURL: server.URL}

	err := New(cfg, config.FrontendConfig{}, server.Client(), nil).NotifyCreated(context.Background(), sampleTicket())

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	integrationErr, ok := errorutil.AsIntegrationError(err)
	require.True(t, ok)
	assert.Equal(t, AdapterName, integrationErr.Adapter)
	assert.Equal(t, http.StatusInternalServerError, integrationErr.StatusCode)
}

func TestNotifyUnreachableWebhook(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := config.NotificationConfig{Enabled: true, WebhookURL: url, TimeoutSeconds: 1}
	err := New(cfg, config.FrontendConfig{}, nil, nil).NotifyCreated(context.Background(), sampleTicket())

	require.Error(t, err)
	integrationErr, ok := errorutil.AsIntegrationError(err)
	require.True(t, ok)
	assert.Equal(t, "t-1", integrationErr.TicketID)
}
