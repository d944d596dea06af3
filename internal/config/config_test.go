package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ISSUE_TRACKER_ENABLED", "false")
	t.Setenv("NOTIFICATION_ENABLED", "false")
	t.Setenv("ISSUE_TRACKER_DEFAULT_PRIORITY", "")
	t.Setenv("TICKET_DEFAULT_PRIORITY", "")
	t.Setenv("ISSUE_TRACKER_MAX_ATTEMPTS", "")
	t.Setenv("ISSUE_TRACKER_RETRY_BACKOFF_MS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Medium", cfg.IssueTracker.DefaultPriority)
	assert.Equal(t, "Medium", cfg.Tickets.DefaultPriority)
	assert.Equal(t, 3, cfg.IssueTracker.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.IssueTracker.RetryBackoff())
	assert.Equal(t, 5*time.Second, cfg.IssueTracker.Timeout())
	assert.Equal(t, 24*time.Hour, cfg.Orchestration.GuardTTL())
}

func TestLoadIntegrationKeys(t *testing.T) {
	t.Setenv("ISSUE_TRACKER_ENABLED", "true")
	t.Setenv("ISSUE_TRACKER_BASE_URL", "https://example.atlassian.net/")
	t.Setenv("ISSUE_TRACKER_USERNAME", "bot@example.com")
	t.Setenv("ISSUE_TRACKER_API_TOKEN", "token")
	t.Setenv("ISSUE_TRACKER_PROJECT_KEY", "OPS")
	t.Setenv("ISSUE_TRACKER_DEFAULT_PRIORITY", "High")
	t.Setenv("TICKET_DEFAULT_PRIORITY", "")
	t.Setenv("NOTIFICATION_ENABLED", "true")
	t.Setenv("NOTIFICATION_WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("NOTIFICATION_DEFAULT_CHANNEL", "#ops")
	t.Setenv("FRONTEND_BASE_URL", "https://desk.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IssueTracker.Enabled)
	assert.Equal(t, "https://example.atlassian.net", cfg.IssueTracker.BaseURL)
	assert.Equal(t, "High", cfg.Tickets.DefaultPriority)
	assert.Equal(t, "#ops", cfg.Notification.DefaultChannel)
	assert.Equal(t, "https://desk.example.com", cfg.Frontend.BaseURL)
}

func TestValidateRejectsIncompleteIntegrations(t *testing.T) {
	cfg := &Config{IssueTracker: IssueTrackerConfig{Enabled: true, BaseURL: "https://x"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ISSUE_TRACKER_PROJECT_KEY")

	cfg = &Config{Notification: NotificationConfig{Enabled: true}}
	require.Error(t, cfg.Validate())

	cfg = &Config{IssueTracker: IssueTrackerConfig{Enabled: false}}
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsAuthWithoutSecret(t *testing.T) {
	t.Setenv("ISSUE_TRACKER_ENABLED", "false")
	t.Setenv("NOTIFICATION_ENABLED", "false")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")

	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}
