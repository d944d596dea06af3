// Package notification posts human-readable ticket updates to a chat webhook.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	slackapi "github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/config"
	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/observability"
	"github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

// AdapterName identifies this adapter in logs, metrics and errors.
const AdapterName = "notification"

// Event selects the message template.
type Event string

const (
	EventCreated       Event = "created"
	EventStatusChanged Event = "status_changed"
)

// postFunc matches slack.PostWebhookCustomHTTPContext.
type postFunc func(ctx context.Context, url string, httpClient *http.Client, msg *slackapi.WebhookMessage) error

// Notifier delivers ticket events. Failed deliveries are reported once and not retried.
type Notifier struct {
	cfg         config.NotificationConfig
	frontendURL string
	httpClient  *http.Client
	post        postFunc
	logger      *zap.Logger
}

// New builds a notifier. A nil httpClient gets a traced client bounded by the
// configured timeout.
func New(cfg config.NotificationConfig, frontend config.FrontendConfig, httpClient *http.Client, logger *zap.Logger) *Notifier {
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(cfg.Timeout())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		cfg:         cfg,
		frontendURL: strings.TrimRight(frontend.BaseURL, "/"),
		httpClient:  httpClient,
		post:        slackapi.PostWebhookCustomHTTPContext,
		logger:      logger.With(zap.String("adapter", AdapterName)),
	}
}

// Enabled reports whether messages are delivered.
func (n *Notifier) Enabled() bool {
	return n.cfg.Enabled
}

// NotifyCreated announces a new ticket.
func (n *Notifier) NotifyCreated(ctx context.Context, ticket domain.Ticket) error {
	return n.send(ctx, EventCreated, ticket)
}

// NotifyStatusChanged announces a status transition.
func (n *Notifier) NotifyStatusChanged(ctx context.Context, ticket domain.Ticket) error {
	return n.send(ctx, EventStatusChanged, ticket)
}

func (n *Notifier) send(ctx context.Context, event Event, ticket domain.Ticket) error {
	if !n.cfg.Enabled {
		return nil
	}
	msg := &slackapi.WebhookMessage{
		Text:    n.composeText(event, ticket),
		Channel: n.resolveChannel(ticket),
	}
	if err := n.post(ctx, n.cfg.WebhookURL, n.httpClient, msg); err != nil {
		return &errorutil.IntegrationError{
			Adapter:    AdapterName,
			TicketID:   ticket.ID,
			StatusCode: statusCodeOf(err),
			Err:        err,
		}
	}
	n.logger.Debug("notification delivered",
		zap.String("ticket_id", ticket.ID),
		zap.String("event", string(event)),
		zap.String("channel", msg.Channel))
	return nil
}

// resolveChannel prefers the ticket's own channel, then the configured default.
// An empty result posts to the webhook's own default destination.
func (n *Notifier) resolveChannel(ticket domain.Ticket) string {
	if ticket.NotificationChannel != nil {
		if channel := strings.TrimSpace(*ticket.NotificationChannel); channel != "" {
			return channel
		}
	}
	return strings.TrimSpace(n.cfg.DefaultChannel)
}

func (n *Notifier) composeText(event Event, ticket domain.Ticket) string {
	var b strings.Builder
	switch event {
	case EventCreated:
		fmt.Fprintf(&b, "New ticket %s: %s", ticket.ID, ticket.Title)
	default:
		fmt.Fprintf(&b, "Ticket %s is now %s: %s", ticket.ID, ticket.Status, ticket.Title)
	}
	fmt.Fprintf(&b, "\nStatus: %s", ticket.Status)
	if ticket.Priority != "" {
		fmt.Fprintf(&b, " | Priority: %s", ticket.Priority)
	}
	if !ticket.ExternalIssue.IsZero() {
		if ticket.ExternalIssue.URL != "" {
			fmt.Fprintf(&b, "\nIssue: <%s|%s>", ticket.ExternalIssue.URL, ticket.ExternalIssue.Key)
		} else {
			fmt.Fprintf(&b, "\nIssue: %s", ticket.ExternalIssue.Key)
		}
	}
	if n.frontendURL != "" {
		fmt.Fprintf(&b, "\n%s/tickets/%s", n.frontendURL, ticket.ID)
	}
	return b.String()
}

func statusCodeOf(err error) int {
	var statusErr slackapi.StatusCodeError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	var rateLimited *slackapi.RateLimitedError
	if errors.As(err, &rateLimited) {
		return http.StatusTooManyRequests
	}
	return 0
}
