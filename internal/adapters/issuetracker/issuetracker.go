// Package issuetracker mirrors tickets into a Jira-compatible issue tracker.
package issuetracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/config"
	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/observability"
	"github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

// AdapterName identifies this adapter in logs, metrics and errors.
const AdapterName = "issue_tracker"

const (
	createIssuePath = "/rest/api/3/issue"
	maxErrorBody    = 4 << 10
)

// Client creates issues through the tracker's REST API.
type Client struct {
	cfg        config.IssueTrackerConfig
	httpClient *http.Client
	authHeader string
	logger     *zap.Logger
}

// New builds a client. The basic-auth credential is resolved once here.
// A nil httpClient gets a traced client bounded by the configured timeout.
func New(cfg config.IssueTrackerConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(cfg.Timeout())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	credential := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.APIToken))
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		authHeader: "Basic " + credential,
		logger:     logger.With(zap.String("adapter", AdapterName)),
	}
}

// Enabled reports whether calls reach the remote tracker.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled
}

// CreateIssue mirrors ticket as a remote issue. A disabled client returns
// (nil, nil) without any network call. Transient failures are retried with a
// fixed backoff up to the configured attempt count; other failures return at once.
func (c *Client) CreateIssue(ctx context.Context, ticket domain.Ticket) (*domain.ExternalIssueRef, error) {
	if !c.cfg.Enabled {
		return nil, nil
	}

	payload, err := json.Marshal(c.buildRequest(ticket))
	if err != nil {
		return nil, &errorutil.IntegrationError{Adapter: AdapterName, TicketID: ticket.ID, Err: err}
	}

	var (
		ref     *domain.ExternalIssueRef
		attempt int
	)
	operation := func() error {
		attempt++
		created, err := c.createOnce(ctx, ticket.ID, payload)
		if err != nil {
			if errorutil.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		ref = created
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("issue creation attempt failed; retrying",
			zap.String("ticket_id", ticket.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryBackoff()), uint64(c.cfg.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		var integrationErr *errorutil.IntegrationError
		if !errors.As(err, &integrationErr) {
			integrationErr = errorutil.NewIntegrationError(AdapterName, ticket.ID, 0, err)
		}
		// Retries are spent, so the caller sees a final failure.
		final := *integrationErr
		final.Transient = false
		return nil, &final
	}
	return ref, nil
}

func (c *Client) createOnce(ctx context.Context, ticketID string, payload []byte) (*domain.ExternalIssueRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+createIssuePath, bytes.NewReader(payload))
	if err != nil {
		return nil, &errorutil.IntegrationError{Adapter: AdapterName, TicketID: ticketID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errorutil.NewIntegrationError(AdapterName, ticketID, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errorutil.NewIntegrationError(AdapterName, ticketID, resp.StatusCode,
			fmt.Errorf("remote rejected issue: %s", strings.TrimSpace(string(body))))
	}

	var created createIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, &errorutil.IntegrationError{Adapter: AdapterName, TicketID: ticketID, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	if created.Key == "" {
		return nil, &errorutil.IntegrationError{Adapter: AdapterName, TicketID: ticketID, StatusCode: resp.StatusCode,
			Err: errors.New("response missing issue key")}
	}
	return &domain.ExternalIssueRef{
		ID:  created.ID,
		Key: created.Key,
		URL: c.cfg.BaseURL + "/browse/" + created.Key,
	}, nil
}

func (c *Client) buildRequest(ticket domain.Ticket) createIssueRequest {
	priority := strings.TrimSpace(ticket.Priority)
	if priority == "" {
		priority = c.cfg.DefaultPriority
	}
	return createIssueRequest{Fields: issueFields{
		Project:     keyRef{Key: c.cfg.ProjectKey},
		Summary:     ticket.Title,
		Description: newDocument(ticket.Body),
		IssueType:   nameRef{Name: c.cfg.IssueType},
		Priority:    nameRef{Name: priority},
	}}
}
