package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-orchestrator/internal/adapters/issuetracker"
	"github.com/spec-kit/ticket-orchestrator/internal/adapters/notification"
	"github.com/spec-kit/ticket-orchestrator/internal/config"
	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/events"
	"github.com/spec-kit/ticket-orchestrator/internal/orchestrator"
	"github.com/spec-kit/ticket-orchestrator/internal/repository"
	"github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

type harness struct {
	svc         *TicketService
	orch        *orchestrator.Orchestrator
	tickets     repository.TicketRepository
	jiraCalls   atomic.Int32
	notifyCalls atomic.Int32
}

type harnessOptions struct {
	jiraStatus    int
	jiraDisabled  bool
	webhookStatus int
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	h := &harness{
		tickets: repository.NewMemoryTicketRepository(),
	}

	jira := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.jiraCalls.Add(1)
		if opts.jiraStatus != 0 {
			w.WriteHeader(opts.jiraStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"10001","key":"SUP-42","self":"https://jira.example.com/rest/api/3/issue/10001"}`))
	}))
	t.Cleanup(jira.Close)

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.notifyCalls.Add(1)
		if opts.webhookStatus != 0 {
			w.WriteHeader(opts.webhookStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(webhook.Close)

	tracker := issuetracker.New(config.IssueTrackerConfig{
		Enabled:         !opts.jiraDisabled,
		BaseURL:         jira.URL,
		Username:        "bot@example.com",
		APIToken:        "token",
		ProjectKey:      "SUP",
		IssueType:       "Task",
		DefaultPriority: "Medium",
		TimeoutSeconds:  1,
		MaxAttempts:     3,
		RetryBackoffMS:  1,
	}, nil, nil)
	notifier := notification.New(config.NotificationConfig{
		Enabled:        true,
		WebhookURL:     webhook.URL,
		DefaultChannel: "#support",
		TimeoutSeconds: 1,
	}, config.FrontendConfig{BaseURL: "https://console.example.com"}, nil, nil)

	history := repository.NewMemoryTicketHistoryRepository()
	dispatcher := events.NewInMemoryDispatcher()
	h.orch = orchestrator.New(orchestrator.Dependencies{
		Tickets:  h.tickets,
		History:  history,
		Issues:   tracker,
		Notifier: notifier,
	})
	h.orch.RegisterHandlers(dispatcher)
	h.svc = NewTicketService(TicketDependencies{
		TicketRepo:      h.tickets,
		HistoryRepo:     history,
		Dispatcher:      dispatcher,
		DefaultPriority: "Medium",
	})
	return h
}

func TestCreateTicketLinksIssueAfterOrchestration(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	ticket, err := h.svc.CreateTicket(ctx, "", TicketCreateInput{Title: "VPN down", Body: "Cannot connect"})
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Equal(t, "Medium", ticket.Priority)
	assert.Nil(t, ticket.NotificationChannel)
	assert.Nil(t, ticket.ExternalIssue)

	h.orch.Wait()

	stored, err := h.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ExternalIssue)
	assert.Equal(t, "SUP-42", stored.ExternalIssue.Key)
	assert.True(t, strings.HasSuffix(stored.ExternalIssue.URL, "/browse/SUP-42"))
	assert.Equal(t, int32(1), h.jiraCalls.Load())
	assert.Equal(t, int32(1), h.notifyCalls.Load())
}

func TestCreateTicketStoresExplicitChannelOnly(t *testing.T) {
	h := newHarness(t, harnessOptions{jiraDisabled: true})

	ticket, err := h.svc.CreateTicket(context.Background(), "", TicketCreateInput{
		Title:    "Printer jam",
		Body:     "Floor 3",
		Priority: "High",
		Channel:  "#facilities",
	})
	require.NoError(t, err)
	h.orch.Wait()

	require.NotNil(t, ticket.NotificationChannel)
	assert.Equal(t, "#facilities", *ticket.NotificationChannel)
	assert.Equal(t, "High", ticket.Priority)
}

func TestCreateTicketValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	cases := []TicketCreateInput{
		{Title: "", Body: "body"},
		{Title: "title", Body: "   "},
		{Title: strings.Repeat("x", domain.MaxTitleLength+1), Body: "body"},
	}
	for _, input := range cases {
		_, err := h.svc.CreateTicket(context.Background(), "", input)
		assert.True(t, errorutil.HasCode(err, errorutil.CodeValidation), "input %+v", input)
	}

	all, err := h.svc.ListTickets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, int32(0), h.jiraCalls.Load())
}

func TestCreateTicketWithDisabledTrackerLeavesRefUnset(t *testing.T) {
	h := newHarness(t, harnessOptions{jiraDisabled: true})

	ticket, err := h.svc.CreateTicket(context.Background(), "", TicketCreateInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	h.orch.Wait()

	stored, err := h.svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ExternalIssue)
	assert.Equal(t, int32(0), h.jiraCalls.Load())
}

func TestCreateTicketSurvivesTrackerOutage(t *testing.T) {
	h := newHarness(t, harnessOptions{jiraStatus: http.StatusServiceUnavailable})

	ticket, err := h.svc.CreateTicket(context.Background(), "", TicketCreateInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	h.orch.Wait()

	assert.Equal(t, int32(3), h.jiraCalls.Load())
	stored, err := h.svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ExternalIssue)
	assert.Equal(t, *ticket, *stored)
}

func TestCreateTicketSurvivesWebhookOutage(t *testing.T) {
	h := newHarness(t, harnessOptions{jiraDisabled: true, webhookStatus: http.StatusInternalServerError})

	ticket, err := h.svc.CreateTicket(context.Background(), "", TicketCreateInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	h.orch.Wait()

	assert.Equal(t, int32(1), h.notifyCalls.Load())
	stored, err := h.svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, *ticket, *stored)
}

func TestTransitionStatusForwardOnly(t *testing.T) {
	h := newHarness(t, harnessOptions{jiraDisabled: true})
	ctx := context.Background()
	ticket, err := h.svc.CreateTicket(ctx, "", TicketCreateInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	h.orch.Wait()

	_, err = h.svc.TransitionStatus(ctx, ticket.ID, domain.TicketStatusClosed, "agent-1")
	require.Error(t, err)
	assert.True(t, errorutil.HasCode(err, errorutil.CodeInvalidTransition))
	stored, err := h.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, stored.Status)

	for _, next := range []domain.TicketStatus{
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
	} {
		updated, err := h.svc.TransitionStatus(ctx, ticket.ID, next, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, next, updated.Status)
	}
	h.orch.Wait()

	_, err = h.svc.TransitionStatus(ctx, ticket.ID, domain.TicketStatusNew, "agent-1")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeInvalidTransition))

	// one created notification plus three status changes
	assert.Equal(t, int32(4), h.notifyCalls.Load())
	assert.Equal(t, int32(0), h.jiraCalls.Load())

	entries, err := h.svc.ListHistory(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.ChangeTypeStatus, entries[0].ChangeType)
	assert.Equal(t, "agent-1", entries[0].ChangedBy)
}

func TestTransitionStatusUnknownTicket(t *testing.T) {
	h := newHarness(t, harnessOptions{jiraDisabled: true})

	_, err := h.svc.TransitionStatus(context.Background(), "missing", domain.TicketStatusInProgress, "")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeNotFound))

	_, err = h.svc.GetTicket(context.Background(), "missing")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeNotFound))

	_, err = h.svc.ListHistory(context.Background(), "missing")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeNotFound))
}

func TestListTicketsIsStable(t *testing.T) {
	h := newHarness(t, harnessOptions{jiraDisabled: true})
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c"} {
		_, err := h.svc.CreateTicket(ctx, "", TicketCreateInput{Title: title, Body: "b"})
		require.NoError(t, err)
	}
	h.orch.Wait()

	first, err := h.svc.ListTickets(ctx)
	require.NoError(t, err)
	second, err := h.svc.ListTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
}
