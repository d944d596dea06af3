package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from  TicketStatus
		to    TicketStatus
		valid bool
	}{
		{TicketStatusNew, TicketStatusInProgress, true},
		{TicketStatusInProgress, TicketStatusResolved, true},
		{TicketStatusResolved, TicketStatusClosed, true},
		{TicketStatusNew, TicketStatusNew, false},
		{TicketStatusNew, TicketStatusResolved, false},
		{TicketStatusNew, TicketStatusClosed, false},
		{TicketStatusInProgress, TicketStatusNew, false},
		{TicketStatusClosed, TicketStatusNew, false},
		{TicketStatusClosed, TicketStatusClosed, false},
		{TicketStatusResolved, TicketStatusInProgress, false},
		{TicketStatus("PENDING"), TicketStatusInProgress, false},
		{TicketStatusNew, TicketStatus("DONE"), false},
	}

	for _, tt := range cases {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Fatalf("CanTransitionTo(%q, %q)=%v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestTransitionToLeavesStatusOnFailure(t *testing.T) {
	ticket := Ticket{Status: TicketStatusNew}

	err := ticket.TransitionTo(TicketStatusClosed)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, TicketStatusNew, ticket.Status)

	require.NoError(t, ticket.TransitionTo(TicketStatusInProgress))
	assert.Equal(t, TicketStatusInProgress, ticket.Status)
}

func TestLinkExternalIssueIsWriteOnce(t *testing.T) {
	ticket := Ticket{}
	require.NoError(t, ticket.LinkExternalIssue(ExternalIssueRef{ID: "10001", Key: "OPS-1"}))

	err := ticket.LinkExternalIssue(ExternalIssueRef{ID: "10002", Key: "OPS-2"})
	require.ErrorIs(t, err, ErrExternalIssueLinked)
	assert.Equal(t, "OPS-1", ticket.ExternalIssue.Key)

	require.Error(t, (&Ticket{}).LinkExternalIssue(ExternalIssueRef{}))
}

func TestParseTicketStatus(t *testing.T) {
	status, ok := ParseTicketStatus(" in_progress ")
	require.True(t, ok)
	assert.Equal(t, TicketStatusInProgress, status)

	_, ok = ParseTicketStatus("reopened")
	assert.False(t, ok)
}

func TestValidateNewTicket(t *testing.T) {
	assert.Nil(t, ValidateNewTicket("VPN down", "Cannot connect from home"))

	problems := ValidateNewTicket("  ", "")
	assert.Equal(t, "required", problems["title"])
	assert.Equal(t, "required", problems["body"])

	assert.Nil(t, ValidateNewTicket(strings.Repeat("é", MaxTitleLength), "body"))
	problems = ValidateNewTicket(strings.Repeat("a", MaxTitleLength+1), "body")
	assert.Contains(t, problems, "title")
}

func TestCloneIsDeep(t *testing.T) {
	channel := "#ops"
	original := Ticket{ExternalIssue: &ExternalIssueRef{Key: "OPS-1"}, NotificationChannel: &channel}
	clone := original.Clone()

	clone.ExternalIssue.Key = "OPS-9"
	*clone.NotificationChannel = "#other"

	assert.Equal(t, "OPS-1", original.ExternalIssue.Key)
	assert.Equal(t, "#ops", *original.NotificationChannel)
}
