package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength bounds ticket titles, counted in characters.
const MaxTitleLength = 255

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "NEW"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// statusOrder is the monotonic lifecycle order.
var statusOrder = []TicketStatus{
	TicketStatusNew,
	TicketStatusInProgress,
	TicketStatusResolved,
	TicketStatusClosed,
}

var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrExternalIssueLinked = errors.New("external issue already linked")
)

// ParseTicketStatus normalizes s into a known status.
func ParseTicketStatus(s string) (TicketStatus, bool) {
	candidate := TicketStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, status := range statusOrder {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

func (s TicketStatus) rank() int {
	for i, status := range statusOrder {
		if status == s {
			return i
		}
	}
	return -1
}

// CanTransitionTo reports whether next is the immediate successor of s.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	current, target := s.rank(), next.rank()
	return current >= 0 && target >= 0 && target == current+1
}

// ExternalIssueRef correlates a ticket with its mirror in the issue tracker.
type ExternalIssueRef struct {
	ID  string
	Key string
	URL string
}

// IsZero reports whether no issue has been linked.
func (r *ExternalIssueRef) IsZero() bool {
	return r == nil || r.Key == ""
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                  string
	Title               string
	Body                string
	Status              TicketStatus
	Priority            string
	ExternalIssue       *ExternalIssueRef
	NotificationChannel *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TransitionTo moves the ticket one step forward in the lifecycle.
func (t *Ticket) TransitionTo(next TicketStatus) error {
	if !t.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	t.Status = next
	return nil
}

// LinkExternalIssue sets the issue reference. The reference is write-once.
func (t *Ticket) LinkExternalIssue(ref ExternalIssueRef) error {
	if !t.ExternalIssue.IsZero() {
		return ErrExternalIssueLinked
	}
	if ref.Key == "" {
		return errors.New("external issue key required")
	}
	t.ExternalIssue = &ref
	return nil
}

// Clone returns a deep copy safe to hand across goroutines.
func (t Ticket) Clone() Ticket {
	if t.ExternalIssue != nil {
		ref := *t.ExternalIssue
		t.ExternalIssue = &ref
	}
	if t.NotificationChannel != nil {
		channel := *t.NotificationChannel
		t.NotificationChannel = &channel
	}
	return t
}

// ValidateNewTicket checks creation input.
func ValidateNewTicket(title, body string) map[string]any {
	problems := map[string]any{}
	title = strings.TrimSpace(title)
	if title == "" {
		problems["title"] = "required"
	} else if utf8.RuneCountInString(title) > MaxTitleLength {
		problems["title"] = "must be at most 255 characters"
	}
	if strings.TrimSpace(body) == "" {
		problems["body"] = "required"
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}
