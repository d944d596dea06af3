package errorutil

import (
	"errors"
	"fmt"
)

// IntegrationError is a failure talking to an external system. It is logged by
// the orchestrator and never returned to an API caller.
type IntegrationError struct {
	Adapter    string
	TicketID   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *IntegrationError) Error() string {
	kind := "integration"
	if e.Transient {
		kind = "transient integration"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error for ticket %s (status %d): %v", e.Adapter, kind, e.TicketID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error for ticket %s: %v", e.Adapter, kind, e.TicketID, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// NewIntegrationError wraps err for adapter. Transience is derived from the status code.
func NewIntegrationError(adapter, ticketID string, statusCode int, err error) *IntegrationError {
	return &IntegrationError{
		Adapter:    adapter,
		TicketID:   ticketID,
		StatusCode: statusCode,
		Transient:  statusCode == 0 || IsTransientStatus(statusCode),
		Err:        err,
	}
}

// IsTransientStatus reports whether a remote HTTP status is worth retrying.
// Only server errors qualify; every 4xx, including 408 and 429, is final.
func IsTransientStatus(code int) bool {
	return code >= 500
}

// IsTransient reports whether err is a retryable integration failure.
func IsTransient(err error) bool {
	var integrationErr *IntegrationError
	return errors.As(err, &integrationErr) && integrationErr.Transient
}

// AsIntegrationError extracts an IntegrationError from err.
func AsIntegrationError(err error) (*IntegrationError, bool) {
	var integrationErr *IntegrationError
	ok := errors.As(err, &integrationErr)
	return integrationErr, ok
}
