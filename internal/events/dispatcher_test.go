package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var order []string
	boom := errors.New("boom")

	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		order = append(order, "first")
		return boom
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		order = append(order, "second")
		return nil
	})
	d.Subscribe(EventTicketStatusChanged, func(context.Context, Event) error {
		order = append(order, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatcherWithoutListeners(t *testing.T) {
	assert.NoError(t, NewInMemoryDispatcher().Publish(context.Background(), Event{Type: EventTicketCreated}))
}
