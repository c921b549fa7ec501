package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var seen []string

	d.Subscribe(EventUserLoggedIn, func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.UserID)
		return errors.New("boom")
	})
	d.Subscribe(EventUserLoggedIn, func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.UserID)
		return nil
	})
	d.Subscribe(EventRoleChanged, func(context.Context, Event) error {
		seen = append(seen, "unexpected")
		return nil
	})

	event := New(EventUserLoggedIn, "u-1", Actor{UserID: "u-1"}, nil)
	require.NoError(t, d.Publish(context.Background(), event))

	assert.Equal(t, []string{"first:u-1", "second:u-1"}, seen)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}
