package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeetingStateChanged_DeliversToSubscriber(t *testing.T) {
	e := New()
	defer e.Shutdown()

	ch := make(chan Event, 1)
	e.register <- Subscription{MeetingID: "m1", Channel: ch}

	e.MeetingStateChanged("m1", "UPLOADED", "TRANSCRIBING")

	select {
	case ev := <-ch:
		assert.Equal(t, EventMeetingStateChanged, ev.Type)
		payload, ok := ev.Payload.(StateChangedPayload)
		require.True(t, ok)
		assert.Equal(t, "m1", payload.MeetingID)
		assert.Equal(t, "UPLOADED", payload.From)
		assert.Equal(t, "TRANSCRIBING", payload.To)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestMeetingStateChanged_IgnoresSubscribersOfOtherMeetings(t *testing.T) {
	e := New()
	defer e.Shutdown()

	ch := make(chan Event, 1)
	e.register <- Subscription{MeetingID: "other", Channel: ch}

	e.MeetingStateChanged("m1", "UPLOADED", "TRANSCRIBING")

	select {
	case <-ch:
		t.Fatal("subscriber for a different meeting should not receive this event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregister_ClosesChannel(t *testing.T) {
	e := New()
	defer e.Shutdown()

	ch := make(chan Event)
	sub := Subscription{MeetingID: "m1", Channel: ch}
	e.register <- sub
	e.unregister <- sub

	_, ok := <-ch
	assert.False(t, ok)
}
